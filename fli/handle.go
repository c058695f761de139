package fli

import (
	"log"
	"math"
	"sync/atomic"
	"time"
)

// Temperature setpoint limits of the TEC, Celsius.
const (
	MinSetpoint = -55.0
	MaxSetpoint = 45.0
)

// warmupSetpoint is commanded during teardown so the detector is not left
// cold with no software attached to it.
const warmupSetpoint = 35.0

// Binning factor limits.  The upper bound is exclusive, matching the
// sensors' advertised limits.
const (
	minBin = 1
	maxBin = 16
)

// Handle owns one open device and the exposure state shared between the
// control and housekeeping facades.  All mutable fields are independent
// atomics rather than a single lock so that housekeeping reads from another
// goroutine never wait on a concurrent control operation.  Compound
// transitions are therefore not one atomic step; operations with a
// precondition re-check the flag itself rather than trusting prior state.
type Handle struct {
	lib Lib
	dev DeviceID

	// accessed atomically
	expNs     int64
	capturing uint32
	ready     uint32
	dark      uint32
	bpp       uint32

	refs     int32
	released uint32
}

func newHandle(lib Lib, dev DeviceID) *Handle {
	return &Handle{
		lib:   lib,
		dev:   dev,
		expNs: int64(100 * time.Millisecond),
		bpp:   uint32(Bpp16),
		refs:  1,
	}
}

func (h *Handle) retain() {
	atomic.AddInt32(&h.refs, 1)
}

// release drops one reference.  The last reference tears the device down:
// cancel any in-flight exposure, warm the cooler, close the device.  All
// three are best effort; a teardown has no caller to fail back to, so
// failures are logged and swallowed.
func (h *Handle) release() {
	if atomic.AddInt32(&h.refs, -1) > 0 {
		return
	}
	if !atomic.CompareAndSwapUint32(&h.released, 0, 1) {
		return
	}
	if code := h.lib.CancelExposure(h.dev); code != 0 {
		log.Printf("fli: error cancelling exposure during teardown: %d", code)
	}
	atomic.StoreUint32(&h.capturing, 0)
	atomic.StoreUint32(&h.ready, 0)
	if code := h.lib.SetTemperature(h.dev, warmupSetpoint); code != 0 {
		log.Printf("fli: error warming cooler during teardown: %d", code)
	}
	if code := h.lib.Close(h.dev); code != 0 {
		log.Printf("fli: error closing device: %d", code)
	}
}

// StartExposure arms an exposure.  It does not wait for completion; poll
// ImageReady to observe it.  A second call without an intervening download
// or cancel is an ErrExposureInProgress.
func (h *Handle) StartExposure() error {
	if !atomic.CompareAndSwapUint32(&h.capturing, 0, 1) {
		return ErrExposureInProgress
	}
	atomic.StoreUint32(&h.ready, 0)
	if code := h.lib.ExposeFrame(h.dev); code != 0 {
		atomic.StoreUint32(&h.capturing, 0)
		return devErr("FLIExposeFrame", code)
	}
	return nil
}

// ImageReady polls the exposure status.  A zero time remaining marks the
// frame ready and returns true; otherwise false with no state change.  A
// hardware failure during the poll leaves the capturing state and is
// reported as an ExposureFailedError.
func (h *Handle) ImageReady() (bool, error) {
	if atomic.LoadUint32(&h.capturing) == 0 {
		return false, ErrNotCapturing
	}
	remaining, code := h.lib.GetExposureStatus(h.dev)
	if code != 0 {
		atomic.StoreUint32(&h.capturing, 0)
		return false, ExposureFailedError{
			Detail: DeviceError{Op: "FLIGetExposureStatus", Code: code}.Error(),
		}
	}
	if remaining == 0 {
		atomic.StoreUint32(&h.ready, 1)
		return true, nil
	}
	return false, nil
}

// IsCapturing reads the capturing flag with no side effects.
func (h *Handle) IsCapturing() bool {
	return atomic.LoadUint32(&h.capturing) == 1
}

// CancelExposure aborts an in-flight exposure.  The flags are forced to the
// idle state whether or not the hardware call succeeds; cancellation must
// not strand the handle in "capturing".  A hardware failure is still
// reported.
func (h *Handle) CancelExposure() error {
	code := h.lib.CancelExposure(h.dev)
	atomic.StoreUint32(&h.capturing, 0)
	atomic.StoreUint32(&h.ready, 0)
	return devErr("FLICancelExposure", code)
}

// Download grabs the completed frame and returns it with capture metadata.
// It is an ErrExposureInProgress if no frame is ready; poll ImageReady
// first.  On success the handle returns to idle.  A grab failure also
// returns the handle to idle and surfaces as a DeviceError.
//
// The frame's offsets are the hardware's absolute unbinned pixels; the
// CameraUnit facade rewrites them into the caller's relative binned frame.
func (h *Handle) Download() (*Frame, error) {
	if atomic.LoadUint32(&h.ready) == 0 {
		return nil, ErrExposureInProgress
	}
	ro, err := h.ReadoutDimensions()
	if err != nil {
		return nil, err
	}
	bpp := h.Bpp()
	buf := make([]byte, ro.Width*ro.Height*bpp.BytesPerSample())
	if code := h.lib.GrabFrame(h.dev, buf); code != 0 {
		atomic.StoreUint32(&h.capturing, 0)
		atomic.StoreUint32(&h.ready, 0)
		return nil, devErr("FLIGrabFrame", code)
	}
	atomic.StoreUint32(&h.capturing, 0)
	atomic.StoreUint32(&h.ready, 0)

	temp, tcode := h.lib.GetTemperature(h.dev)
	if tcode != 0 {
		log.Printf("fli: error reading temperature during download: %d", tcode)
		temp = math.NaN()
	}
	return &Frame{
		Width:       ro.Width,
		Height:      ro.Height,
		Bpp:         bpp,
		Pix:         buf,
		Timestamp:   time.Now(),
		Exposure:    h.Exposure(),
		Temperature: temp,
		BinX:        ro.BinX,
		BinY:        ro.BinY,
		OffsetX:     ro.XMin,
		OffsetY:     ro.YMin,
	}, nil
}

// GetTemperature reads the detector temperature in Celsius.
func (h *Handle) GetTemperature() (float64, error) {
	t, code := h.lib.GetTemperature(h.dev)
	return t, devErr("FLIGetTemperature", code)
}

// SetTemperature commands the TEC setpoint in Celsius.  Setpoints outside
// [-55, 45] are rejected before any hardware call.
func (h *Handle) SetTemperature(t float64) error {
	if t < MinSetpoint || t > MaxSetpoint {
		return invalidValuef("temperature setpoint %v outside [%v, %v] C", t, MinSetpoint, MaxSetpoint)
	}
	return devErr("FLISetTemperature", h.lib.SetTemperature(h.dev, t))
}

// GetCoolerPower reads the TEC drive level in percent.
func (h *Handle) GetCoolerPower() (float64, error) {
	p, code := h.lib.GetCoolerPower(h.dev)
	return p, devErr("FLIGetCoolerPower", code)
}

// SetExposure programs the exposure time.  The stored duration, read back
// later for frame metadata, is only updated after the hardware accepts it.
func (h *Handle) SetExposure(d time.Duration) error {
	if code := h.lib.SetExposureTime(h.dev, d.Milliseconds()); code != 0 {
		return devErr("FLISetExposureTime", code)
	}
	atomic.StoreInt64(&h.expNs, int64(d))
	return nil
}

// Exposure returns the programmed exposure time.
func (h *Handle) Exposure() time.Duration {
	return time.Duration(atomic.LoadInt64(&h.expNs))
}

// SetShutterOpen selects normal (open) or dark (closed) frames.
func (h *Handle) SetShutterOpen(open bool) error {
	ft := FrameTypeNormal
	if !open {
		ft = FrameTypeDark
	}
	if code := h.lib.SetFrameType(h.dev, ft); code != 0 {
		return devErr("FLISetFrameType", code)
	}
	var dark uint32
	if !open {
		dark = 1
	}
	atomic.StoreUint32(&h.dark, dark)
	return nil
}

// ShutterOpen reports whether normal frames are selected.
func (h *Handle) ShutterOpen() bool {
	return atomic.LoadUint32(&h.dark) == 0
}

// SetBpp programs the pixel bit depth.  Only 8 and 16 bit are supported.
func (h *Handle) SetBpp(b Bpp) error {
	if b != Bpp8 && b != Bpp16 {
		return invalidValuef("bit depth %d not one of 8, 16", b)
	}
	if code := h.lib.SetBitDepth(h.dev, int64(b)); code != 0 {
		return devErr("FLISetBitDepth", code)
	}
	atomic.StoreUint32(&h.bpp, uint32(b))
	return nil
}

// Bpp returns the programmed pixel bit depth.
func (h *Handle) Bpp() Bpp {
	return Bpp(atomic.LoadUint32(&h.bpp))
}

// VisibleArea queries the sensor's full addressable pixel rectangle as
// absolute coordinates, upper-left inclusive and lower-right exclusive.
func (h *Handle) VisibleArea() (ulX, ulY, lrX, lrY int, err error) {
	ulX, ulY, lrX, lrY, code := h.lib.GetVisibleArea(h.dev)
	return ulX, ulY, lrX, lrY, devErr("FLIGetVisibleArea", code)
}

// SetImageArea programs the readout rectangle in absolute unbinned pixels.
func (h *Handle) SetImageArea(ulX, ulY, lrX, lrY int) error {
	return devErr("FLISetImageArea", h.lib.SetImageArea(h.dev, ulX, ulY, lrX, lrY))
}

// SetHBin programs the horizontal binning factor, 1 <= factor < 16.
func (h *Handle) SetHBin(factor int) error {
	if factor < minBin || factor >= maxBin {
		return invalidValuef("horizontal binning factor %d outside [%d, %d)", factor, minBin, maxBin)
	}
	return devErr("FLISetHBin", h.lib.SetHBin(h.dev, factor))
}

// SetVBin programs the vertical binning factor, 1 <= factor < 16.
func (h *Handle) SetVBin(factor int) error {
	if factor < minBin || factor >= maxBin {
		return invalidValuef("vertical binning factor %d outside [%d, %d)", factor, minBin, maxBin)
	}
	return devErr("FLISetVBin", h.lib.SetVBin(h.dev, factor))
}

// ReadoutDimensions queries the geometry the hardware will actually deliver.
// The returned ROI has binned width and height but absolute unbinned
// offsets, exactly as the library reports them.
func (h *Handle) ReadoutDimensions() (ROI, error) {
	width, hOff, hBin, height, vOff, vBin, code := h.lib.GetReadoutDimensions(h.dev)
	if code != 0 {
		return ROI{}, devErr("FLIGetReadoutDimensions", code)
	}
	return ROI{
		XMin:   hOff,
		YMin:   vOff,
		Width:  width,
		Height: height,
		BinX:   hBin,
		BinY:   vBin,
	}, nil
}

// Serial reads the camera serial string.
func (h *Handle) Serial() (string, error) {
	buf := make([]byte, lenStringBuffer)
	if code := h.lib.GetSerialString(h.dev, buf); code != 0 {
		return "", devErr("FLIGetSerialString", code)
	}
	return cstring(buf)
}

// Model reads the camera model string.
func (h *Handle) Model() (string, error) {
	buf := make([]byte, lenStringBuffer)
	if code := h.lib.GetModel(h.dev, buf); code != 0 {
		return "", devErr("FLIGetModel", code)
	}
	return cstring(buf)
}

// PixelSize reads the physical pixel pitch in meters.
func (h *Handle) PixelSize() (x, y float64, err error) {
	x, y, code := h.lib.GetPixelSize(h.dev)
	return x, y, devErr("FLIGetPixelSize", code)
}

// CameraMode returns the current readout mode index and its description.
func (h *Handle) CameraMode() (int64, string, error) {
	mode, code := h.lib.GetCameraMode(h.dev)
	if code != 0 {
		return 0, "", devErr("FLIGetCameraMode", code)
	}
	buf := make([]byte, lenStringBuffer)
	if code := h.lib.GetCameraModeString(h.dev, mode, buf); code != 0 {
		return 0, "", devErr("FLIGetCameraModeString", code)
	}
	s, err := cstring(buf)
	return mode, s, err
}

// SetCameraMode selects a readout mode by index.
func (h *Handle) SetCameraMode(mode int64) error {
	return devErr("FLISetCameraMode", h.lib.SetCameraMode(h.dev, mode))
}

// ListCameraModes enumerates the readout mode descriptions.  The list ends
// at the first index the library rejects.
func (h *Handle) ListCameraModes() []string {
	var modes []string
	for i := int64(0); i < lenStringBuffer; i++ {
		buf := make([]byte, lenStringBuffer)
		if code := h.lib.GetCameraModeString(h.dev, i, buf); code != 0 {
			break
		}
		s, err := cstring(buf)
		if err != nil {
			break
		}
		modes = append(modes, s)
	}
	return modes
}
