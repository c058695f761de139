package fli

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff"
)

// Exposure time limits accepted by SetExposure.
const (
	MinExposure = 1 * time.Millisecond
	MaxExposure = 1 * time.Hour
)

// readyPollInterval is the fixed delay between completion polls inside
// CaptureFrame.
const readyPollInterval = 10 * time.Millisecond

// readyGrace is how long CaptureFrame keeps polling after the programmed
// exposure time has already been slept through.
const readyGrace = 5 * time.Second

var errFrameNotReady = errors.New("fli: frame not ready")

// CameraIDs lists the identifiers of attached cameras.  The listing is a
// stateless query each call; nothing is cached.  Identifiers may embed
// metadata after a ';', which Open strips.
func CameraIDs(lib Lib) ([]string, error) {
	ids, code := lib.List(DomainCamera)
	if code != 0 {
		return nil, devErr("FLIList", code)
	}
	for _, id := range ids {
		if !utf8.ValidString(id) {
			return nil, InvalidFormatError{Desc: "non-UTF8 camera identifier from device list"}
		}
	}
	return ids, nil
}

// NumCameras returns the number of attached cameras, zero on any error.
func NumCameras(lib Lib) int {
	ids, err := CameraIDs(lib)
	if err != nil {
		return 0
	}
	return len(ids)
}

// Open opens a camera by identifier and returns its control surface.  The
// identity and visible area are queried once here; failure of either tears
// the device back down and propagates.
func Open(lib Lib, id string) (*CameraUnit, error) {
	name := id
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	if strings.IndexByte(name, 0) >= 0 {
		return nil, InvalidFormatError{Desc: "camera identifier contains NUL"}
	}
	dev, code := lib.Open(name, DomainCamera)
	if dev == InvalidDevice {
		return nil, ErrNoCamerasAvailable
	}
	if code != 0 {
		return nil, devErr("FLIOpen", code)
	}
	h := newHandle(lib, dev)
	serial, err := h.Serial()
	if err != nil {
		h.release()
		return nil, err
	}
	xMin, yMin, xMax, yMax, err := h.VisibleArea()
	if err != nil {
		h.release()
		return nil, err
	}
	u := &CameraUnit{
		handle: h,
		info: CameraInfo{
			handle: h,
			width:  xMax - xMin,
			height: yMax - yMin,
			name:   id,
			serial: serial,
		},
		xMin: xMin,
		yMin: yMin,
		xMax: xMax,
		yMax: yMax,
		roi: ROI{
			Width:  xMax - xMin,
			Height: yMax - yMin,
			BinX:   1,
			BinY:   1,
		},
	}
	return u, nil
}

// OpenFirst opens the first camera the library enumerates.
func OpenFirst(lib Lib) (*CameraUnit, error) {
	ids, err := CameraIDs(lib)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoCamerasAvailable
	}
	return Open(lib, ids[0])
}

// CameraInfo is a cheap, cloneable read view of one camera: identity
// snapshot plus live housekeeping.  Clones share the underlying handle and
// are intended for concurrent observation from other goroutines.
// Housekeeping is not control; commanding the TEC is allowed here.
//
// Each clone holds one reference to the device; Close it when done.
type CameraInfo struct {
	handle *Handle

	width  int
	height int
	name   string
	serial string
}

// Clone returns a new view sharing this camera's handle.
func (c CameraInfo) Clone() CameraInfo {
	c.handle.retain()
	return c
}

// Close releases this view's reference to the device.
func (c CameraInfo) Close() {
	c.handle.release()
}

// CameraName returns the identifier the camera was opened with.
func (c CameraInfo) CameraName() string { return c.name }

// Serial returns the serial string captured at open time.
func (c CameraInfo) Serial() string { return c.serial }

// CCDWidth returns the visible-area width in unbinned pixels.
func (c CameraInfo) CCDWidth() int { return c.width }

// CCDHeight returns the visible-area height in unbinned pixels.
func (c CameraInfo) CCDHeight() int { return c.height }

// IsCapturing reflects the handle's capturing flag with no side effects.
func (c CameraInfo) IsCapturing() bool { return c.handle.IsCapturing() }

// Temperature reads the detector temperature in Celsius.
func (c CameraInfo) Temperature() (float64, error) { return c.handle.GetTemperature() }

// SetTemperature commands the TEC setpoint in Celsius.
func (c CameraInfo) SetTemperature(t float64) error { return c.handle.SetTemperature(t) }

// CoolerPower reads the TEC drive level in percent.
func (c CameraInfo) CoolerPower() (float64, error) { return c.handle.GetCoolerPower() }

// PixelSize reads the pixel pitch in meters.
func (c CameraInfo) PixelSize() (x, y float64, err error) { return c.handle.PixelSize() }

// CameraUnit is the mutable control surface of one open camera.  There is
// one per device and it is meant to be owned by a single controlling
// goroutine; spin off CameraInfo clones via Info for concurrent
// housekeeping observation.
type CameraUnit struct {
	handle *Handle
	info   CameraInfo

	// visible-area bounds, absolute pixels, captured at open time
	xMin, yMin, xMax, yMax int

	// active ROI, binned units relative to the visible origin
	roi ROI
}

// Info returns a housekeeping view sharing this camera's handle.  The view
// holds its own device reference and must be Closed independently.
func (u *CameraUnit) Info() CameraInfo {
	return u.info.Clone()
}

// Close releases the unit's reference to the device.  When it is the last
// reference, the device is torn down: any in-flight exposure is cancelled,
// the cooler is warmed to a safe temperature, and the device is closed.
// Teardown failures are logged, never returned.
func (u *CameraUnit) Close() {
	u.handle.release()
}

// CameraName returns the identifier the camera was opened with.
func (u *CameraUnit) CameraName() string { return u.info.name }

// Serial returns the serial string captured at open time.
func (u *CameraUnit) Serial() string { return u.info.serial }

// IsCapturing reflects the handle's capturing flag with no side effects.
func (u *CameraUnit) IsCapturing() bool { return u.handle.IsCapturing() }

// Temperature reads the detector temperature in Celsius.
func (u *CameraUnit) Temperature() (float64, error) { return u.handle.GetTemperature() }

// SetTemperature commands the TEC setpoint in Celsius.
func (u *CameraUnit) SetTemperature(t float64) error { return u.handle.SetTemperature(t) }

// CoolerPower reads the TEC drive level in percent.
func (u *CameraUnit) CoolerPower() (float64, error) { return u.handle.GetCoolerPower() }

// Model reads the camera model string.
func (u *CameraUnit) Model() (string, error) { return u.handle.Model() }

// Exposure returns the programmed exposure time.
func (u *CameraUnit) Exposure() time.Duration { return u.handle.Exposure() }

// SetExposure programs the exposure time.  Rejected while an exposure is
// in flight; out-of-range durations are an InvalidValueError.
func (u *CameraUnit) SetExposure(d time.Duration) error {
	if u.handle.IsCapturing() {
		return ErrExposureInProgress
	}
	if d < MinExposure || d > MaxExposure {
		return invalidValuef("exposure time %v outside [%v, %v]", d, MinExposure, MaxExposure)
	}
	return u.handle.SetExposure(d)
}

// Bpp returns the programmed pixel bit depth.
func (u *CameraUnit) Bpp() Bpp { return u.handle.Bpp() }

// SetBpp programs the pixel bit depth.  Rejected while capturing.
func (u *CameraUnit) SetBpp(b Bpp) error {
	if u.handle.IsCapturing() {
		return ErrExposureInProgress
	}
	return u.handle.SetBpp(b)
}

// ShutterOpen reports whether normal (non-dark) frames are selected.
func (u *CameraUnit) ShutterOpen() bool { return u.handle.ShutterOpen() }

// SetShutterOpen selects normal or dark frames.  Rejected while capturing.
func (u *CameraUnit) SetShutterOpen(open bool) error {
	if u.handle.IsCapturing() {
		return ErrExposureInProgress
	}
	return u.handle.SetShutterOpen(open)
}

// StartExposure arms an exposure without blocking for completion.
func (u *CameraUnit) StartExposure() error { return u.handle.StartExposure() }

// ImageReady polls whether the in-flight exposure has completed.
func (u *CameraUnit) ImageReady() (bool, error) { return u.handle.ImageReady() }

// CancelExposure aborts an in-flight exposure, forcing the handle idle.
func (u *CameraUnit) CancelExposure() error { return u.handle.CancelExposure() }

// DownloadFrame grabs the completed frame.  The frame's offsets are
// rewritten into binned units relative to the visible origin, and the
// identity metadata is filled in.
func (u *CameraUnit) DownloadFrame() (*Frame, error) {
	f, err := u.handle.Download()
	if err != nil {
		return nil, err
	}
	rel := relativeROI(ROI{
		XMin: f.OffsetX, YMin: f.OffsetY,
		Width: f.Width, Height: f.Height,
		BinX: f.BinX, BinY: f.BinY,
	}, u.xMin, u.yMin)
	f.OffsetX = rel.XMin
	f.OffsetY = rel.YMin
	f.Camera = u.info.name
	f.Serial = u.info.serial
	return f, nil
}

// CaptureFrame is the scripted composition: arm, sleep through the
// programmed exposure, poll at a fixed small interval until the frame is
// ready, download.  Callers wanting their own pacing or cancellation use
// StartExposure / ImageReady / DownloadFrame directly.
func (u *CameraUnit) CaptureFrame() (*Frame, error) {
	if err := u.StartExposure(); err != nil {
		return nil, err
	}
	time.Sleep(u.Exposure())
	op := func() error {
		ready, err := u.handle.ImageReady()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ready {
			return errFrameNotReady
		}
		return nil
	}
	bo := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(readyPollInterval),
		uint64(readyGrace/readyPollInterval),
	)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return u.DownloadFrame()
}

// ROI returns the active readout geometry in binned units relative to the
// visible origin.
func (u *CameraUnit) ROI() ROI { return u.roi }

// SetROI reprograms the readout geometry and returns what the hardware
// actually applied, which may differ from the request because the device
// snaps to supported increments.  The all-zero sentinel resets to the full
// visible area at 1x1 binning.  Invalid requests are rejected before any
// hardware call, leaving the active geometry unchanged.  Rejected while
// capturing.
func (u *CameraUnit) SetROI(req ROI) (ROI, error) {
	if u.handle.IsCapturing() {
		return u.roi, ErrExposureInProgress
	}
	if req.IsReset() {
		if err := u.handle.SetHBin(1); err != nil {
			return u.roi, err
		}
		if err := u.handle.SetVBin(1); err != nil {
			return u.roi, err
		}
		if err := u.handle.SetImageArea(u.xMin, u.yMin, u.xMax, u.yMax); err != nil {
			return u.roi, err
		}
		return u.refreshROI()
	}
	if err := validateROI(req, u.xMax-u.xMin, u.yMax-u.yMin); err != nil {
		return u.roi, err
	}
	ulX, ulY, lrX, lrY := absCorners(req, u.xMin, u.yMin)
	if ulX < u.xMin || ulX >= u.xMax || ulY < u.yMin || ulY >= u.yMax {
		return u.roi, invalidValuef("%v origin outside visible area", req)
	}
	if err := u.handle.SetImageArea(ulX, ulY, lrX, lrY); err != nil {
		return u.roi, err
	}
	if err := u.handle.SetHBin(req.BinX); err != nil {
		return u.roi, err
	}
	if err := u.handle.SetVBin(req.BinY); err != nil {
		return u.roi, err
	}
	return u.refreshROI()
}

// refreshROI re-derives the active ROI from the hardware's applied readout
// geometry rather than echoing the request back.
func (u *CameraUnit) refreshROI() (ROI, error) {
	hw, err := u.handle.ReadoutDimensions()
	if err != nil {
		return u.roi, err
	}
	u.roi = relativeROI(hw, u.xMin, u.yMin)
	return u.roi, nil
}
