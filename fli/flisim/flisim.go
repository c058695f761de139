/*Package flisim is a software simulation FLI camera.

It implements fli.Lib in memory: geometry snapping, a wall-clock exposure
countdown, and a deterministic gradient test pattern.  It exists so the
driver and anything built on it can be exercised with no hardware attached,
in the same spirit as the simulation cameras the vendor SDKs ship.

The simulator also counts calls per library entry point and can inject
failures per entry point, which the fli package tests lean on.
*/
package flisim

import (
	"reflect"
	"sync"
	"time"
	"unsafe"

	"github.jpl.nasa.gov/bdube/flicam/fli"
	"github.jpl.nasa.gov/bdube/flicam/util"
)

// Status codes the simulator hands back, errno style like the real library.
const (
	statusOK     = 0
	statusInval  = -22
	statusBusy   = -16
	statusNotSup = -38
)

// ambient is the simulated uncooled detector temperature, Celsius.
const ambient = 25.0

// Sim is one simulated camera.  The zero value is not usable; construct
// with New.  All methods are safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	// ID is the identifier returned by List, metadata after the ';'.
	ID string

	// SensorW and SensorH are the visible-area extent in pixels.
	SensorW, SensorH int

	serial string
	model  string

	opened bool

	setpoint   float64
	exposureMS int64
	frameType  int64
	bitDepth   int64

	// image area, absolute unbinned pixels
	ulX, ulY, lrX, lrY int
	hBin, vBin         int

	exposing    bool
	exposeStart time.Time

	calls map[string]int

	// Fail maps a library entry point name to a status code to return
	// instead of executing it.  Entries persist until removed.
	Fail map[string]int
}

// New returns a simulator with a 1000x1000 visible area and the hardware
// defaults a real camera powers up with.
func New() *Sim {
	s := &Sim{
		ID:         "flisim-0;MicroLine ML50100 (software simulation)",
		SensorW:    1000,
		SensorH:    1000,
		serial:     "ML0000001",
		model:      "MicroLine ML50100 (software simulation)",
		setpoint:   ambient,
		exposureMS: 100,
		bitDepth:   16,
		hBin:       1,
		vBin:       1,
		calls:      map[string]int{},
		Fail:       map[string]int{},
	}
	s.lrX = s.SensorW
	s.lrY = s.SensorH
	return s
}

// Calls returns how many times the named entry point has been invoked.
func (s *Sim) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter counts the call and returns a nonzero status if a failure is
// injected for it.  Callers must hold mu.
func (s *Sim) enter(op string) int {
	s.calls[op]++
	return s.Fail[op]
}

// Open satisfies fli.Lib
func (s *Sim) Open(name string, domain int64) (fli.DeviceID, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIOpen"); code != 0 {
		return fli.InvalidDevice, code
	}
	s.opened = true
	return 1, statusOK
}

// Close satisfies fli.Lib
func (s *Sim) Close(dev fli.DeviceID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIClose"); code != 0 {
		return code
	}
	s.opened = false
	s.exposing = false
	return statusOK
}

// List satisfies fli.Lib
func (s *Sim) List(domain int64) ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIList"); code != 0 {
		return nil, code
	}
	return []string{s.ID}, statusOK
}

func fillString(buf []byte, str string) {
	n := copy(buf, str)
	if n < len(buf) {
		buf[n] = 0
	}
}

// GetSerialString satisfies fli.Lib
func (s *Sim) GetSerialString(dev fli.DeviceID, buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetSerialString"); code != 0 {
		return code
	}
	fillString(buf, s.serial)
	return statusOK
}

// GetModel satisfies fli.Lib
func (s *Sim) GetModel(dev fli.DeviceID, buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetModel"); code != 0 {
		return code
	}
	fillString(buf, s.model)
	return statusOK
}

// GetPixelSize satisfies fli.Lib
func (s *Sim) GetPixelSize(dev fli.DeviceID) (float64, float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetPixelSize"); code != 0 {
		return 0, 0, code
	}
	return 6e-6, 6e-6, statusOK
}

// GetTemperature satisfies fli.Lib.  The simulated TEC reaches its
// setpoint instantly.
func (s *Sim) GetTemperature(dev fli.DeviceID) (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetTemperature"); code != 0 {
		return 0, code
	}
	return s.setpoint, statusOK
}

// SetTemperature satisfies fli.Lib
func (s *Sim) SetTemperature(dev fli.DeviceID, t float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetTemperature"); code != 0 {
		return code
	}
	s.setpoint = t
	return statusOK
}

// GetCoolerPower satisfies fli.Lib.  Drive level is proportional to how
// far below ambient the setpoint sits.
func (s *Sim) GetCoolerPower(dev fli.DeviceID) (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetCoolerPower"); code != 0 {
		return 0, code
	}
	return util.Clamp((ambient-s.setpoint)*2, 0, 100), statusOK
}

// SetExposureTime satisfies fli.Lib
func (s *Sim) SetExposureTime(dev fli.DeviceID, ms int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetExposureTime"); code != 0 {
		return code
	}
	if ms < 0 {
		return statusInval
	}
	s.exposureMS = ms
	return statusOK
}

// SetFrameType satisfies fli.Lib
func (s *Sim) SetFrameType(dev fli.DeviceID, frameType int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetFrameType"); code != 0 {
		return code
	}
	if frameType != fli.FrameTypeNormal && frameType != fli.FrameTypeDark {
		return statusInval
	}
	s.frameType = frameType
	return statusOK
}

// SetBitDepth satisfies fli.Lib
func (s *Sim) SetBitDepth(dev fli.DeviceID, depth int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetBitDepth"); code != 0 {
		return code
	}
	if depth != 8 && depth != 16 {
		return statusInval
	}
	s.bitDepth = depth
	return statusOK
}

// GetVisibleArea satisfies fli.Lib
func (s *Sim) GetVisibleArea(dev fli.DeviceID) (int, int, int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetVisibleArea"); code != 0 {
		return 0, 0, 0, 0, code
	}
	return 0, 0, s.SensorW, s.SensorH, statusOK
}

// SetImageArea satisfies fli.Lib.  Corners are absolute unbinned pixels;
// under binning the lower-right corner may sit past the sensor edge, the
// device reads out (lr-ul)/bin whole binned pixels either way.
func (s *Sim) SetImageArea(dev fli.DeviceID, ulX, ulY, lrX, lrY int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetImageArea"); code != 0 {
		return code
	}
	if s.exposing {
		return statusBusy
	}
	if ulX < 0 || ulY < 0 || lrX <= ulX || lrY <= ulY {
		return statusInval
	}
	s.ulX, s.ulY = ulX, ulY
	s.lrX, s.lrY = lrX, lrY
	return statusOK
}

const maxBinSim = 16

// SetHBin satisfies fli.Lib
func (s *Sim) SetHBin(dev fli.DeviceID, factor int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetHBin"); code != 0 {
		return code
	}
	if factor < 1 || factor >= maxBinSim {
		return statusInval
	}
	s.hBin = factor
	return statusOK
}

// SetVBin satisfies fli.Lib
func (s *Sim) SetVBin(dev fli.DeviceID, factor int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetVBin"); code != 0 {
		return code
	}
	if factor < 1 || factor >= maxBinSim {
		return statusInval
	}
	s.vBin = factor
	return statusOK
}

// GetReadoutDimensions satisfies fli.Lib.  Width and height are the binned
// extent of the image area, snapped down to whole binned pixels; offsets
// are absolute unbinned pixels.
func (s *Sim) GetReadoutDimensions(dev fli.DeviceID) (int, int, int, int, int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetReadoutDimensions"); code != 0 {
		return 0, 0, 0, 0, 0, 0, code
	}
	width := (s.lrX - s.ulX) / s.hBin
	height := (s.lrY - s.ulY) / s.vBin
	return width, s.ulX, s.hBin, height, s.ulY, s.vBin, statusOK
}

// ExposeFrame satisfies fli.Lib
func (s *Sim) ExposeFrame(dev fli.DeviceID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIExposeFrame"); code != 0 {
		return code
	}
	if s.exposing {
		return statusBusy
	}
	s.exposing = true
	s.exposeStart = time.Now()
	return statusOK
}

// GetExposureStatus satisfies fli.Lib.  Returns the remaining exposure
// time in milliseconds, zero when complete or idle.
func (s *Sim) GetExposureStatus(dev fli.DeviceID) (int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetExposureStatus"); code != 0 {
		return 0, code
	}
	if !s.exposing {
		return 0, statusOK
	}
	elapsed := time.Since(s.exposeStart).Milliseconds()
	remaining := s.exposureMS - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, statusOK
}

// CancelExposure satisfies fli.Lib
func (s *Sim) CancelExposure(dev fli.DeviceID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLICancelExposure"); code != 0 {
		return code
	}
	s.exposing = false
	return statusOK
}

// GrabFrame satisfies fli.Lib.  The buffer must hold the full readout;
// samples are a deterministic gradient, zeroed for dark frames.
func (s *Sim) GrabFrame(dev fli.DeviceID, buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGrabFrame"); code != 0 {
		return code
	}
	width := (s.lrX - s.ulX) / s.hBin
	height := (s.lrY - s.ulY) / s.vBin
	bytesPer := int(s.bitDepth) / 8
	if len(buf) < width*height*bytesPer {
		return statusInval
	}
	dark := s.frameType == fli.FrameTypeDark
	if s.bitDepth == 8 {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var v byte
				if !dark {
					v = byte(x + y)
				}
				buf[y*width+x] = v
			}
		}
	} else {
		samples := bytesToUint(buf)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var v uint16
				if !dark {
					v = uint16((x + y) * 16)
				}
				samples[y*width+x] = v
			}
		}
	}
	s.exposing = false
	return statusOK
}

// GetCameraMode satisfies fli.Lib
func (s *Sim) GetCameraMode(dev fli.DeviceID) (int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetCameraMode"); code != 0 {
		return 0, code
	}
	return 0, statusOK
}

// simModes are the readout modes the simulator advertises.
var simModes = []string{"8-bit 2MHz", "16-bit 500KHz"}

// GetCameraModeString satisfies fli.Lib
func (s *Sim) GetCameraModeString(dev fli.DeviceID, mode int64, buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLIGetCameraModeString"); code != 0 {
		return code
	}
	if mode < 0 || int(mode) >= len(simModes) {
		return statusInval
	}
	fillString(buf, simModes[mode])
	return statusOK
}

// SetCameraMode satisfies fli.Lib
func (s *Sim) SetCameraMode(dev fli.DeviceID, mode int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("FLISetCameraMode"); code != 0 {
		return code
	}
	if mode < 0 || int(mode) >= len(simModes) {
		return statusInval
	}
	return statusOK
}

func bytesToUint(b []byte) []uint16 {
	var ary []uint16
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&ary))
	hdr.Data = uintptr(unsafe.Pointer(&b[0]))
	hdr.Len = len(b) / 2
	hdr.Cap = cap(b) / 2
	return ary
}
