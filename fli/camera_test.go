package fli_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/flicam/fli"
	"github.jpl.nasa.gov/bdube/flicam/fli/flisim"
)

func openSim(t *testing.T) (*flisim.Sim, *fli.CameraUnit) {
	t.Helper()
	sim := flisim.New()
	cam, err := fli.OpenFirst(sim)
	if err != nil {
		t.Fatal(err)
	}
	return sim, cam
}

func TestOpenKeepsFullIDStripsMetadataForHardware(t *testing.T) {
	sim, cam := openSim(t)
	defer cam.Close()
	if cam.CameraName() != sim.ID {
		t.Errorf("camera name %q, expected the full identifier %q", cam.CameraName(), sim.ID)
	}
	if cam.Serial() != "ML0000001" {
		t.Errorf("serial %q, expected ML0000001", cam.Serial())
	}
	info := cam.Info()
	defer info.Close()
	if info.CCDWidth() != 1000 || info.CCDHeight() != 1000 {
		t.Errorf("sensor %dx%d, expected 1000x1000", info.CCDWidth(), info.CCDHeight())
	}
}

func TestOpenRejectsNULInIdentifier(t *testing.T) {
	sim := flisim.New()
	_, err := fli.Open(sim, "flisim\x00-0")
	var ife fli.InvalidFormatError
	if !errors.As(err, &ife) {
		t.Errorf("expected InvalidFormatError, got %v", err)
	}
	if sim.Calls("FLIOpen") != 0 {
		t.Error("malformed identifier reached the hardware")
	}
}

// emptyLib simulates a bus with no cameras attached.
type emptyLib struct{ *flisim.Sim }

func (emptyLib) List(domain int64) ([]string, int) { return nil, 0 }

func TestOpenFirstWithNoCameras(t *testing.T) {
	if _, err := fli.OpenFirst(emptyLib{flisim.New()}); err != fli.ErrNoCamerasAvailable {
		t.Errorf("expected ErrNoCamerasAvailable, got %v", err)
	}
}

// noDevLib reports the invalid-device sentinel alongside a nonzero status.
type noDevLib struct{ *flisim.Sim }

func (noDevLib) Open(name string, domain int64) (fli.DeviceID, int) {
	return fli.InvalidDevice, -1
}

func TestOpenSentinelOutranksStatusCode(t *testing.T) {
	if _, err := fli.Open(noDevLib{flisim.New()}, "flisim-0"); err != fli.ErrNoCamerasAvailable {
		t.Errorf("expected ErrNoCamerasAvailable, got %v", err)
	}
}

func TestSetROIBinnedWindow(t *testing.T) {
	sim, cam := openSim(t)
	defer cam.Close()
	req := fli.ROI{XMin: 100, YMin: 100, Width: 300, Height: 500, BinX: 2, BinY: 2}
	applied, err := cam.SetROI(req)
	if err != nil {
		t.Fatal(err)
	}
	if applied != req {
		t.Errorf("applied %v, expected the request back unchanged %v", applied, req)
	}
	// the hardware-facing geometry is absolute and unbinned: the window
	// spans rows 200 through 1200 so that 500 binned rows read out
	w, hoff, hb, h, voff, vb, code := sim.GetReadoutDimensions(1)
	if code != 0 {
		t.Fatal(code)
	}
	if hoff != 200 || voff != 200 || w != 300 || h != 500 || hb != 2 || vb != 2 {
		t.Errorf("hardware geometry w=%d hoff=%d hb=%d h=%d voff=%d vb=%d", w, hoff, hb, h, voff, vb)
	}
}

func TestSetROIResetRestoresFullFrame(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	if _, err := cam.SetROI(fli.ROI{XMin: 10, YMin: 10, Width: 50, Height: 50, BinX: 4, BinY: 4}); err != nil {
		t.Fatal(err)
	}
	applied, err := cam.SetROI(fli.ROI{})
	if err != nil {
		t.Fatal(err)
	}
	want := fli.ROI{Width: 1000, Height: 1000, BinX: 1, BinY: 1}
	if applied != want {
		t.Errorf("reset applied %v, expected %v", applied, want)
	}
}

func TestSetROIRejectionLeavesActiveGeometry(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	good := fli.ROI{XMin: 10, YMin: 10, Width: 100, Height: 100, BinX: 1, BinY: 1}
	if _, err := cam.SetROI(good); err != nil {
		t.Fatal(err)
	}
	bad := fli.ROI{XMin: 0, YMin: 0, Width: 600, Height: 600, BinX: 2, BinY: 2}
	_, err := cam.SetROI(bad)
	var ive fli.InvalidValueError
	if !errors.As(err, &ive) {
		t.Fatalf("expected InvalidValueError, got %v", err)
	}
	if cam.ROI() != good {
		t.Errorf("active geometry %v, expected %v untouched by the rejected request", cam.ROI(), good)
	}
}

func TestSetROIRejectsOriginOutsideVisibleArea(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	// a 2x offset puts the origin at unbinned pixel 1000, past the edge
	bad := fli.ROI{XMin: 500, YMin: 0, Width: 10, Height: 10, BinX: 2, BinY: 2}
	if _, err := cam.SetROI(bad); err == nil {
		t.Error("expected rejection of an origin at the sensor edge")
	}
}

func TestConfigurationBlockedWhileCapturing(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	if err := cam.SetExposure(time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := cam.StartExposure(); err != nil {
		t.Fatal(err)
	}
	if err := cam.SetExposure(time.Second); err != fli.ErrExposureInProgress {
		t.Errorf("SetExposure while capturing: got %v", err)
	}
	if err := cam.SetBpp(fli.Bpp8); err != fli.ErrExposureInProgress {
		t.Errorf("SetBpp while capturing: got %v", err)
	}
	if err := cam.SetShutterOpen(false); err != fli.ErrExposureInProgress {
		t.Errorf("SetShutterOpen while capturing: got %v", err)
	}
	if _, err := cam.SetROI(fli.ROI{}); err != fli.ErrExposureInProgress {
		t.Errorf("SetROI while capturing: got %v", err)
	}
	if err := cam.CancelExposure(); err != nil {
		t.Fatal(err)
	}
	if cam.IsCapturing() {
		t.Error("still capturing after cancel")
	}
	if err := cam.SetExposure(time.Second); err != nil {
		t.Errorf("SetExposure after cancel: got %v", err)
	}
}

func TestSetExposureRange(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	for _, bad := range []time.Duration{0, time.Microsecond, time.Hour + time.Second} {
		err := cam.SetExposure(bad)
		var ive fli.InvalidValueError
		if !errors.As(err, &ive) {
			t.Errorf("exposure %v: expected InvalidValueError, got %v", bad, err)
		}
	}
	for _, good := range []time.Duration{fli.MinExposure, fli.MaxExposure, time.Second} {
		if err := cam.SetExposure(good); err != nil {
			t.Errorf("exposure %v: expected success, got %v", good, err)
		}
	}
}

func TestCaptureFrameEndToEnd(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	if err := cam.SetExposure(fli.MinExposure); err != nil {
		t.Fatal(err)
	}
	f, err := cam.CaptureFrame()
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 1000 || f.Height != 1000 {
		t.Errorf("frame %dx%d, expected 1000x1000", f.Width, f.Height)
	}
	if len(f.Pix) != 1000*1000*2 {
		t.Errorf("buffer is %d bytes, expected %d", len(f.Pix), 1000*1000*2)
	}
	if f.Camera != cam.CameraName() || f.Serial != cam.Serial() {
		t.Errorf("frame identity %q/%q does not match camera", f.Camera, f.Serial)
	}
	if f.Exposure != fli.MinExposure {
		t.Errorf("frame exposure %v, expected %v", f.Exposure, fli.MinExposure)
	}
	if math.IsNaN(f.Temperature) {
		t.Error("temperature read failed against the simulator")
	}
	if cam.IsCapturing() {
		t.Error("still capturing after a completed frame")
	}
	// the simulated test pattern has nonzero content for a normal frame
	nonzero := false
	for _, b := range f.Pix {
		if b != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Error("normal frame came back all zero")
	}
}

func TestCaptureFrameDark(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	if err := cam.SetExposure(fli.MinExposure); err != nil {
		t.Fatal(err)
	}
	if err := cam.SetShutterOpen(false); err != nil {
		t.Fatal(err)
	}
	if cam.ShutterOpen() {
		t.Error("shutter reports open after selecting dark frames")
	}
	f, err := cam.CaptureFrame()
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range f.Pix {
		if b != 0 {
			t.Fatalf("dark frame has nonzero sample byte at %d", i)
		}
	}
}

func TestCaptureFrameCarriesROIOffsets(t *testing.T) {
	_, cam := openSim(t)
	defer cam.Close()
	req := fli.ROI{XMin: 100, YMin: 100, Width: 300, Height: 500, BinX: 2, BinY: 2}
	if _, err := cam.SetROI(req); err != nil {
		t.Fatal(err)
	}
	if err := cam.SetExposure(fli.MinExposure); err != nil {
		t.Fatal(err)
	}
	f, err := cam.CaptureFrame()
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 300 || f.Height != 500 {
		t.Errorf("frame %dx%d, expected 300x500", f.Width, f.Height)
	}
	if f.OffsetX != 100 || f.OffsetY != 100 {
		t.Errorf("frame offsets (%d, %d), expected the caller frame (100, 100)", f.OffsetX, f.OffsetY)
	}
	if f.BinX != 2 || f.BinY != 2 {
		t.Errorf("frame binning %dx%d, expected 2x2", f.BinX, f.BinY)
	}
}

func TestInfoClonesShareDeviceUntilLastClose(t *testing.T) {
	sim, cam := openSim(t)
	info := cam.Info()
	info2 := info.Clone()
	if _, err := info2.Temperature(); err != nil {
		t.Fatal(err)
	}
	cam.Close()
	info.Close()
	if sim.Calls("FLIClose") != 0 {
		t.Fatal("device torn down with a view outstanding")
	}
	if info2.IsCapturing() {
		t.Error("idle camera reports capturing")
	}
	info2.Close()
	if sim.Calls("FLIClose") != 1 {
		t.Fatalf("expected exactly one close, got %d", sim.Calls("FLIClose"))
	}
	// teardown warms the cooler so the detector is not left cold
	temp, code := sim.GetTemperature(1)
	if code != 0 {
		t.Fatal(code)
	}
	if temp != 35 {
		t.Errorf("teardown left the setpoint at %vC, expected 35", temp)
	}
}

func TestNumCameras(t *testing.T) {
	sim := flisim.New()
	if n := fli.NumCameras(sim); n != 1 {
		t.Errorf("expected 1 camera, got %d", n)
	}
	if n := fli.NumCameras(emptyLib{sim}); n != 0 {
		t.Errorf("expected 0 cameras on an empty bus, got %d", n)
	}
}
