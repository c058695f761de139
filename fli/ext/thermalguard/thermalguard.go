/*Package thermalguard extends the fli package with a thermal guardian that
walks a cooled detector back to a safe warm temperature at a bounded rate
before shutdown.  Pulling a deeply cooled CCD straight to ambient sets up
thermal stresses in the sensor; the guardian steps the TEC setpoint instead.

Use it when power is about to be lost (a UPS providing short-term
continuance) or at the end of a run before the device is closed:

	info := cam.Info()
	defer info.Close()
	g := thermalguard.Guardian{Cam: info}
	if err := g.Save(nil); err != nil {
		log.Println(err)
	}
	cam.Close()
*/
package thermalguard

import "time"

// Defaults for a Guardian with unset fields.
const (
	// DefaultStep is the setpoint increment per tick, Celsius.
	DefaultStep = 5

	// DefaultTarget is the temperature the walk ends at, Celsius.
	DefaultTarget = 20

	// DefaultInterval is the tick period.
	DefaultInterval = time.Minute
)

// Housekeeper is the slice of a camera the guardian needs.  fli.CameraInfo
// and fli.CameraUnit both satisfy it.
type Housekeeper interface {
	// Temperature reads the detector temperature in Celsius
	Temperature() (float64, error)

	// SetTemperature commands the TEC setpoint in Celsius
	SetTemperature(float64) error
}

// Guardian walks a camera's TEC setpoint to a safe warm temperature.
type Guardian struct {
	// Cam is the camera under guard
	Cam Housekeeper

	// Step is the setpoint increment per tick, DefaultStep if zero
	Step float64

	// Target is the final temperature, DefaultTarget if zero
	Target float64

	// Interval is the tick period, DefaultInterval if zero
	Interval time.Duration
}

// Save walks the setpoint from the current detector temperature up to the
// target, one step per tick, then returns.  A receive on stop abandons the
// walk early with no error; stop may be nil.  The first failing camera
// call ends the walk and is returned.
func (g *Guardian) Save(stop <-chan struct{}) error {
	step := g.Step
	if step == 0 {
		step = DefaultStep
	}
	target := g.Target
	if target == 0 {
		target = DefaultTarget
	}
	interval := g.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	t, err := g.Cam.Temperature()
	if err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for t < target {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}
		t += step
		if t > target {
			t = target
		}
		if err := g.Cam.SetTemperature(t); err != nil {
			return err
		}
	}
	return nil
}
