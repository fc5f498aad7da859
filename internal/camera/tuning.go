package camera

import (
	"fmt"

	"github.com/cjeanneret/CamGo/internal/hw/sensor"
)

// SensorTuning is applied by ConfigureSensor once the backend is up.
// Without one the sensor keeps its power-on defaults.
type SensorTuning interface {
	Apply(ctrl sensor.Control) error
}

// TuningFunc adapts a function to SensorTuning.
type TuningFunc func(ctrl sensor.Control) error

func (f TuningFunc) Apply(ctrl sensor.Control) error { return f(ctrl) }

// Tuning is a declarative SensorTuning. Nil fields are left untouched.
type Tuning struct {
	Brightness   *int
	Contrast     *int
	Saturation   *int
	WhiteBalance *bool
	Exposure     *bool // automatic exposure control
	AECValue     *int  // manual exposure, used when Exposure is false
	Gain         *bool // automatic gain control
	AGCGain      *int  // manual gain, used when Gain is false
	HMirror      *bool
	VFlip        *bool
}

// Empty reports whether no setting is present.
func (t Tuning) Empty() bool {
	return t == Tuning{}
}

// Apply writes each present setting. It stops at the first failure.
func (t Tuning) Apply(ctrl sensor.Control) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"brightness", intStep(t.Brightness, ctrl.SetBrightness)},
		{"contrast", intStep(t.Contrast, ctrl.SetContrast)},
		{"saturation", intStep(t.Saturation, ctrl.SetSaturation)},
		{"white_balance", boolStep(t.WhiteBalance, ctrl.SetWhiteBalance)},
		{"exposure", boolStep(t.Exposure, ctrl.SetExposureControl)},
		{"aec_value", intStep(t.AECValue, ctrl.SetAECValue)},
		{"gain", boolStep(t.Gain, ctrl.SetGainControl)},
		{"agc_gain", intStep(t.AGCGain, ctrl.SetAGCGain)},
		{"hmirror", boolStep(t.HMirror, ctrl.SetHMirror)},
		{"vflip", boolStep(t.VFlip, ctrl.SetVFlip)},
	}
	for _, s := range steps {
		if s.run == nil {
			continue
		}
		if err := s.run(); err != nil {
			return fmt.Errorf("tuning %s: %w", s.name, err)
		}
	}
	return nil
}

func intStep(v *int, set func(int) error) func() error {
	if v == nil {
		return nil
	}
	return func() error { return set(*v) }
}

func boolStep(v *bool, set func(bool) error) func() error {
	if v == nil {
		return nil
	}
	return func() error { return set(*v) }
}
