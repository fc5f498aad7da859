package sensor

import "fmt"

// Control is the sensor register interface obtained from a backend.
// Ranges follow the OV2640 driver.
type Control interface {
	SetFrameSize(FrameSize) error
	SetQuality(q int) error        // 0-63
	SetBrightness(level int) error // -2..2
	SetContrast(level int) error   // -2..2
	SetSaturation(level int) error // -2..2
	SetWhiteBalance(enable bool) error
	SetExposureControl(enable bool) error
	SetAECValue(value int) error // 0-1200
	SetGainControl(enable bool) error
	SetAGCGain(gain int) error // 0-30
	SetHMirror(enable bool) error
	SetVFlip(enable bool) error
}

// Registers is the register file kept by the emulated sensor.
type Registers struct {
	FrameSize    FrameSize
	Quality      int
	Brightness   int
	Contrast     int
	Saturation   int
	WhiteBalance bool
	AEC          bool
	AECValue     int
	AGC          bool
	AGCGain      int
	HMirror      bool
	VFlip        bool
}

// defaultRegisters is the power-on state.
func defaultRegisters(cfg Config) Registers {
	return Registers{
		FrameSize:    cfg.FrameSize,
		Quality:      cfg.JPEGQuality,
		WhiteBalance: true,
		AEC:          true,
		AECValue:     300,
		AGC:          true,
	}
}

// registerControl writes the emulated register file under the sensor lock.
type registerControl struct {
	e *Emulated
}

func (c registerControl) write(f func(r *Registers)) {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	f(&c.e.regs)
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("sensor: %s %d out of range [%d,%d]", name, v, lo, hi)
	}
	return nil
}

// SetFrameSize switches the output resolution. The pool is not
// reallocated, so the new size must fit the slots sized at Init.
func (c registerControl) SetFrameSize(fs FrameSize) error {
	if !fs.Valid() {
		return fmt.Errorf("sensor: invalid frame size %v", fs)
	}
	return c.e.resize(fs)
}

func (c registerControl) SetQuality(q int) error {
	if err := checkRange("quality", q, 0, 63); err != nil {
		return err
	}
	c.write(func(r *Registers) { r.Quality = q })
	return nil
}

func (c registerControl) SetBrightness(level int) error {
	if err := checkRange("brightness", level, -2, 2); err != nil {
		return err
	}
	c.write(func(r *Registers) { r.Brightness = level })
	return nil
}

func (c registerControl) SetContrast(level int) error {
	if err := checkRange("contrast", level, -2, 2); err != nil {
		return err
	}
	c.write(func(r *Registers) { r.Contrast = level })
	return nil
}

func (c registerControl) SetSaturation(level int) error {
	if err := checkRange("saturation", level, -2, 2); err != nil {
		return err
	}
	c.write(func(r *Registers) { r.Saturation = level })
	return nil
}

func (c registerControl) SetWhiteBalance(enable bool) error {
	c.write(func(r *Registers) { r.WhiteBalance = enable })
	return nil
}

func (c registerControl) SetExposureControl(enable bool) error {
	c.write(func(r *Registers) { r.AEC = enable })
	return nil
}

func (c registerControl) SetAECValue(value int) error {
	if err := checkRange("aec_value", value, 0, 1200); err != nil {
		return err
	}
	c.write(func(r *Registers) { r.AECValue = value })
	return nil
}

func (c registerControl) SetGainControl(enable bool) error {
	c.write(func(r *Registers) { r.AGC = enable })
	return nil
}

func (c registerControl) SetAGCGain(gain int) error {
	if err := checkRange("agc_gain", gain, 0, 30); err != nil {
		return err
	}
	c.write(func(r *Registers) { r.AGCGain = gain })
	return nil
}

func (c registerControl) SetHMirror(enable bool) error {
	c.write(func(r *Registers) { r.HMirror = enable })
	return nil
}

func (c registerControl) SetVFlip(enable bool) error {
	c.write(func(r *Registers) { r.VFlip = enable })
	return nil
}
