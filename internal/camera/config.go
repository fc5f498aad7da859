package camera

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/CamGo/internal/hw/sensor"
)

// Limits enforced when building a CaptureConfig. Backends may be stricter.
const (
	MaxGPIO        = 48
	MinXCLKFreqHz  = 1_000_000
	MaxXCLKFreqHz  = 40_000_000
	MaxLEDCTimer   = 3
	MaxLEDCChannel = 7
	MaxJPEGQuality = 63
)

// ConfigError reports a field rejected by the builder.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("capture config: %s: %s", e.Field, e.Reason)
}

// CaptureConfig is the validated, immutable capture configuration.
// The zero value is not usable; build one with NewCaptureConfig.
type CaptureConfig struct {
	c     sensor.Config
	valid bool
}

// Valid reports whether the config was produced by a successful Build.
func (c CaptureConfig) Valid() bool { return c.valid }

func (c CaptureConfig) Pins() sensor.Pins               { return c.c.Pins }
func (c CaptureConfig) XCLKFreqHz() int                 { return c.c.XCLKFreqHz }
func (c CaptureConfig) LEDCTimer() int                  { return c.c.LEDCTimer }
func (c CaptureConfig) LEDCChannel() int                { return c.c.LEDCChannel }
func (c CaptureConfig) PixelFormat() sensor.PixelFormat { return c.c.PixelFormat }
func (c CaptureConfig) FrameSize() sensor.FrameSize     { return c.c.FrameSize }
func (c CaptureConfig) JPEGQuality() int                { return c.c.JPEGQuality }
func (c CaptureConfig) FBCount() int                    { return c.c.FBCount }

// backend returns the record handed to the driver. It is a copy, so the
// driver cannot alter the config.
func (c CaptureConfig) backend() sensor.Config { return c.c }

func (c CaptureConfig) String() string {
	return fmt.Sprintf("%v %v q=%d xclk=%dHz fb=%d ledc=%d/%d",
		c.c.FrameSize, c.c.PixelFormat, c.c.JPEGQuality, c.c.XCLKFreqHz, c.c.FBCount, c.c.LEDCTimer, c.c.LEDCChannel)
}

type field uint

const (
	fieldPins field = 1 << iota
	fieldXCLK
	fieldLEDC
	fieldPixelFormat
	fieldFrameSize
	fieldJPEGQuality
	fieldFBCount

	allFields = fieldPins | fieldXCLK | fieldLEDC | fieldPixelFormat | fieldFrameSize | fieldJPEGQuality | fieldFBCount
)

var fieldNames = []struct {
	f    field
	name string
}{
	{fieldPins, "pins"},
	{fieldXCLK, "xclk_freq_hz"},
	{fieldLEDC, "ledc_timer/ledc_channel"},
	{fieldPixelFormat, "pixel_format"},
	{fieldFrameSize, "frame_size"},
	{fieldJPEGQuality, "jpeg_quality"},
	{fieldFBCount, "fb_count"},
}

// Builder assembles a CaptureConfig. Every setter must be called: there
// are no defaults, so a forgotten field is an error and not a silent zero.
type Builder struct {
	c   sensor.Config
	set field
}

// NewCaptureConfig starts a Builder.
func NewCaptureConfig() *Builder {
	return &Builder{}
}

func (b *Builder) Pins(p sensor.Pins) *Builder {
	b.c.Pins = p
	b.set |= fieldPins
	return b
}

func (b *Builder) XCLKFreqHz(hz int) *Builder {
	b.c.XCLKFreqHz = hz
	b.set |= fieldXCLK
	return b
}

func (b *Builder) LEDC(timer, channel int) *Builder {
	b.c.LEDCTimer = timer
	b.c.LEDCChannel = channel
	b.set |= fieldLEDC
	return b
}

func (b *Builder) PixelFormat(f sensor.PixelFormat) *Builder {
	b.c.PixelFormat = f
	b.set |= fieldPixelFormat
	return b
}

func (b *Builder) FrameSize(s sensor.FrameSize) *Builder {
	b.c.FrameSize = s
	b.set |= fieldFrameSize
	return b
}

func (b *Builder) JPEGQuality(q int) *Builder {
	b.c.JPEGQuality = q
	b.set |= fieldJPEGQuality
	return b
}

func (b *Builder) FBCount(n int) *Builder {
	b.c.FBCount = n
	b.set |= fieldFBCount
	return b
}

// Build validates every field and returns the immutable config.
func (b *Builder) Build() (CaptureConfig, error) {
	if b.set != allFields {
		var missing []string
		for _, fn := range fieldNames {
			if b.set&fn.f == 0 {
				missing = append(missing, fn.name)
			}
		}
		return CaptureConfig{}, &ConfigError{Field: strings.Join(missing, ", "), Reason: "not set"}
	}

	if err := validatePins(b.c.Pins); err != nil {
		return CaptureConfig{}, err
	}
	c := b.c
	switch {
	case c.XCLKFreqHz < MinXCLKFreqHz || c.XCLKFreqHz > MaxXCLKFreqHz:
		return CaptureConfig{}, &ConfigError{"xclk_freq_hz", fmt.Sprintf("%d out of range [%d,%d]", c.XCLKFreqHz, MinXCLKFreqHz, MaxXCLKFreqHz)}
	case c.LEDCTimer < 0 || c.LEDCTimer > MaxLEDCTimer:
		return CaptureConfig{}, &ConfigError{"ledc_timer", fmt.Sprintf("%d out of range [0,%d]", c.LEDCTimer, MaxLEDCTimer)}
	case c.LEDCChannel < 0 || c.LEDCChannel > MaxLEDCChannel:
		return CaptureConfig{}, &ConfigError{"ledc_channel", fmt.Sprintf("%d out of range [0,%d]", c.LEDCChannel, MaxLEDCChannel)}
	case !c.PixelFormat.Valid():
		return CaptureConfig{}, &ConfigError{"pixel_format", fmt.Sprintf("unknown format %v", c.PixelFormat)}
	case !c.FrameSize.Valid():
		return CaptureConfig{}, &ConfigError{"frame_size", fmt.Sprintf("unknown size %v", c.FrameSize)}
	case c.JPEGQuality < 0 || c.JPEGQuality > MaxJPEGQuality:
		return CaptureConfig{}, &ConfigError{"jpeg_quality", fmt.Sprintf("%d out of range [0,%d]", c.JPEGQuality, MaxJPEGQuality)}
	case c.FBCount < 1:
		return CaptureConfig{}, &ConfigError{"fb_count", fmt.Sprintf("must be >= 1, got %d", c.FBCount)}
	}

	return CaptureConfig{c: c, valid: true}, nil
}

// validatePins checks ranges and that no GPIO serves two roles. Only
// PWDN and RESET may be left unconnected.
func validatePins(p sensor.Pins) error {
	used := make(map[int]string)
	for _, r := range p.Roles() {
		if r.Pin == sensor.NotConnected {
			if r.Role == "pwdn" || r.Role == "reset" {
				continue
			}
			return &ConfigError{"pins." + r.Role, "must be connected"}
		}
		if r.Pin < 0 || r.Pin > MaxGPIO {
			return &ConfigError{"pins." + r.Role, fmt.Sprintf("GPIO %d out of range [0,%d]", r.Pin, MaxGPIO)}
		}
		if other, ok := used[r.Pin]; ok {
			return &ConfigError{"pins." + r.Role, fmt.Sprintf("GPIO %d already used by %s", r.Pin, other)}
		}
		used[r.Pin] = r.Role
	}
	return nil
}
