package camera

import (
	"errors"
	"testing"

	"github.com/cjeanneret/CamGo/internal/hw/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// aiThinkerPins is the AI-Thinker ESP32-CAM wiring.
var aiThinkerPins = sensor.Pins{
	PWDN: 32, Reset: sensor.NotConnected, XCLK: 0, SIOD: 26, SIOC: 27,
	D:     [8]int{5, 18, 19, 21, 36, 39, 34, 35},
	VSYNC: 25, HREF: 23, PCLK: 22,
}

func validBuilder(fbCount int) *Builder {
	return NewCaptureConfig().
		Pins(aiThinkerPins).
		XCLKFreqHz(20_000_000).
		LEDC(0, 0).
		PixelFormat(sensor.FormatJPEG).
		FrameSize(sensor.FrameSizeQVGA).
		JPEGQuality(10).
		FBCount(fbCount)
}

func buildConfig(t *testing.T, fbCount int) CaptureConfig {
	t.Helper()
	cfg, err := validBuilder(fbCount).Build()
	require.NoError(t, err)
	return cfg
}

func TestBuild_Valid(t *testing.T) {
	cfg := buildConfig(t, 2)

	assert.True(t, cfg.Valid())
	assert.Equal(t, aiThinkerPins, cfg.Pins())
	assert.Equal(t, 20_000_000, cfg.XCLKFreqHz())
	assert.Equal(t, 0, cfg.LEDCTimer())
	assert.Equal(t, 0, cfg.LEDCChannel())
	assert.Equal(t, sensor.FormatJPEG, cfg.PixelFormat())
	assert.Equal(t, sensor.FrameSizeQVGA, cfg.FrameSize())
	assert.Equal(t, 10, cfg.JPEGQuality())
	assert.Equal(t, 2, cfg.FBCount())
	assert.Contains(t, cfg.String(), "qvga jpeg q=10")
}

func TestBuild_MissingFields(t *testing.T) {
	_, err := NewCaptureConfig().Pins(aiThinkerPins).FBCount(1).Build()

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "not set", cfgErr.Reason)
	assert.Contains(t, cfgErr.Field, "xclk_freq_hz")
	assert.Contains(t, cfgErr.Field, "jpeg_quality")
	assert.NotContains(t, cfgErr.Field, "fb_count")
}

func TestBuild_ZeroPinIsValid(t *testing.T) {
	// GPIO0 is the XCLK line on the AI-Thinker board.
	cfg := buildConfig(t, 1)
	assert.Equal(t, 0, cfg.Pins().XCLK)
}

func TestBuild_RejectsInvalidFields(t *testing.T) {
	cases := []struct {
		name  string
		b     *Builder
		field string
	}{
		{"xclk_low", validBuilder(1).XCLKFreqHz(999_999), "xclk_freq_hz"},
		{"xclk_high", validBuilder(1).XCLKFreqHz(40_000_001), "xclk_freq_hz"},
		{"ledc_timer", validBuilder(1).LEDC(4, 0), "ledc_timer"},
		{"ledc_channel", validBuilder(1).LEDC(0, 8), "ledc_channel"},
		{"pixel_format", validBuilder(1).PixelFormat(0), "pixel_format"},
		{"frame_size", validBuilder(1).FrameSize(42), "frame_size"},
		{"quality_negative", validBuilder(1).JPEGQuality(-1), "jpeg_quality"},
		{"quality_high", validBuilder(1).JPEGQuality(64), "jpeg_quality"},
		{"fb_count", validBuilder(0), "fb_count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := tc.b.Build()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
			assert.False(t, cfg.Valid())
		})
	}
}

func TestBuild_PinConflict(t *testing.T) {
	pins := aiThinkerPins
	pins.PCLK = pins.D[0]

	_, err := validBuilder(1).Pins(pins).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pins.pclk")
	assert.Contains(t, err.Error(), "already used by d0")
}

func TestBuild_OnlyPowerLinesMayBeUnconnected(t *testing.T) {
	pins := aiThinkerPins
	pins.Reset = sensor.NotConnected
	pins.PWDN = sensor.NotConnected
	_, err := validBuilder(1).Pins(pins).Build()
	assert.NoError(t, err)

	pins.VSYNC = sensor.NotConnected
	_, err = validBuilder(1).Pins(pins).Build()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "pins.vsync", cfgErr.Field)
}

func TestBuild_PinOutOfRange(t *testing.T) {
	pins := aiThinkerPins
	pins.D[7] = 64
	_, err := validBuilder(1).Pins(pins).Build()
	assert.ErrorContains(t, err, "pins.d7")
}

func TestBuild_ConfigIsACopy(t *testing.T) {
	b := validBuilder(1)
	cfg, err := b.Build()
	require.NoError(t, err)

	b.FBCount(4)
	assert.Equal(t, 1, cfg.FBCount())
}

func TestTuning_Empty(t *testing.T) {
	assert.True(t, Tuning{}.Empty())
	v := 1
	assert.False(t, Tuning{Contrast: &v}.Empty())
}
