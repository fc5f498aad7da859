package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cjeanneret/CamGo/internal/camera"
	"github.com/cjeanneret/CamGo/internal/hw/sensor"
	"gopkg.in/yaml.v3"
)

// PinsConfig maps sensor roles to GPIO numbers. Every role must be
// present; -1 marks PWDN or RESET as not connected.
type PinsConfig struct {
	PWDN    *int `yaml:"pwdn"`
	Reset   *int `yaml:"reset"`
	XCLK    *int `yaml:"xclk"`
	SCCBSDA *int `yaml:"sccb_sda"`
	SCCBSCL *int `yaml:"sccb_scl"`
	D7      *int `yaml:"d7"`
	D6      *int `yaml:"d6"`
	D5      *int `yaml:"d5"`
	D4      *int `yaml:"d4"`
	D3      *int `yaml:"d3"`
	D2      *int `yaml:"d2"`
	D1      *int `yaml:"d1"`
	D0      *int `yaml:"d0"`
	VSYNC   *int `yaml:"vsync"`
	HREF    *int `yaml:"href"`
	PCLK    *int `yaml:"pclk"`
}

// ClockConfig describes the external clock fed to the sensor.
type ClockConfig struct {
	XCLKFreqHz  int `yaml:"xclk_freq_hz"` // default 20 MHz
	LEDCTimer   int `yaml:"ledc_timer"`
	LEDCChannel int `yaml:"ledc_channel"`
}

// CaptureConfig selects the image the sensor produces.
type CaptureConfig struct {
	PixelFormat string `yaml:"pixel_format"` // jpeg, raw, grayscale, rgb565, yuv422
	FrameSize   string `yaml:"frame_size"`   // qqvga ... uxga
	JPEGQuality *int   `yaml:"jpeg_quality"` // 0-63, lower is better
	FBCount     int    `yaml:"fb_count"`     // frame buffers in the pool
}

// TuningConfig is optional sensor tuning. Absent keys keep the sensor default.
type TuningConfig struct {
	Brightness   *int  `yaml:"brightness"`
	Contrast     *int  `yaml:"contrast"`
	Saturation   *int  `yaml:"saturation"`
	WhiteBalance *bool `yaml:"white_balance"`
	Exposure     *bool `yaml:"auto_exposure"`
	AECValue     *int  `yaml:"aec_value"`
	Gain         *bool `yaml:"auto_gain"`
	AGCGain      *int  `yaml:"agc_gain"`
	HMirror      *bool `yaml:"hmirror"`
	VFlip        *bool `yaml:"vflip"`
}

// BackendConfig selects the sensor driver.
type BackendConfig struct {
	Type     string `yaml:"type"`      // "emulated" or "v4l2"
	Device   string `yaml:"device"`    // v4l2 device path
	Scene    string `yaml:"scene"`     // emulated: optional PNG/JPEG/BMP
	MockGPIO bool   `yaml:"mock_gpio"` // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// ConsoleConfig selects where init diagnostics are printed.
type ConsoleConfig struct {
	Port string `yaml:"port"` // serial device; empty means stdout
	Baud int    `yaml:"baud"`
}

// DefaultsConfig contains run parameters for the capture sequence.
type DefaultsConfig struct {
	Frames        int `yaml:"frames"`         // frames to capture per run
	RetryAttempts int `yaml:"retry_attempts"` // attempts per frame when no buffer is ready
	RetryDelayMs  int `yaml:"retry_delay_ms"` // delay between attempts
	IntervalMs    int `yaml:"interval_ms"`    // delay between frames
	DebugLevel    int `yaml:"debug_level"`    // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Pins     *PinsConfig    `yaml:"pins"`
	Clock    ClockConfig    `yaml:"clock"`
	Capture  CaptureConfig  `yaml:"capture"`
	Tuning   *TuningConfig  `yaml:"tuning,omitempty"` // optional
	Console  ConsoleConfig  `yaml:"console"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files whose parent directory is
// named configs.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Ext(abs) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// MaxConfigFileBytes caps the size of a config file.
const MaxConfigFileBytes = 64 << 10

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, validates it and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Backend
	switch cfg.Backend.Type {
	case "":
		cfg.Backend.Type = "emulated"
	case "emulated":
	case "v4l2":
		if cfg.Backend.Device == "" {
			cfg.Backend.Device = "/dev/video0"
		}
	default:
		return nil, fmt.Errorf("backend.type must be emulated or v4l2, got %q", cfg.Backend.Type)
	}

	// Pins are never defaulted: a wrong pin map can damage the board.
	if cfg.Pins == nil {
		return nil, fmt.Errorf("pins section is required")
	}
	if _, err := cfg.Pins.toSensor(); err != nil {
		return nil, err
	}

	if cfg.Clock.XCLKFreqHz == 0 {
		cfg.Clock.XCLKFreqHz = 20_000_000 // 20 MHz
	}
	if cfg.Capture.PixelFormat == "" {
		cfg.Capture.PixelFormat = "jpeg"
	}
	if cfg.Capture.FrameSize == "" {
		cfg.Capture.FrameSize = "vga"
	}
	if cfg.Capture.JPEGQuality == nil {
		q := 10
		cfg.Capture.JPEGQuality = &q
	}
	if cfg.Capture.FBCount == 0 {
		cfg.Capture.FBCount = 1
	}
	if cfg.Console.Baud == 0 {
		cfg.Console.Baud = 115200
	}

	if cfg.Defaults.Frames <= 0 {
		cfg.Defaults.Frames = 1
	}
	if cfg.Defaults.RetryAttempts <= 0 {
		cfg.Defaults.RetryAttempts = 3
	}
	if cfg.Defaults.RetryDelayMs <= 0 {
		cfg.Defaults.RetryDelayMs = 100
	}
	if cfg.Defaults.IntervalMs < 0 {
		return nil, fmt.Errorf("interval_ms must be >= 0, got %d", cfg.Defaults.IntervalMs)
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	// Build once so a bad value is reported at load time.
	if _, err := cfg.CaptureConfig(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

type pinField struct {
	name string
	v    *int
	dst  *int
}

func (p *PinsConfig) toSensor() (sensor.Pins, error) {
	var out sensor.Pins
	fields := []pinField{
		{"pwdn", p.PWDN, &out.PWDN},
		{"reset", p.Reset, &out.Reset},
		{"xclk", p.XCLK, &out.XCLK},
		{"sccb_sda", p.SCCBSDA, &out.SIOD},
		{"sccb_scl", p.SCCBSCL, &out.SIOC},
	}
	for i, d := range []*int{p.D0, p.D1, p.D2, p.D3, p.D4, p.D5, p.D6, p.D7} {
		fields = append(fields, pinField{fmt.Sprintf("d%d", i), d, &out.D[i]})
	}
	fields = append(fields,
		pinField{"vsync", p.VSYNC, &out.VSYNC},
		pinField{"href", p.HREF, &out.HREF},
		pinField{"pclk", p.PCLK, &out.PCLK},
	)

	for _, f := range fields {
		if f.v == nil {
			return sensor.Pins{}, fmt.Errorf("pins.%s is required", f.name)
		}
		*f.dst = *f.v
	}
	return out, nil
}

// CaptureConfig builds the validated camera configuration.
func (c *Config) CaptureConfig() (camera.CaptureConfig, error) {
	pins, err := c.Pins.toSensor()
	if err != nil {
		return camera.CaptureConfig{}, err
	}
	pf, err := sensor.ParsePixelFormat(c.Capture.PixelFormat)
	if err != nil {
		return camera.CaptureConfig{}, fmt.Errorf("capture.pixel_format: %w", err)
	}
	fs, err := sensor.ParseFrameSize(c.Capture.FrameSize)
	if err != nil {
		return camera.CaptureConfig{}, fmt.Errorf("capture.frame_size: %w", err)
	}

	return camera.NewCaptureConfig().
		Pins(pins).
		XCLKFreqHz(c.Clock.XCLKFreqHz).
		LEDC(c.Clock.LEDCTimer, c.Clock.LEDCChannel).
		PixelFormat(pf).
		FrameSize(fs).
		JPEGQuality(*c.Capture.JPEGQuality).
		FBCount(c.Capture.FBCount).
		Build()
}

// SensorTuning returns the tuning section, or nil when there is none.
func (c *Config) SensorTuning() camera.SensorTuning {
	if c.Tuning == nil {
		return nil
	}
	t := camera.Tuning{
		Brightness:   c.Tuning.Brightness,
		Contrast:     c.Tuning.Contrast,
		Saturation:   c.Tuning.Saturation,
		WhiteBalance: c.Tuning.WhiteBalance,
		Exposure:     c.Tuning.Exposure,
		AECValue:     c.Tuning.AECValue,
		Gain:         c.Tuning.Gain,
		AGCGain:      c.Tuning.AGCGain,
		HMirror:      c.Tuning.HMirror,
		VFlip:        c.Tuning.VFlip,
	}
	if t.Empty() {
		return nil
	}
	return t
}

// RetryDelay returns the delay between acquire attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Defaults.RetryDelayMs) * time.Millisecond
}

// Interval returns the delay between two captured frames.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Defaults.IntervalMs) * time.Millisecond
}
