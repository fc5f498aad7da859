// Package sensor defines the contract between the frame source and the
// camera peripheral driver, plus the concrete drivers shipped with CamGo.
//
// A Backend owns the sensor interface and a fixed pool of frame buffers.
// It is programmed once with Init, hands out buffers with FrameBufferGet
// and takes them back with FrameBufferReturn.
package sensor

import (
	"errors"
	"fmt"
	"strings"
)

// Backend is the driver layer performing register-level sensor control
// and buffer management. Thread safety is not part of the contract.
type Backend interface {
	// Init programs the clock generator and sensor interface and
	// allocates cfg.FBCount frame buffers.
	Init(cfg Config) Status
	// SensorHandle gives access to the sensor control registers.
	SensorHandle() (Control, error)
	// FrameBufferGet blocks until a frame is captured. It returns an
	// error wrapping ErrNoFrame when no buffer can be produced right now.
	FrameBufferGet() (*Buffer, error)
	// FrameBufferReturn gives a buffer back to the pool.
	FrameBufferReturn(b *Buffer)
	// Deinit stops capture and frees the pool.
	Deinit() Status
}

// ErrNoFrame reports that no frame buffer is available (pool exhausted,
// capture timeout). It is transient.
var ErrNoFrame = errors.New("sensor: no frame buffer available")

// ErrNotInitialized is returned by backends used before Init.
var ErrNotInitialized = errors.New("sensor: backend not initialized")

// Status is a driver status code. Codes follow the numbering of the
// ESP-IDF camera driver so logs can be compared with firmware output.
type Status int

const (
	OK                      Status = 0
	ErrFail                 Status = -1
	ErrNoMem                Status = 0x101
	ErrInvalidArg           Status = 0x102
	ErrInvalidState         Status = 0x103
	ErrNotSupported         Status = 0x106
	ErrTimeout              Status = 0x107
	ErrCameraNotDetected    Status = 0x20001
	ErrFailedToSetFrameSize Status = 0x20002
	ErrFailedToSetOutFormat Status = 0x20003
	ErrCameraNotSupported   Status = 0x20004
)

var statusNames = map[Status]string{
	OK:                      "OK",
	ErrFail:                 "FAIL",
	ErrNoMem:                "NO_MEM",
	ErrInvalidArg:           "INVALID_ARG",
	ErrInvalidState:         "INVALID_STATE",
	ErrNotSupported:         "NOT_SUPPORTED",
	ErrTimeout:              "TIMEOUT",
	ErrCameraNotDetected:    "CAMERA_NOT_DETECTED",
	ErrFailedToSetFrameSize: "FAILED_TO_SET_FRAME_SIZE",
	ErrFailedToSetOutFormat: "FAILED_TO_SET_OUT_FORMAT",
	ErrCameraNotSupported:   "NOT_SUPPORTED_CAMERA",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", int(s))
}

// PixelFormat is the encoding of captured pixel data.
type PixelFormat int

const (
	FormatRGB565 PixelFormat = iota + 1
	FormatYUV422
	FormatGrayscale
	FormatJPEG
	FormatRAW // RGB888, 3 bytes per pixel
)

var formatNames = map[PixelFormat]string{
	FormatRGB565:    "rgb565",
	FormatYUV422:    "yuv422",
	FormatGrayscale: "grayscale",
	FormatJPEG:      "jpeg",
	FormatRAW:       "raw",
}

func (f PixelFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// Valid reports whether f is a known format.
func (f PixelFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// ParsePixelFormat parses a format name such as "jpeg" (case-insensitive).
func ParsePixelFormat(s string) (PixelFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel format %q", s)
}

// FrameSize is one of the fixed sensor output resolutions.
type FrameSize int

const (
	FrameSizeQQVGA FrameSize = iota + 1 // 160x120
	FrameSizeQCIF                       // 176x144
	FrameSizeHQVGA                      // 240x176
	FrameSizeQVGA                       // 320x240
	FrameSizeCIF                        // 400x296
	FrameSizeHVGA                       // 480x320
	FrameSizeVGA                        // 640x480
	FrameSizeSVGA                       // 800x600
	FrameSizeXGA                        // 1024x768
	FrameSizeHD                         // 1280x720
	FrameSizeSXGA                       // 1280x1024
	FrameSizeUXGA                       // 1600x1200
)

type resolution struct {
	name          string
	width, height int
}

var resolutions = map[FrameSize]resolution{
	FrameSizeQQVGA: {"qqvga", 160, 120},
	FrameSizeQCIF:  {"qcif", 176, 144},
	FrameSizeHQVGA: {"hqvga", 240, 176},
	FrameSizeQVGA:  {"qvga", 320, 240},
	FrameSizeCIF:   {"cif", 400, 296},
	FrameSizeHVGA:  {"hvga", 480, 320},
	FrameSizeVGA:   {"vga", 640, 480},
	FrameSizeSVGA:  {"svga", 800, 600},
	FrameSizeXGA:   {"xga", 1024, 768},
	FrameSizeHD:    {"hd", 1280, 720},
	FrameSizeSXGA:  {"sxga", 1280, 1024},
	FrameSizeUXGA:  {"uxga", 1600, 1200},
}

func (s FrameSize) String() string {
	if r, ok := resolutions[s]; ok {
		return r.name
	}
	return fmt.Sprintf("FrameSize(%d)", int(s))
}

// Valid reports whether s is a known frame size.
func (s FrameSize) Valid() bool {
	_, ok := resolutions[s]
	return ok
}

// Dimensions returns the width and height in pixels (0,0 if unknown).
func (s FrameSize) Dimensions() (width, height int) {
	r := resolutions[s]
	return r.width, r.height
}

// ParseFrameSize parses a frame size name such as "vga" (case-insensitive).
func ParseFrameSize(s string) (FrameSize, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for fs, r := range resolutions {
		if r.name == s {
			return fs, nil
		}
	}
	return 0, fmt.Errorf("unknown frame size %q", s)
}

// FrameBytes returns the slot size needed for one frame. JPEG is
// compressed so its size is unknown up front; the slot is sized like a
// 16-bit raw frame, which a sensor JPEG never exceeds in practice.
func FrameBytes(f PixelFormat, s FrameSize) int {
	w, h := s.Dimensions()
	switch f {
	case FormatGrayscale:
		return w * h
	case FormatRAW:
		return w * h * 3
	case FormatRGB565, FormatYUV422, FormatJPEG:
		return w * h * 2
	default:
		return 0
	}
}

// Pins maps each logical sensor line to a physical GPIO number.
// PWDN and Reset may be NotConnected.
type Pins struct {
	PWDN  int
	Reset int
	XCLK  int
	SIOD  int // SCCB data
	SIOC  int // SCCB clock
	D     [8]int
	VSYNC int
	HREF  int
	PCLK  int
}

// Roles returns every pin keyed by role name, in a stable order.
func (p Pins) Roles() []PinRole {
	roles := []PinRole{
		{"pwdn", p.PWDN},
		{"reset", p.Reset},
		{"xclk", p.XCLK},
		{"sccb_sda", p.SIOD},
		{"sccb_scl", p.SIOC},
	}
	for i := len(p.D) - 1; i >= 0; i-- {
		roles = append(roles, PinRole{fmt.Sprintf("d%d", i), p.D[i]})
	}
	return append(roles,
		PinRole{"vsync", p.VSYNC},
		PinRole{"href", p.HREF},
		PinRole{"pclk", p.PCLK},
	)
}

// PinRole pairs a logical role with its GPIO number.
type PinRole struct {
	Role string
	Pin  int
}

// NotConnected marks PWDN or Reset as hard-wired on the board.
const NotConnected = -1

// Config is what a backend needs to program the hardware.
type Config struct {
	Pins        Pins
	XCLKFreqHz  int
	LEDCTimer   int
	LEDCChannel int
	PixelFormat PixelFormat
	FrameSize   FrameSize
	JPEGQuality int // 0-63, lower means better quality
	FBCount     int
}

// checkConfig performs the validation every backend shares.
func checkConfig(cfg Config) Status {
	if cfg.FBCount < 1 || cfg.JPEGQuality < 0 || cfg.JPEGQuality > 63 {
		return ErrInvalidArg
	}
	if !cfg.FrameSize.Valid() {
		return ErrFailedToSetFrameSize
	}
	if !cfg.PixelFormat.Valid() {
		return ErrFailedToSetOutFormat
	}
	seen := make(map[int]bool)
	for _, r := range cfg.Pins.Roles() {
		if r.Pin == NotConnected {
			continue
		}
		if seen[r.Pin] {
			return ErrInvalidArg
		}
		seen[r.Pin] = true
	}
	return OK
}
