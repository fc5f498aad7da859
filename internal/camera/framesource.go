// Package camera owns the frame acquisition lifecycle on top of a sensor
// backend: configure, initialize, then acquire and release frames.
//
// A FrameSource is not safe for concurrent use. Callers sharing one
// across goroutines must serialize access themselves.
package camera

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/CamGo/internal/debug"
	"github.com/cjeanneret/CamGo/internal/hw/sensor"
)

// State is the lifecycle state of a FrameSource.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateCapturing
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateCapturing:
		return "capturing"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Diagnostics receives human-readable status lines.
type Diagnostics interface {
	Printf(format string, args ...interface{})
}

type debugDiagnostics struct{}

func (debugDiagnostics) Printf(format string, args ...interface{}) {
	debug.Info(format, args...)
}

// FrameSource drives a sensor.Backend through
// Uninitialized -> Ready -> (Capturing <-> Ready) -> Shutdown.
type FrameSource struct {
	backend sensor.Backend
	diag    Diagnostics
	tuning  SensorTuning

	cfg   CaptureConfig
	state State
	out   map[*Frame]struct{}
}

// Option configures a FrameSource.
type Option func(*FrameSource)

// WithDiagnostics sends the init status lines to d instead of the debug log.
func WithDiagnostics(d Diagnostics) Option {
	return func(s *FrameSource) { s.diag = d }
}

// WithTuning sets the tuning applied by ConfigureSensor.
func WithTuning(t SensorTuning) Option {
	return func(s *FrameSource) { s.tuning = t }
}

// New creates an uninitialized FrameSource over backend.
func New(backend sensor.Backend, opts ...Option) *FrameSource {
	s := &FrameSource{
		backend: backend,
		diag:    debugDiagnostics{},
		out:     make(map[*Frame]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *FrameSource) State() State { return s.state }

// Config returns the config passed to a successful Initialize.
func (s *FrameSource) Config() CaptureConfig { return s.cfg }

// Depth returns the buffer pool size, 0 before initialization.
func (s *FrameSource) Depth() int {
	if s.state != StateReady && s.state != StateCapturing {
		return 0
	}
	return s.cfg.FBCount()
}

// Available returns how many more frames can be checked out.
func (s *FrameSource) Available() int {
	return s.Depth() - len(s.out)
}

// Initialize programs the backend with cfg. When the backend rejects it
// the returned error is an *InitError carrying the backend code, and the
// source stays uninitialized.
func (s *FrameSource) Initialize(cfg CaptureConfig) error {
	switch s.state {
	case StateShutdown:
		return ErrClosed
	case StateReady, StateCapturing:
		return ErrAlreadyInitialized
	}
	if !cfg.Valid() {
		return &ConfigError{Field: "config", Reason: "not built with NewCaptureConfig"}
	}

	debug.PrintStruct("Capture config", cfg.backend())

	if code := s.backend.Init(cfg.backend()); code != sensor.OK {
		s.diag.Printf("Camera init failed with error 0x%x", int(code))
		return &InitError{Code: code}
	}
	s.diag.Printf("Camera init succeeded")

	s.cfg = cfg
	s.state = StateReady
	return nil
}

// ConfigureSensor obtains the sensor handle and applies the tuning given
// with WithTuning. With no tuning it leaves the power-on defaults and
// says so in the debug log.
func (s *FrameSource) ConfigureSensor() error {
	if err := s.checkReady(); err != nil {
		return err
	}

	ctrl, err := s.backend.SensorHandle()
	if err != nil {
		return fmt.Errorf("camera: sensor handle: %w", err)
	}
	if s.tuning == nil {
		debug.Info("Sensor tuning not configured, keeping power-on defaults")
		return nil
	}
	if err := s.tuning.Apply(ctrl); err != nil {
		return fmt.Errorf("camera: configure sensor: %w", err)
	}
	debug.Verbose("Sensor tuning applied")
	return nil
}

func (s *FrameSource) checkReady() error {
	switch s.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateShutdown:
		return ErrClosed
	}
	return nil
}

// AcquireFrame blocks until the backend delivers a frame. It fails with
// ErrCaptureUnavailable when every buffer is checked out or the backend
// has none ready, and with ErrCaptureFault on sensor errors. There is no
// retry here.
func (s *FrameSource) AcquireFrame() (*Frame, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if s.Available() <= 0 {
		return nil, ErrCaptureUnavailable
	}

	s.state = StateCapturing
	buf, err := s.backend.FrameBufferGet()
	s.state = StateReady

	switch {
	case errors.Is(err, sensor.ErrNoFrame):
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrCaptureFault, err)
	case buf == nil:
		return nil, ErrCaptureUnavailable
	}

	f := &Frame{src: s, buf: buf}
	s.out[f] = struct{}{}
	debug.Frame("acquired", buf.Seq, len(buf.Data))
	return f, nil
}

// ReleaseFrame hands f back to the pool. A nil frame, a frame already
// released or a frame from another source is ignored.
func (s *FrameSource) ReleaseFrame(f *Frame) {
	if f == nil {
		return
	}
	if _, ok := s.out[f]; !ok {
		return
	}
	delete(s.out, f)

	seq, n := f.buf.Seq, len(f.buf.Data)
	s.backend.FrameBufferReturn(f.buf)
	f.buf = nil
	debug.Frame("released", seq, n)
}

// Close stops the backend and frees the pool. Frames still checked out
// become invalid.
func (s *FrameSource) Close() error {
	switch s.state {
	case StateShutdown:
		return ErrClosed
	case StateUninitialized:
		s.state = StateShutdown
		return nil
	}

	for f := range s.out {
		f.buf = nil
	}
	clear(s.out)
	s.state = StateShutdown

	if code := s.backend.Deinit(); code != sensor.OK {
		return fmt.Errorf("camera: deinit failed with error 0x%x (%v)", int(code), code)
	}
	return nil
}
