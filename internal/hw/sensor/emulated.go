package sensor

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/cjeanneret/CamGo/internal/debug"
	"github.com/cjeanneret/CamGo/internal/hw/gpio"
)

// Clock limits accepted by the emulated sensor interface.
const (
	MinXCLKFreqHz = 1_000_000
	MaxXCLKFreqHz = 40_000_000
)

// Power sequence timings for the OV2640 PWDN/RESET lines.
const (
	defaultResetHold   = 10 * time.Millisecond
	defaultResetSettle = 10 * time.Millisecond
)

// DefaultFrameMemory is the frame buffer budget of the emulated board,
// the 4 MB PSRAM fitted on ESP32-CAM modules.
const DefaultFrameMemory = 4 << 20

// ErrSensorFault is the default fault raised by InjectFault.
var ErrSensorFault = errors.New("sensor: SCCB bus error")

// Emulated is a software sensor. It drives the PWDN/RESET lines through a
// GPIO driver like the real board does, then produces colour bars (or a
// scene image) in the configured pixel format.
type Emulated struct {
	mu sync.Mutex

	gpio        gpio.Driver
	scene       image.Image
	now         func() time.Time
	resetHold   time.Duration
	resetSettle time.Duration
	frameMem    int

	cfg      Config
	slotSize int
	pool     *Pool
	regs     Registers
	frame    *image.RGBA
	shift    int
	fault    error
	inited   bool
}

// EmulatedOption configures an Emulated backend.
type EmulatedOption func(*Emulated)

// WithGPIO makes Init run the power-up sequence on PWDN and RESET.
func WithGPIO(d gpio.Driver) EmulatedOption {
	return func(e *Emulated) { e.gpio = d }
}

// WithScene replaces the colour bars with a still image, scaled to the
// frame size.
func WithScene(img image.Image) EmulatedOption {
	return func(e *Emulated) { e.scene = img }
}

// WithClock sets the time source used for frame timestamps.
func WithClock(now func() time.Time) EmulatedOption {
	return func(e *Emulated) { e.now = now }
}

// WithResetTiming overrides how long RESET is held low and how long the
// sensor is given to settle afterwards.
func WithResetTiming(hold, settle time.Duration) EmulatedOption {
	return func(e *Emulated) {
		e.resetHold = hold
		e.resetSettle = settle
	}
}

// WithFrameMemory sets how many bytes of frame buffers Init may
// allocate in total.
func WithFrameMemory(n int) EmulatedOption {
	return func(e *Emulated) { e.frameMem = n }
}

// NewEmulated creates an emulated sensor backend.
func NewEmulated(opts ...EmulatedOption) *Emulated {
	e := &Emulated{
		now:         time.Now,
		resetHold:   defaultResetHold,
		resetSettle: defaultResetSettle,
		frameMem:    DefaultFrameMemory,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emulated) Init(cfg Config) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	debug.Trace("emulated: Init %+v", cfg)

	if e.inited {
		return ErrInvalidState
	}
	if cfg.XCLKFreqHz < MinXCLKFreqHz {
		return ErrInvalidArg
	}
	if cfg.XCLKFreqHz > MaxXCLKFreqHz {
		return ErrNotSupported
	}
	if cfg.LEDCTimer < 0 || cfg.LEDCTimer > 3 || cfg.LEDCChannel < 0 || cfg.LEDCChannel > 7 {
		return ErrInvalidArg
	}
	if st := checkConfig(cfg); st != OK {
		return st
	}

	slotSize := FrameBytes(cfg.PixelFormat, cfg.FrameSize)
	if cfg.FBCount*slotSize > e.frameMem {
		debug.Verbose("emulated: %d x %d bytes exceeds frame memory %d", cfg.FBCount, slotSize, e.frameMem)
		return ErrNoMem
	}

	if err := e.powerUp(cfg.Pins); err != nil {
		debug.Error(err)
		return ErrCameraNotDetected
	}

	pool, err := NewPool(cfg.FBCount, slotSize)
	if err != nil {
		return ErrNoMem
	}

	w, h := cfg.FrameSize.Dimensions()
	e.frame = e.newFrame(w, h)
	e.cfg = cfg
	e.slotSize = slotSize
	e.pool = pool
	e.regs = defaultRegisters(cfg)
	e.shift = 0
	e.inited = true
	debug.Verbose("emulated: %dx%d %v, %d buffer(s) of %d bytes", w, h, cfg.PixelFormat, cfg.FBCount, slotSize)
	return OK
}

func (e *Emulated) newFrame(w, h int) *image.RGBA {
	if e.scene != nil {
		return scaleScene(e.scene, w, h)
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// resize applies a frame size change made through the sensor handle.
func (e *Emulated) resize(fs FrameSize) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inited {
		return ErrNotInitialized
	}
	if need := FrameBytes(e.cfg.PixelFormat, fs); need > e.slotSize {
		return fmt.Errorf("sensor: frame size %v needs %d bytes, buffers hold %d", fs, need, e.slotSize)
	}
	w, h := fs.Dimensions()
	e.frame = e.newFrame(w, h)
	e.regs.FrameSize = fs
	e.shift = 0
	return nil
}

// powerUp pulls PWDN low then pulses RESET low, as the OV2640 datasheet
// requires before the first SCCB transaction.
func (e *Emulated) powerUp(p Pins) error {
	if e.gpio == nil {
		return nil
	}
	if p.PWDN != NotConnected {
		if err := e.gpio.SetupPin(p.PWDN, gpio.Output); err != nil {
			return fmt.Errorf("setup pwdn: %w", err)
		}
		if err := e.gpio.WritePin(p.PWDN, gpio.Low); err != nil {
			return fmt.Errorf("power up: %w", err)
		}
	}
	if p.Reset != NotConnected {
		if err := e.gpio.SetupPin(p.Reset, gpio.Output); err != nil {
			return fmt.Errorf("setup reset: %w", err)
		}
		if err := e.gpio.WritePin(p.Reset, gpio.Low); err != nil {
			return fmt.Errorf("assert reset: %w", err)
		}
		time.Sleep(e.resetHold)
		if err := e.gpio.WritePin(p.Reset, gpio.High); err != nil {
			return fmt.Errorf("release reset: %w", err)
		}
		time.Sleep(e.resetSettle)
	}
	return nil
}

func (e *Emulated) SensorHandle() (Control, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inited {
		return nil, ErrNotInitialized
	}
	return registerControl{e: e}, nil
}

// Registers returns a snapshot of the sensor register file.
func (e *Emulated) Registers() Registers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs
}

// InjectFault makes the next FrameBufferGet fail with err (ErrSensorFault
// if err is nil).
func (e *Emulated) InjectFault(err error) {
	if err == nil {
		err = ErrSensorFault
	}
	e.mu.Lock()
	e.fault = err
	e.mu.Unlock()
}

// Available returns the number of free buffers.
func (e *Emulated) Available() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return 0
	}
	return e.pool.Available()
}

func (e *Emulated) FrameBufferGet() (*Buffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inited {
		return nil, ErrNotInitialized
	}
	if e.fault != nil {
		err := e.fault
		e.fault = nil
		return nil, err
	}

	b, err := e.pool.Get()
	if err != nil {
		return nil, err
	}

	if e.scene == nil {
		renderBars(e.frame, e.shift)
		e.shift += 8
	}
	if err := encode(b, e.frame, e.cfg.PixelFormat, e.regs.Quality); err != nil {
		e.pool.Put(b)
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	b.Width, b.Height = e.regs.FrameSize.Dimensions()
	b.Format = e.cfg.PixelFormat
	b.Timestamp = e.now()
	debug.Trace("emulated: frame seq=%d len=%d", b.Seq, len(b.Data))
	return b, nil
}

func (e *Emulated) FrameBufferReturn(b *Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pool == nil {
		return
	}
	if !e.pool.Put(b) {
		debug.Trace("emulated: ignored return of stale buffer")
	}
}

func (e *Emulated) Deinit() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inited {
		return ErrInvalidState
	}
	e.pool.Close()
	e.pool = nil
	e.frame = nil
	e.inited = false

	if e.gpio != nil && e.cfg.Pins.PWDN != NotConnected {
		if err := e.gpio.WritePin(e.cfg.Pins.PWDN, gpio.High); err != nil {
			debug.Error(err)
			return ErrFail
		}
	}
	return OK
}
