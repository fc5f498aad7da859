package camera

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cjeanneret/CamGo/internal/hw/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDiag collects diagnostics lines.
type recordingDiag struct {
	lines []string
}

func (d *recordingDiag) Printf(format string, args ...interface{}) {
	d.lines = append(d.lines, fmt.Sprintf(format, args...))
}

// stubBackend is a scripted backend for paths the emulated sensor
// cannot reach.
type stubBackend struct {
	initCode   sensor.Status
	deinitCode sensor.Status
	getErr     error
	nilBuffer  bool
	handleErr  error
	ctrl       sensor.Control
	inits      int
	returned   []*sensor.Buffer
}

func (b *stubBackend) Init(sensor.Config) sensor.Status {
	b.inits++
	return b.initCode
}

func (b *stubBackend) SensorHandle() (sensor.Control, error) { return b.ctrl, b.handleErr }

func (b *stubBackend) FrameBufferGet() (*sensor.Buffer, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	if b.nilBuffer {
		return nil, nil
	}
	return &sensor.Buffer{Data: []byte{0xff, 0xd8}, Format: sensor.FormatJPEG}, nil
}

func (b *stubBackend) FrameBufferReturn(buf *sensor.Buffer) { b.returned = append(b.returned, buf) }
func (b *stubBackend) Deinit() sensor.Status                { return b.deinitCode }

func newReadySource(t *testing.T, fbCount int, opts ...Option) (*FrameSource, *sensor.Emulated) {
	t.Helper()
	backend := sensor.NewEmulated()
	src := New(backend, opts...)
	require.NoError(t, src.Initialize(buildConfig(t, fbCount)))
	return src, backend
}

func TestInitialize_SucceedsAndFrameArrives(t *testing.T) {
	for _, fs := range []sensor.FrameSize{sensor.FrameSizeQQVGA, sensor.FrameSizeQVGA, sensor.FrameSizeVGA} {
		for _, pf := range []sensor.PixelFormat{sensor.FormatJPEG, sensor.FormatGrayscale, sensor.FormatRGB565} {
			t.Run(fs.String()+"/"+pf.String(), func(t *testing.T) {
				cfg, err := validBuilder(2).FrameSize(fs).PixelFormat(pf).Build()
				require.NoError(t, err)

				src := New(sensor.NewEmulated())
				require.NoError(t, src.Initialize(cfg))
				assert.Equal(t, StateReady, src.State())

				var f *Frame
				for attempt := 0; attempt < 3 && f == nil; attempt++ {
					f, _ = src.AcquireFrame()
				}
				require.NotNil(t, f)
				assert.NotZero(t, f.Len())
				f.Release()
			})
		}
	}
}

func TestAcquire_BeyondDepthIsUnavailable(t *testing.T) {
	src, _ := newReadySource(t, 3)

	var held []*Frame
	for i := 0; i < 3; i++ {
		f, err := src.AcquireFrame()
		require.NoError(t, err)
		held = append(held, f)
	}

	f, err := src.AcquireFrame()
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrCaptureUnavailable)

	for _, f := range held {
		f.Release()
	}
}

func TestRelease_MakesCapacityAvailable(t *testing.T) {
	src, _ := newReadySource(t, 2)

	a, err := src.AcquireFrame()
	require.NoError(t, err)
	_, err = src.AcquireFrame()
	require.NoError(t, err)
	assert.Equal(t, 0, src.Available())

	src.ReleaseFrame(a)
	assert.Equal(t, 1, src.Available())

	c, err := src.AcquireFrame()
	require.NoError(t, err)
	assert.True(t, c.Valid())
}

func TestRelease_NilAndDoubleAreNoOps(t *testing.T) {
	src, backend := newReadySource(t, 2)

	f, err := src.AcquireFrame()
	require.NoError(t, err)
	before := src.Available()

	src.ReleaseFrame(nil)
	var nilFrame *Frame
	nilFrame.Release()
	assert.Equal(t, before, src.Available())
	assert.Equal(t, before, backend.Available())

	f.Release()
	assert.Equal(t, 2, src.Available())
	f.Release()
	src.ReleaseFrame(f)
	assert.Equal(t, 2, src.Available())
	assert.Equal(t, 2, backend.Available())

	assert.False(t, f.Valid())
	assert.Nil(t, f.Data())
	assert.Zero(t, f.Width())
}

func TestRelease_ForeignFrameIgnored(t *testing.T) {
	a, _ := newReadySource(t, 1)
	b, _ := newReadySource(t, 1)

	f, err := a.AcquireFrame()
	require.NoError(t, err)

	b.ReleaseFrame(f)
	assert.True(t, f.Valid())
	assert.Equal(t, 0, a.Available())
	assert.Equal(t, 1, b.Available())
}

func TestScenario_SingleBufferVGAJPEG(t *testing.T) {
	cfg, err := validBuilder(1).FrameSize(sensor.FrameSizeVGA).PixelFormat(sensor.FormatJPEG).Build()
	require.NoError(t, err)

	src := New(sensor.NewEmulated())
	require.NoError(t, src.Initialize(cfg))

	first, err := src.AcquireFrame()
	require.NoError(t, err)
	assert.Equal(t, sensor.FormatJPEG, first.Format())
	assert.Equal(t, 640, first.Width())
	assert.Equal(t, 480, first.Height())
	assert.NotZero(t, first.Len())
	assert.Equal(t, []byte{0xff, 0xd8}, first.Data()[:2], "JPEG SOI marker")

	second, err := src.AcquireFrame()
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrCaptureUnavailable)

	src.ReleaseFrame(first)

	third, err := src.AcquireFrame()
	require.NoError(t, err)
	assert.NotZero(t, third.Len())
	third.Release()
}

func TestInitialize_UnsupportedFrequency(t *testing.T) {
	// 40 MHz passes the builder but the stub backend refuses it.
	stub := &stubBackend{initCode: sensor.ErrNotSupported}
	diag := &recordingDiag{}
	src := New(stub, WithDiagnostics(diag))

	cfg, err := validBuilder(1).XCLKFreqHz(40_000_000).Build()
	require.NoError(t, err)

	err = src.Initialize(cfg)
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, sensor.ErrNotSupported, initErr.Code)
	assert.Equal(t, []string{"Camera init failed with error 0x106"}, diag.lines)

	assert.Equal(t, StateUninitialized, src.State())
	assert.Equal(t, 0, src.Depth())

	f, err := src.AcquireFrame()
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitialize_EmulatedOutOfFrameMemory(t *testing.T) {
	diag := &recordingDiag{}
	src := New(sensor.NewEmulated(), WithDiagnostics(diag))

	// UXGA RGB888 needs 5.76 MB, more than the 4 MB of frame memory.
	cfg, err := validBuilder(1).FrameSize(sensor.FrameSizeUXGA).PixelFormat(sensor.FormatRAW).Build()
	require.NoError(t, err)

	var initErr *InitError
	require.ErrorAs(t, src.Initialize(cfg), &initErr)
	assert.Equal(t, sensor.ErrNoMem, initErr.Code)
	assert.Equal(t, []string{"Camera init failed with error 0x101"}, diag.lines)
	assert.Equal(t, StateUninitialized, src.State())
	assert.Equal(t, 0, src.Available())
}

func TestConfigureSensor_FrameSizeTuningApplies(t *testing.T) {
	src, _ := newReadySource(t, 1, WithTuning(TuningFunc(func(ctrl sensor.Control) error {
		return ctrl.SetFrameSize(sensor.FrameSizeQQVGA)
	})))
	require.NoError(t, src.ConfigureSensor())

	f, err := src.AcquireFrame()
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, 160, f.Width())
	assert.Equal(t, 120, f.Height())
}

func TestAcquire_AfterCloseFailsCleanly(t *testing.T) {
	backend := sensor.NewEmulated()
	src := New(backend, WithDiagnostics(&recordingDiag{}))

	require.NoError(t, src.Initialize(buildConfig(t, 1)))
	require.NoError(t, src.Close())

	f, err := src.AcquireFrame()
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, backend.Available(), "pool must be freed")
}

func TestInitialize_DiagnosticsOnSuccess(t *testing.T) {
	diag := &recordingDiag{}
	src := New(sensor.NewEmulated(), WithDiagnostics(diag))
	require.NoError(t, src.Initialize(buildConfig(t, 1)))
	assert.Equal(t, []string{"Camera init succeeded"}, diag.lines)
}

func TestInitialize_Twice(t *testing.T) {
	src, _ := newReadySource(t, 1)
	assert.ErrorIs(t, src.Initialize(buildConfig(t, 1)), ErrAlreadyInitialized)
}

func TestInitialize_ZeroConfigRejected(t *testing.T) {
	stub := &stubBackend{}
	src := New(stub)

	var cfgErr *ConfigError
	assert.ErrorAs(t, src.Initialize(CaptureConfig{}), &cfgErr)
	assert.Zero(t, stub.inits, "backend must not see an unbuilt config")
}

func TestAcquire_FaultIsWrapped(t *testing.T) {
	src, backend := newReadySource(t, 1)

	backend.InjectFault(nil)
	f, err := src.AcquireFrame()
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrCaptureFault)
	assert.ErrorIs(t, err, sensor.ErrSensorFault)
	assert.NotErrorIs(t, err, ErrCaptureUnavailable)
	assert.Equal(t, StateReady, src.State())
	assert.Equal(t, 1, src.Available())
}

func TestAcquire_BackendNoFrameIsUnavailable(t *testing.T) {
	stub := &stubBackend{getErr: fmt.Errorf("%w: timeout", sensor.ErrNoFrame)}
	src := New(stub, WithDiagnostics(&recordingDiag{}))
	require.NoError(t, src.Initialize(buildConfig(t, 1)))

	_, err := src.AcquireFrame()
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
	assert.ErrorIs(t, err, sensor.ErrNoFrame)

	stub.getErr = nil
	stub.nilBuffer = true
	_, err = src.AcquireFrame()
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestClose_InvalidatesOutstandingFrames(t *testing.T) {
	src, _ := newReadySource(t, 2)

	f, err := src.AcquireFrame()
	require.NoError(t, err)

	require.NoError(t, src.Close())
	assert.Equal(t, StateShutdown, src.State())
	assert.False(t, f.Valid())
	f.Release()

	assert.ErrorIs(t, src.Close(), ErrClosed)
	assert.ErrorIs(t, src.Initialize(buildConfig(t, 1)), ErrClosed)
}

func TestClose_DeinitFailure(t *testing.T) {
	stub := &stubBackend{deinitCode: sensor.ErrFail}
	src := New(stub, WithDiagnostics(&recordingDiag{}))
	require.NoError(t, src.Initialize(buildConfig(t, 1)))

	err := src.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAIL")
}

func TestClose_Uninitialized(t *testing.T) {
	src := New(&stubBackend{})
	assert.NoError(t, src.Close())
	assert.Equal(t, StateShutdown, src.State())
}

func TestConfigureSensor_NoTuningIsNoOp(t *testing.T) {
	src, backend := newReadySource(t, 1)
	before := backend.Registers()

	require.NoError(t, src.ConfigureSensor())
	assert.Equal(t, before, backend.Registers())
}

func TestConfigureSensor_AppliesTuning(t *testing.T) {
	brightness, vflip, awb := 2, true, false
	src, backend := newReadySource(t, 1, WithTuning(Tuning{
		Brightness:   &brightness,
		VFlip:        &vflip,
		WhiteBalance: &awb,
	}))

	require.NoError(t, src.ConfigureSensor())
	regs := backend.Registers()
	assert.Equal(t, 2, regs.Brightness)
	assert.True(t, regs.VFlip)
	assert.False(t, regs.WhiteBalance)
}

func TestConfigureSensor_TuningErrorSurfaces(t *testing.T) {
	src, _ := newReadySource(t, 1, WithTuning(TuningFunc(func(ctrl sensor.Control) error {
		return ctrl.SetAGCGain(99)
	})))
	assert.Error(t, src.ConfigureSensor())
}

func TestConfigureSensor_HandleError(t *testing.T) {
	stub := &stubBackend{handleErr: errors.New("no sccb ack")}
	src := New(stub, WithDiagnostics(&recordingDiag{}))
	require.NoError(t, src.Initialize(buildConfig(t, 1)))

	assert.ErrorContains(t, src.ConfigureSensor(), "no sccb ack")
}

func TestConfigureSensor_BeforeInit(t *testing.T) {
	src := New(sensor.NewEmulated())
	assert.ErrorIs(t, src.ConfigureSensor(), ErrNotInitialized)
}

func TestFrame_CloneOutlivesRelease(t *testing.T) {
	src, _ := newReadySource(t, 1)

	f, err := src.AcquireFrame()
	require.NoError(t, err)
	data := f.Clone()
	seq := f.Seq()
	ts := f.Timestamp()
	f.Release()

	assert.NotEmpty(t, data)
	assert.NotZero(t, seq)
	assert.False(t, ts.IsZero())
	assert.Nil(t, f.Clone())
	assert.Zero(t, f.Seq())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "capturing", StateCapturing.String())
	assert.Equal(t, "State(9)", State(9).String())
}
