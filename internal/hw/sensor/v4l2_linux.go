//go:build linux

package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/blackjack/webcam"
	"github.com/cjeanneret/CamGo/internal/debug"
)

const (
	// Frames that come back empty are retried this many times before
	// the capture is reported as unavailable.
	maxEmptyFrameCount = 5
	// WaitForFrame timeout in seconds.
	defaultFrameTimeout = 5
)

func fourcc(s string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24)
}

var v4l2Formats = map[PixelFormat]webcam.PixelFormat{
	FormatJPEG:      fourcc("MJPG"),
	FormatYUV422:    fourcc("YUYV"),
	FormatGrayscale: fourcc("GREY"),
	FormatRGB565:    fourcc("RGBP"),
}

// V4L2 control IDs (linux/v4l2-controls.h).
const (
	cidBrightness    webcam.ControlID = 0x00980900
	cidContrast      webcam.ControlID = 0x00980901
	cidSaturation    webcam.ControlID = 0x00980902
	cidAutoWB        webcam.ControlID = 0x0098090c
	cidAutoGain      webcam.ControlID = 0x00980912
	cidGain          webcam.ControlID = 0x00980913
	cidHFlip         webcam.ControlID = 0x00980914
	cidVFlip         webcam.ControlID = 0x00980915
	cidExposureAuto  webcam.ControlID = 0x009a0901
	cidExposureAbs   webcam.ControlID = 0x009a0902
	cidJPEGQuality   webcam.ControlID = 0x009d0903
	exposureManual                    = 1
	exposureAperture                  = 3
)

// V4L2 is a Backend for USB and CSI cameras exposed through
// Video4Linux, e.g. /dev/video0. The kernel owns the mmap buffers; each
// frame is copied into a pool slot so it stays valid until returned.
type V4L2 struct {
	path    string
	timeout uint32
	now     func() time.Time

	cam  *webcam.Webcam
	cfg  Config
	pool *Pool
}

// NewV4L2 creates a backend for the device at path.
func NewV4L2(path string) *V4L2 {
	return &V4L2{
		path:    path,
		timeout: defaultFrameTimeout,
		now:     time.Now,
	}
}

func (v *V4L2) Init(cfg Config) Status {
	debug.Trace("v4l2: Init %s %+v", v.path, cfg)

	if v.cam != nil {
		return ErrInvalidState
	}
	if st := checkConfig(cfg); st != OK {
		return st
	}
	pf, ok := v4l2Formats[cfg.PixelFormat]
	if !ok {
		return ErrFailedToSetOutFormat
	}

	cam, err := webcam.Open(v.path)
	if err != nil {
		debug.Error(fmt.Errorf("open %s: %w", v.path, err))
		return ErrCameraNotDetected
	}

	w, h := cfg.FrameSize.Dimensions()
	got, gw, gh, err := cam.SetImageFormat(pf, uint32(w), uint32(h))
	if err != nil || got != pf {
		cam.Close()
		return ErrFailedToSetOutFormat
	}
	if int(gw) != w || int(gh) != h {
		cam.Close()
		return ErrFailedToSetFrameSize
	}
	if err := cam.SetBufferCount(uint32(cfg.FBCount)); err != nil {
		cam.Close()
		return ErrNoMem
	}

	pool, err := NewPool(cfg.FBCount, FrameBytes(cfg.PixelFormat, cfg.FrameSize))
	if err != nil {
		cam.Close()
		return ErrNoMem
	}

	if err := cam.StartStreaming(); err != nil {
		debug.Error(fmt.Errorf("start streaming: %w", err))
		pool.Close()
		cam.Close()
		return ErrInvalidState
	}

	v.cam = cam
	v.cfg = cfg
	v.pool = pool
	return OK
}

func (v *V4L2) SensorHandle() (Control, error) {
	if v.cam == nil {
		return nil, ErrNotInitialized
	}
	return v4l2Control{cam: v.cam}, nil
}

func (v *V4L2) FrameBufferGet() (*Buffer, error) {
	if v.cam == nil {
		return nil, ErrNotInitialized
	}

	b, err := v.pool.Get()
	if err != nil {
		return nil, err
	}

	for i := 0; i < maxEmptyFrameCount; i++ {
		err := v.cam.WaitForFrame(v.timeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			v.pool.Put(b)
			return nil, fmt.Errorf("%w: timeout after %ds", ErrNoFrame, v.timeout)
		default:
			v.pool.Put(b)
			return nil, fmt.Errorf("wait for frame: %w", err)
		}

		data, err := v.cam.ReadFrame()
		if err != nil {
			v.pool.Put(b)
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		if _, err := b.Write(data); err != nil {
			v.pool.Put(b)
			return nil, err
		}

		b.Width, b.Height = v.cfg.FrameSize.Dimensions()
		b.Format = v.cfg.PixelFormat
		b.Timestamp = v.now()
		return b, nil
	}

	v.pool.Put(b)
	return nil, fmt.Errorf("%w: %d empty frames", ErrNoFrame, maxEmptyFrameCount)
}

func (v *V4L2) FrameBufferReturn(b *Buffer) {
	if v.pool == nil {
		return
	}
	v.pool.Put(b)
}

func (v *V4L2) Deinit() Status {
	if v.cam == nil {
		return ErrInvalidState
	}
	st := OK
	if err := v.cam.StopStreaming(); err != nil {
		debug.Error(fmt.Errorf("stop streaming: %w", err))
		st = ErrFail
	}
	if err := v.cam.Close(); err != nil {
		debug.Error(fmt.Errorf("close %s: %w", v.path, err))
		st = ErrFail
	}
	v.pool.Close()
	v.cam = nil
	v.pool = nil
	return st
}

// v4l2Control maps sensor controls onto V4L2 user controls. Values are
// rescaled only where the ranges obviously differ; drivers clamp the rest.
type v4l2Control struct {
	cam *webcam.Webcam
}

var errNoFrameSizeChange = errors.New("v4l2: frame size is fixed while streaming")

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (c v4l2Control) set(id webcam.ControlID, value int32) error {
	if err := c.cam.SetControl(id, value); err != nil {
		return fmt.Errorf("v4l2: set control 0x%x: %w", uint32(id), err)
	}
	return nil
}

func (c v4l2Control) SetFrameSize(FrameSize) error { return errNoFrameSizeChange }

func (c v4l2Control) SetQuality(q int) error {
	if err := checkRange("quality", q, 0, 63); err != nil {
		return err
	}
	return c.set(cidJPEGQuality, int32(jpegQuality(q)))
}

func (c v4l2Control) SetBrightness(level int) error {
	if err := checkRange("brightness", level, -2, 2); err != nil {
		return err
	}
	return c.set(cidBrightness, int32(level*32))
}

func (c v4l2Control) SetContrast(level int) error {
	if err := checkRange("contrast", level, -2, 2); err != nil {
		return err
	}
	return c.set(cidContrast, int32(32+level*8))
}

func (c v4l2Control) SetSaturation(level int) error {
	if err := checkRange("saturation", level, -2, 2); err != nil {
		return err
	}
	return c.set(cidSaturation, int32(64+level*16))
}

func (c v4l2Control) SetWhiteBalance(enable bool) error {
	return c.set(cidAutoWB, boolValue(enable))
}

func (c v4l2Control) SetExposureControl(enable bool) error {
	mode := int32(exposureManual)
	if enable {
		mode = exposureAperture
	}
	return c.set(cidExposureAuto, mode)
}

func (c v4l2Control) SetAECValue(value int) error {
	if err := checkRange("aec_value", value, 0, 1200); err != nil {
		return err
	}
	return c.set(cidExposureAbs, int32(value))
}

func (c v4l2Control) SetGainControl(enable bool) error {
	return c.set(cidAutoGain, boolValue(enable))
}

func (c v4l2Control) SetAGCGain(gain int) error {
	if err := checkRange("agc_gain", gain, 0, 30); err != nil {
		return err
	}
	return c.set(cidGain, int32(gain))
}

func (c v4l2Control) SetHMirror(enable bool) error {
	return c.set(cidHFlip, boolValue(enable))
}

func (c v4l2Control) SetVFlip(enable bool) error {
	return c.set(cidVFlip, boolValue(enable))
}
