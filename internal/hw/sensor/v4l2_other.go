//go:build !linux

package sensor

// V4L2 is only available on Linux; elsewhere every call reports
// ErrCameraNotSupported.
type V4L2 struct {
	path string
}

// NewV4L2 creates a backend for the device at path.
func NewV4L2(path string) *V4L2 {
	return &V4L2{path: path}
}

func (v *V4L2) Init(Config) Status               { return ErrCameraNotSupported }
func (v *V4L2) SensorHandle() (Control, error)   { return nil, ErrNotInitialized }
func (v *V4L2) FrameBufferGet() (*Buffer, error) { return nil, ErrNotInitialized }
func (v *V4L2) FrameBufferReturn(*Buffer)        {}
func (v *V4L2) Deinit() Status                   { return ErrInvalidState }
