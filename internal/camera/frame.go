package camera

import (
	"time"

	"github.com/cjeanneret/CamGo/internal/hw/sensor"
)

// Frame is a captured frame borrowed from the backend's buffer pool.
// Release it exactly once, typically with defer; after that every
// accessor returns zero values.
type Frame struct {
	src *FrameSource
	buf *sensor.Buffer
}

// Valid reports whether the frame has not been released yet.
func (f *Frame) Valid() bool {
	return f != nil && f.buf != nil
}

// Data returns the frame bytes. The slice aliases pool memory: do not
// keep it past Release. Use Clone for an owned copy.
func (f *Frame) Data() []byte {
	if !f.Valid() {
		return nil
	}
	return f.buf.Data
}

// Len returns the number of bytes in the frame.
func (f *Frame) Len() int {
	return len(f.Data())
}

// Clone returns a copy of the frame bytes that outlives Release.
func (f *Frame) Clone() []byte {
	data := f.Data()
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func (f *Frame) Width() int {
	if !f.Valid() {
		return 0
	}
	return f.buf.Width
}

func (f *Frame) Height() int {
	if !f.Valid() {
		return 0
	}
	return f.buf.Height
}

func (f *Frame) Format() sensor.PixelFormat {
	if !f.Valid() {
		return 0
	}
	return f.buf.Format
}

func (f *Frame) Timestamp() time.Time {
	if !f.Valid() {
		return time.Time{}
	}
	return f.buf.Timestamp
}

// Seq is the pool checkout sequence number.
func (f *Frame) Seq() uint64 {
	if !f.Valid() {
		return 0
	}
	return f.buf.Seq
}

// Release returns the frame to its source. Calling it again, or on a nil
// frame, does nothing.
func (f *Frame) Release() {
	if f == nil || f.src == nil {
		return
	}
	f.src.ReleaseFrame(f)
}
