package capture

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cjeanneret/CamGo/internal/camera"
	"github.com/cjeanneret/CamGo/internal/debug"
	"github.com/cjeanneret/CamGo/internal/hw/sensor"
)

var extensions = map[sensor.PixelFormat]string{
	sensor.FormatJPEG:      "jpg",
	sensor.FormatGrayscale: "gray",
	sensor.FormatRGB565:    "rgb565",
	sensor.FormatYUV422:    "yuyv",
	sensor.FormatRAW:       "rgb",
}

// DirSink writes each frame to Dir as frame-<seq>.<ext>.
type DirSink struct {
	Dir string
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{Dir: dir}, nil
}

// FileName returns the name a frame is written under.
func FileName(f *camera.Frame) string {
	ext, ok := extensions[f.Format()]
	if !ok {
		ext = "bin"
	}
	return fmt.Sprintf("frame-%06d.%s", f.Seq(), ext)
}

func (d *DirSink) WriteFrame(f *camera.Frame) error {
	if !f.Valid() {
		return fmt.Errorf("write frame: frame already released")
	}
	path := filepath.Join(d.Dir, FileName(f))
	if err := os.WriteFile(path, f.Data(), 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	debug.Verbose("Wrote %s (%dx%d, %d bytes)", path, f.Width(), f.Height(), f.Len())
	return nil
}
