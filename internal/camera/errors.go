package camera

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/CamGo/internal/hw/sensor"
)

var (
	// ErrCaptureUnavailable means no frame buffer was ready. Retrying
	// later may succeed.
	ErrCaptureUnavailable = errors.New("camera: capture unavailable")
	// ErrCaptureFault means the sensor or bus failed. It may or may not
	// be transient; the cause is wrapped alongside it.
	ErrCaptureFault = errors.New("camera: capture fault")

	ErrNotInitialized     = errors.New("camera: not initialized")
	ErrAlreadyInitialized = errors.New("camera: already initialized")
	ErrClosed             = errors.New("camera: closed")
)

// InitError is returned when the backend rejects the configuration. Code
// is the backend status, unchanged.
type InitError struct {
	Code sensor.Status
}

func (e *InitError) Error() string {
	return fmt.Sprintf("camera: init failed with error 0x%x (%v)", int(e.Code), e.Code)
}
