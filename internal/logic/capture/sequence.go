package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/CamGo/internal/camera"
	"github.com/cjeanneret/CamGo/internal/debug"
)

// Source is the part of camera.FrameSource the sequence drives.
type Source interface {
	AcquireFrame() (*camera.Frame, error)
	ReleaseFrame(f *camera.Frame)
}

// Sink consumes a frame while it is checked out. It must not keep
// f.Data() after returning.
type Sink interface {
	WriteFrame(f *camera.Frame) error
}

// Sequence contains the integrator-side capture logic: retry policy,
// pacing and making sure every frame goes back to the pool.
type Sequence struct {
	source Source
	sink   Sink
}

func NewSequence(src Source, sink Sink) *Sequence {
	return &Sequence{
		source: src,
		sink:   sink,
	}
}

// Params defines a capture run.
type Params struct {
	Count       int           // frames to capture
	MaxAttempts int           // acquire attempts per frame while no buffer is ready
	RetryDelay  time.Duration // wait between attempts
	Interval    time.Duration // wait between frames
}

// Result summarizes a run.
type Result struct {
	Captured int
	Retries  int
}

// Run captures p.Count frames. An unavailable buffer is retried up to
// p.MaxAttempts times; a capture fault or sink error stops the run.
func (s *Sequence) Run(ctx context.Context, p Params) (Result, error) {
	var res Result
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	for i := 0; i < p.Count; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i > 0 && p.Interval > 0 {
			if err := sleep(ctx, p.Interval); err != nil {
				return res, err
			}
		}

		f, retries, err := s.acquire(ctx, p)
		res.Retries += retries
		if err != nil {
			return res, fmt.Errorf("frame %d/%d: %w", i+1, p.Count, err)
		}

		if err := s.deliver(f); err != nil {
			return res, fmt.Errorf("frame %d/%d: %w", i+1, p.Count, err)
		}
		res.Captured++
		debug.Live("Captured frame %d/%d", i+1, p.Count)
	}

	return res, nil
}

// acquire retries while the source reports no buffer ready.
func (s *Sequence) acquire(ctx context.Context, p Params) (*camera.Frame, int, error) {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			debug.Verbose("  Attempt %d/%d after: %v", attempt+1, p.MaxAttempts, lastErr)
			if err := sleep(ctx, p.RetryDelay); err != nil {
				return nil, attempt, err
			}
		}

		f, err := s.source.AcquireFrame()
		if err == nil {
			return f, attempt, nil
		}
		if !errors.Is(err, camera.ErrCaptureUnavailable) {
			return nil, attempt, err
		}
		lastErr = err
	}
	return nil, p.MaxAttempts - 1, fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, lastErr)
}

// deliver hands f to the sink and always releases it.
func (s *Sequence) deliver(f *camera.Frame) error {
	defer s.source.ReleaseFrame(f)
	return s.sink.WriteFrame(f)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
