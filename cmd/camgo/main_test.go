package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjeanneret/CamGo/internal/camera"
	"github.com/cjeanneret/CamGo/internal/config"
	"github.com/cjeanneret/CamGo/internal/hw/gpio"
	"github.com/cjeanneret/CamGo/internal/hw/sensor"
)

const testPinsYAML = `
pins:
  pwdn: 32
  reset: -1
  xclk: 0
  sccb_sda: 26
  sccb_scl: 27
  d7: 35
  d6: 34
  d5: 39
  d4: 36
  d3: 21
  d2: 19
  d1: 18
  d0: 5
  vsync: 25
  href: 23
  pclk: 22
`

func newTestConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(extra + testPinsYAML))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

type recordingDiag struct {
	lines []string
}

func (r *recordingDiag) Printf(format string, args ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// ---------- applyOverrides ----------

func TestApplyOverrides_ZeroLeavesUnchanged(t *testing.T) {
	cfg := newTestConfig(t, "defaults:\n  frames: 4\nconsole:\n  port: /dev/ttyUSB0\n")
	if err := applyOverrides(cfg, 0, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Defaults.Frames != 4 {
		t.Errorf("Frames = %d, want 4", cfg.Defaults.Frames)
	}
	if cfg.Console.Port != "/dev/ttyUSB0" {
		t.Errorf("Console.Port = %q, want /dev/ttyUSB0", cfg.Console.Port)
	}
}

func TestApplyOverrides_NonZero(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := applyOverrides(cfg, 12, "/dev/ttyACM0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Defaults.Frames != 12 {
		t.Errorf("Frames = %d, want 12", cfg.Defaults.Frames)
	}
	if cfg.Console.Port != "/dev/ttyACM0" {
		t.Errorf("Console.Port = %q, want /dev/ttyACM0", cfg.Console.Port)
	}
}

func TestApplyOverrides_NegativeFrames(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := applyOverrides(cfg, -1, ""); err == nil {
		t.Error("expected error for negative frames, got nil")
	}
}

// ---------- newBackendFromConfig ----------

func TestNewBackendFromConfig_Emulated(t *testing.T) {
	cfg := newTestConfig(t, "backend:\n  type: emulated\n")
	b, err := newBackendFromConfig(gpio.NewMockDriver(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*sensor.Emulated); !ok {
		t.Errorf("backend = %T, want *sensor.Emulated", b)
	}
}

func TestNewBackendFromConfig_V4L2(t *testing.T) {
	cfg := newTestConfig(t, "backend:\n  type: v4l2\n")
	b, err := newBackendFromConfig(gpio.NewMockDriver(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*sensor.V4L2); !ok {
		t.Errorf("backend = %T, want *sensor.V4L2", b)
	}
}

func TestNewBackendFromConfig_MissingScene(t *testing.T) {
	cfg := newTestConfig(t, "backend:\n  type: emulated\n  scene: /nonexistent/scene.png\n")
	if _, err := newBackendFromConfig(gpio.NewMockDriver(), cfg); err == nil {
		t.Error("expected error for missing scene file, got nil")
	}
}

func TestNewBackendFromConfig_Unsupported(t *testing.T) {
	cfg := newTestConfig(t, "")
	cfg.Backend.Type = "usb"
	if _, err := newBackendFromConfig(gpio.NewMockDriver(), cfg); err == nil {
		t.Error("expected error for unsupported backend, got nil")
	}
}

// ---------- run ----------

func TestRun_EmulatedWritesFrames(t *testing.T) {
	cfg := newTestConfig(t, `
backend:
  type: emulated
  mock_gpio: true
capture:
  pixel_format: jpeg
  frame_size: qvga
  fb_count: 2
tuning:
  brightness: 1
defaults:
  frames: 3
`)
	g := gpio.NewMockDriver()
	backend, err := newBackendFromConfig(g, cfg)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	diag := &recordingDiag{}
	src := newFrameSource(backend, diag, cfg)
	out := filepath.Join(t.TempDir(), "frames")

	if err := run(context.Background(), src, cfg, out); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("wrote %d files, want 3", len(entries))
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".jpg") {
			t.Errorf("unexpected file %s", e.Name())
		}
	}
	if len(diag.lines) == 0 || diag.lines[0] != "Camera init succeeded" {
		t.Errorf("diagnostics = %v, want init success line", diag.lines)
	}
	if src.State() != camera.StateShutdown {
		t.Errorf("state after run = %v, want shutdown", src.State())
	}
	if got := backend.(*sensor.Emulated).Registers().Brightness; got != 1 {
		t.Errorf("brightness register = %d, want 1", got)
	}
	if lvl, err := g.ReadPin(32); err != nil || lvl != gpio.High {
		t.Errorf("PWDN after run = %v (%v), want HIGH", lvl, err)
	}
}

func TestRun_InitFailureReportsCode(t *testing.T) {
	cfg := newTestConfig(t, "backend:\n  type: v4l2\n  device: /nonexistent/video9\n")
	backend, err := newBackendFromConfig(gpio.NewMockDriver(), cfg)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	diag := &recordingDiag{}
	src := newFrameSource(backend, diag, cfg)

	err = run(context.Background(), src, cfg, t.TempDir())
	var ie *camera.InitError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *camera.InitError, got %v", err)
	}
	if len(diag.lines) != 1 || !strings.HasPrefix(diag.lines[0], "Camera init failed with error 0x") {
		t.Errorf("diagnostics = %v, want one init failure line", diag.lines)
	}
	if src.State() != camera.StateUninitialized {
		t.Errorf("state = %v, want uninitialized", src.State())
	}
}
