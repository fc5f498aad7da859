package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cjeanneret/CamGo/internal/camera"
	"github.com/cjeanneret/CamGo/internal/config"
	"github.com/cjeanneret/CamGo/internal/console"
	"github.com/cjeanneret/CamGo/internal/debug"
	"github.com/cjeanneret/CamGo/internal/hw/gpio"
	"github.com/cjeanneret/CamGo/internal/hw/sensor"
	"github.com/cjeanneret/CamGo/internal/logic/capture"
)

func main() {
	// CLI flags
	cfgPath := flag.String("config", filepath.Join("configs", "ai_thinker.yaml"), "path to config file")
	frames := flag.Int("frames", 0, "override number of frames to capture (0 = use config)")
	outDir := flag.String("out", "frames", "directory where captured frames are written")
	consolePort := flag.String("console", "", "override serial console device (empty = use config)")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	if *listPorts {
		ports, err := console.Ports()
		if err != nil {
			log.Fatalf("list serial ports failed: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyOverrides(cfg, *frames, *consolePort); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Step(1, "Opening console")
	con, err := console.Open(cfg.Console.Port, cfg.Console.Baud)
	if err != nil {
		log.Fatalf("open console failed: %v", err)
	}
	defer con.Close()
	debug.Value("Console", con.Name())

	debug.Step(2, "Initializing GPIO driver")
	debug.Value("Mock GPIO", cfg.Backend.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Backend.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(3, "Initializing camera")
	backend, err := newBackendFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("create sensor backend failed: %v", err)
	}
	debug.Value("Backend", cfg.Backend.Type)

	src := newFrameSource(backend, con, cfg)
	if err := run(ctx, src, cfg, *outDir); err != nil {
		var ie *camera.InitError
		if errors.As(err, &ie) {
			log.Fatalf("camera init failed: %v", ie)
		}
		log.Fatalf("capture failed: %v", err)
	}
}

// run initializes src, captures the configured frames into outDir and
// shuts the source down.
func run(ctx context.Context, src *camera.FrameSource, cfg *config.Config, outDir string) (err error) {
	capCfg, err := cfg.CaptureConfig()
	if err != nil {
		return err
	}
	debug.Value("Capture", capCfg)

	if err := src.Initialize(capCfg); err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := src.ConfigureSensor(); err != nil {
		return err
	}

	sink, err := capture.NewDirSink(outDir)
	if err != nil {
		return err
	}

	debug.Section("Starting Capture Sequence")
	res, err := capture.NewSequence(src, sink).Run(ctx, capture.Params{
		Count:       cfg.Defaults.Frames,
		MaxAttempts: cfg.Defaults.RetryAttempts,
		RetryDelay:  cfg.RetryDelay(),
		Interval:    cfg.Interval(),
	})
	debug.Summary("Capture Summary")
	debug.Value("Frames captured", res.Captured)
	debug.Value("Retries", res.Retries)
	if err != nil {
		return err
	}

	debug.Section("Sequence Complete")
	return nil
}

// applyOverrides mutates cfg with the CLI values. Zero values keep the config.
func applyOverrides(cfg *config.Config, frames int, consolePort string) error {
	if frames < 0 {
		return fmt.Errorf("frames must be >= 0, got %d", frames)
	}
	if frames > 0 {
		cfg.Defaults.Frames = frames
	}
	if consolePort != "" {
		cfg.Console.Port = consolePort
	}
	return nil
}

// newBackendFromConfig selects a sensor backend based on configuration.
func newBackendFromConfig(g gpio.Driver, cfg *config.Config) (sensor.Backend, error) {
	switch cfg.Backend.Type {
	case "emulated":
		opts := []sensor.EmulatedOption{sensor.WithGPIO(g)}
		if cfg.Backend.Scene != "" {
			img, err := sensor.LoadScene(cfg.Backend.Scene)
			if err != nil {
				return nil, err
			}
			opts = append(opts, sensor.WithScene(img))
		}
		return sensor.NewEmulated(opts...), nil
	case "v4l2":
		return sensor.NewV4L2(cfg.Backend.Device), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend.Type)
	}
}

func newFrameSource(b sensor.Backend, diag camera.Diagnostics, cfg *config.Config) *camera.FrameSource {
	opts := []camera.Option{camera.WithDiagnostics(diag)}
	if t := cfg.SensorTuning(); t != nil {
		opts = append(opts, camera.WithTuning(t))
	}
	return camera.New(b, opts...)
}
