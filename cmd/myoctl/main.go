// Command myoctl connects to a Myo armband, streams its data to the log,
// and puts the device back to sleep on exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	myo "github.com/iomz/dl-myo"
	"github.com/iomz/dl-myo/internal/config"
	"github.com/iomz/dl-myo/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/dl-myo/config.yaml)")
	mac := flag.String("mac", "", "device address to connect to (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "scan and connect timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	if *mac != "" {
		cfg.Address = *mac
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := newLogger(cfg.LogLevel)

	adapter := myo.NewBluetoothAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("enabling bluetooth adapter: %v", err)
	}

	opts := myo.DefaultOptions()
	opts.Address = cfg.Address
	opts.Scales = cfg.WireScales()
	opts.Logger = logger

	session := myo.NewSession(adapter, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	log.Println("Scanning for Myo...")
	if err := session.Connect(connectCtx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	dev := session.Device()
	log.Printf("Connected to %s (%s)", dev.Name, dev.Address)

	if ver, err := session.ReadFirmwareVersion(); err == nil {
		log.Printf("Firmware: %s", ver)
	}
	if info, err := session.ReadFirmwareInfo(); err == nil {
		log.Printf("Serial: %s", info.SerialNumber)
	}
	if name, err := session.ReadManufacturerName(); err == nil {
		log.Printf("Manufacturer: %s", name)
	}
	if pct, err := session.ReadBattery(); err == nil {
		log.Printf("Battery: %d%%", pct)
	}

	if err := session.Warmup(); err != nil {
		log.Printf("WARNING: warmup failed: %v", err)
	}

	mode, err := cfg.SetModeCommand()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := session.SetMode(mode); err != nil {
		log.Fatalf("set mode: %v", err)
	}
	log.Println("Streaming. Ctrl+C to quit.")

	var deadline <-chan time.Time
	if cfg.StreamSeconds > 0 {
		deadline = time.After(time.Duration(cfg.StreamSeconds) * time.Second)
	}

	events := session.Events()
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			logEvent(logger, ev)
		case <-deadline:
			log.Printf("Streamed for %ds, stopping", cfg.StreamSeconds)
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	shutdown(session)

	if err := session.Err(); err != nil {
		log.Printf("Session ended: %v", err)
		os.Exit(1)
	}
	log.Println("Goodbye!")
}

// shutdown stops streaming and lets the device sleep again. Best effort: the
// link may already be gone.
func shutdown(session *myo.Session) {
	log.Println("Shutting down...")
	_ = session.SetMode(wire.SetMode{})
	_ = session.SetSleepMode(wire.SleepModeNormal)
	_ = session.SetLED(wire.RGB{}, wire.RGB{})
	if err := session.Disconnect(); err != nil {
		log.Printf("disconnect: %v", err)
	}
}

func logEvent(logger *slog.Logger, ev wire.Event) {
	switch e := ev.(type) {
	case wire.EMGData:
		logger.Debug("emg", "s1", fmt.Sprint(e.Sample1), "s2", fmt.Sprint(e.Sample2))
	case wire.IMUData:
		logger.Debug("imu",
			"quat", fmt.Sprintf("[%.3f %.3f %.3f %.3f]", e.Orientation.W, e.Orientation.X, e.Orientation.Y, e.Orientation.Z),
			"accel", fmt.Sprintf("[%.3f %.3f %.3f]", e.Accelerometer.X, e.Accelerometer.Y, e.Accelerometer.Z),
			"gyro", fmt.Sprintf("[%.3f %.3f %.3f]", e.Gyroscope.X, e.Gyroscope.Y, e.Gyroscope.Z))
	case wire.ClassifierEvent:
		switch e.Type {
		case wire.ClassifierEventPose:
			logger.Info("pose", "pose", e.Pose.String())
		case wire.ClassifierEventArmSynced:
			logger.Info("arm synced", "arm", e.Arm, "xdir", e.XDirection)
		case wire.ClassifierEventArmUnsynced:
			logger.Info("arm unsynced")
		case wire.ClassifierEventSyncFailed:
			logger.Info("sync failed", "result", e.SyncResult)
		default:
			logger.Info("classifier event", "type", e.Type)
		}
	case wire.MotionEvent:
		logger.Info("tap", "direction", e.TapDirection, "count", e.TapCount)
	case wire.FVData:
		logger.Debug("fv", "values", fmt.Sprint(e.Values))
	case wire.BatteryLevel:
		logger.Info("battery", "percent", e.Percent)
	default:
		logger.Debug("event", "kind", ev.Kind())
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}
