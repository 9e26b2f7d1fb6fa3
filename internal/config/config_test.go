package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iomz/dl-myo/wire"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Modes.EMG != "filtered" {
		t.Errorf("default EMG mode = %q, want filtered", cfg.Modes.EMG)
	}
	if cfg.Modes.IMU != "none" {
		t.Errorf("default IMU mode = %q, want none", cfg.Modes.IMU)
	}
	if cfg.Modes.Classifier != "disabled" {
		t.Errorf("default classifier mode = %q, want disabled", cfg.Modes.Classifier)
	}
	if cfg.Scales.Orientation != wire.DefaultOrientationScale {
		t.Errorf("default orientation scale = %v, want %v", cfg.Scales.Orientation, wire.DefaultOrientationScale)
	}
	if cfg.WS.Listen != ":8765" {
		t.Errorf("default ws listen = %q, want :8765", cfg.WS.Listen)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level = %q, want info", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	content := `
address: "DD:31:32:94:85:8E"
modes:
  emg: raw
  imu: all
  classifier: enabled
scales:
  gyroscope: 32
ws:
  listen: ":9000"
log_level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Address != "DD:31:32:94:85:8E" {
		t.Errorf("address = %q", cfg.Address)
	}
	if cfg.Modes.EMG != "raw" || cfg.Modes.IMU != "all" || cfg.Modes.Classifier != "enabled" {
		t.Errorf("modes = %+v", cfg.Modes)
	}
	if cfg.Scales.Gyroscope != 32 {
		t.Errorf("gyroscope scale = %v, want 32", cfg.Scales.Gyroscope)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Scales.Orientation != wire.DefaultOrientationScale {
		t.Errorf("orientation scale = %v, want default", cfg.Scales.Orientation)
	}
	if cfg.WS.Listen != ":9000" {
		t.Errorf("ws listen = %q, want :9000", cfg.WS.Listen)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("modes: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad emg mode", func(c *Config) { c.Modes.EMG = "loud" }},
		{"bad imu mode", func(c *Config) { c.Modes.IMU = "sometimes" }},
		{"bad classifier mode", func(c *Config) { c.Modes.Classifier = "maybe" }},
		{"negative scale", func(c *Config) { c.Scales.Orientation = -1 }},
		{"empty ws listen", func(c *Config) { c.WS.Listen = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative stream seconds", func(c *Config) { c.StreamSeconds = -5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateAllowsZeroScales(t *testing.T) {
	cfg := Default()
	cfg.Scales = ScalesConfig{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero scales should validate (they keep the stock constants): %v", err)
	}
}

func TestSetModeCommand(t *testing.T) {
	cfg := Default()
	cfg.Modes.EMG = "emg"
	cfg.Modes.IMU = "data"
	cfg.Modes.Classifier = "enabled"

	cmd, err := cfg.SetModeCommand()
	if err != nil {
		t.Fatalf("SetModeCommand failed: %v", err)
	}
	want := wire.SetMode{
		EMG:        wire.EMGModeSendEMG,
		IMU:        wire.IMUModeSendData,
		Classifier: wire.ClassifierModeEnabled,
	}
	if cmd != want {
		t.Errorf("SetModeCommand = %+v, want %+v", cmd, want)
	}
}

func TestSetModeCommandEmptyNamesMeanOff(t *testing.T) {
	cfg := &Config{}
	cmd, err := cfg.SetModeCommand()
	if err != nil {
		t.Fatalf("SetModeCommand failed: %v", err)
	}
	if cmd != (wire.SetMode{}) {
		t.Errorf("SetModeCommand = %+v, want zero value", cmd)
	}
}

func TestWireScales(t *testing.T) {
	cfg := Default()
	cfg.Scales.Accelerometer = 4096

	s := cfg.WireScales()
	if s.Accelerometer != 4096 {
		t.Errorf("accelerometer scale = %v, want 4096", s.Accelerometer)
	}
	if s.Orientation != wire.DefaultOrientationScale {
		t.Errorf("orientation scale = %v, want default", s.Orientation)
	}
}
