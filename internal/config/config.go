// Package config loads the YAML configuration shared by the dl-myo binaries.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/iomz/dl-myo/wire"
)

// Config holds all application configuration.
type Config struct {
	// Address pins the tools to a specific armband; empty scans for the
	// first device advertising the Myo service.
	Address  string       `yaml:"address"`
	Modes    ModesConfig  `yaml:"modes"`
	Scales   ScalesConfig `yaml:"scales"`
	WS       WSConfig     `yaml:"ws"`
	LogLevel string       `yaml:"log_level"`

	// StreamSeconds bounds how long the CLI streams before shutting down.
	// Zero streams until interrupted.
	StreamSeconds int `yaml:"stream_seconds"`
}

// ModesConfig selects the streaming modes by name.
type ModesConfig struct {
	EMG        string `yaml:"emg"`        // "none", "filtered", "emg", "raw"
	IMU        string `yaml:"imu"`        // "none", "data", "events", "all", "raw"
	Classifier string `yaml:"classifier"` // "disabled", "enabled"
}

// ScalesConfig overrides the IMU fixed-point divisors for firmware that
// declares a different format. Zero values keep the stock constants.
type ScalesConfig struct {
	Orientation   float64 `yaml:"orientation"`
	Accelerometer float64 `yaml:"accelerometer"`
	Gyroscope     float64 `yaml:"gyroscope"`
}

// WSConfig holds the websocket server settings.
type WSConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config with sensible default values: filtered EMG only,
// stock firmware scales.
func Default() *Config {
	return &Config{
		Modes: ModesConfig{
			EMG:        "filtered",
			IMU:        "none",
			Classifier: "disabled",
		},
		Scales: ScalesConfig{
			Orientation:   wire.DefaultOrientationScale,
			Accelerometer: wire.DefaultAccelerometerScale,
			Gyroscope:     wire.DefaultGyroscopeScale,
		},
		WS: WSConfig{
			Listen: ":8765",
		},
		LogLevel: "info",
	}
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "dl-myo", "config.yaml")
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := c.EMGMode(); err != nil {
		return err
	}
	if _, err := c.IMUMode(); err != nil {
		return err
	}
	if _, err := c.ClassifierMode(); err != nil {
		return err
	}

	// Zero scales are allowed: they keep the stock firmware constants.
	if c.Scales.Orientation < 0 || c.Scales.Accelerometer < 0 || c.Scales.Gyroscope < 0 {
		return fmt.Errorf("scales must not be negative, got %+v", c.Scales)
	}

	if c.WS.Listen == "" {
		return fmt.Errorf("ws.listen must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.StreamSeconds < 0 {
		return fmt.Errorf("stream_seconds must not be negative, got %d", c.StreamSeconds)
	}

	return nil
}

// EMGMode maps the configured EMG mode name to its wire value.
func (c *Config) EMGMode() (wire.EMGMode, error) {
	switch c.Modes.EMG {
	case "", "none":
		return wire.EMGModeNone, nil
	case "filtered":
		return wire.EMGModeSendFilt, nil
	case "emg":
		return wire.EMGModeSendEMG, nil
	case "raw":
		return wire.EMGModeSendRaw, nil
	default:
		return 0, fmt.Errorf("modes.emg must be none, filtered, emg, or raw, got %q", c.Modes.EMG)
	}
}

// IMUMode maps the configured IMU mode name to its wire value.
func (c *Config) IMUMode() (wire.IMUMode, error) {
	switch c.Modes.IMU {
	case "", "none":
		return wire.IMUModeNone, nil
	case "data":
		return wire.IMUModeSendData, nil
	case "events":
		return wire.IMUModeSendEvents, nil
	case "all":
		return wire.IMUModeSendAll, nil
	case "raw":
		return wire.IMUModeSendRaw, nil
	default:
		return 0, fmt.Errorf("modes.imu must be none, data, events, all, or raw, got %q", c.Modes.IMU)
	}
}

// ClassifierMode maps the configured classifier mode name to its wire value.
func (c *Config) ClassifierMode() (wire.ClassifierMode, error) {
	switch c.Modes.Classifier {
	case "", "disabled":
		return wire.ClassifierModeDisabled, nil
	case "enabled":
		return wire.ClassifierModeEnabled, nil
	default:
		return 0, fmt.Errorf("modes.classifier must be disabled or enabled, got %q", c.Modes.Classifier)
	}
}

// SetModeCommand builds the SetMode command from the configured mode names.
func (c *Config) SetModeCommand() (wire.SetMode, error) {
	emg, err := c.EMGMode()
	if err != nil {
		return wire.SetMode{}, err
	}
	imu, err := c.IMUMode()
	if err != nil {
		return wire.SetMode{}, err
	}
	cls, err := c.ClassifierMode()
	if err != nil {
		return wire.SetMode{}, err
	}
	return wire.SetMode{EMG: emg, IMU: imu, Classifier: cls}, nil
}

// WireScales converts the configured scales for the decoder.
func (c *Config) WireScales() wire.Scales {
	return wire.Scales{
		Orientation:   c.Scales.Orientation,
		Accelerometer: c.Scales.Accelerometer,
		Gyroscope:     c.Scales.Gyroscope,
	}
}
