package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"balance-board/ble"
	"balance-board/board"
)

// Config is the top-level YAML document.
type Config struct {
	Board        BoardConfig     `yaml:"board"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
}

// BoardConfig selects the board and tunes its input pipeline.
type BoardConfig struct {
	Address          string        `yaml:"address"`
	Characteristic   string        `yaml:"characteristic"`
	ActivationDeg    float64       `yaml:"activation_deg"`
	ReleaseDeg       *float64      `yaml:"release_deg"`
	SmoothingSamples int           `yaml:"smoothing_samples"`
	ScanTimeout      time.Duration `yaml:"scan_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	ResolveTimeout   time.Duration `yaml:"resolve_timeout"`
}

// TelemetryConfig controls the optional dashboard outputs.
type TelemetryConfig struct {
	// Listen is the HTTP/WebSocket address. Empty disables the server.
	Listen string     `yaml:"listen"`
	MQTT   MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures direction event publishing.
type MQTTConfig struct {
	// Broker is e.g. tcp://localhost:1883. Empty disables publishing.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// Default returns a Config with every default applied and no address.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config. A missing board.address is reported by Validate,
// so callers can still supply it from a flag.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()

	if err := cfg.validateTuning(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Board.Characteristic == "" {
		c.Board.Characteristic = ble.DefaultCharacteristic
	}
	if c.Board.ActivationDeg == 0 {
		c.Board.ActivationDeg = board.DefaultActivation
	}
	if c.Board.ReleaseDeg == nil {
		r := board.DefaultRelease
		c.Board.ReleaseDeg = &r
	}
	if c.Board.SmoothingSamples == 0 {
		c.Board.SmoothingSamples = board.DefaultSamples
	}

	defaults := ble.DefaultConfig()
	if c.Board.ScanTimeout <= 0 {
		c.Board.ScanTimeout = defaults.ScanTimeout
	}
	if c.Board.ConnectTimeout <= 0 {
		c.Board.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.Board.ResolveTimeout <= 0 {
		c.Board.ResolveTimeout = defaults.ResolveTimeout
	}

	// One frame at ~60 fps.
	if c.PollInterval <= 0 {
		c.PollInterval = 16 * time.Millisecond
	}

	if c.Telemetry.MQTT.ClientID == "" {
		c.Telemetry.MQTT.ClientID = "balance-board"
	}
	if c.Telemetry.MQTT.Topic == "" {
		c.Telemetry.MQTT.Topic = "balanceboard/direction"
	}
}

func (c Config) validateTuning() error {
	if c.Board.SmoothingSamples < 1 {
		return fmt.Errorf("board.smoothing_samples must be >= 1")
	}
	if c.Board.ActivationDeg <= 0 {
		return fmt.Errorf("board.activation_deg must be > 0")
	}
	if *c.Board.ReleaseDeg < 0 {
		return fmt.Errorf("board.release_deg must be >= 0")
	}
	if *c.Board.ReleaseDeg >= c.Board.ActivationDeg {
		return fmt.Errorf("board.release_deg must be < board.activation_deg")
	}
	if _, err := ble.NormalizeUUID(c.Board.Characteristic); err != nil {
		return fmt.Errorf("board.characteristic: %w", err)
	}
	return nil
}

// Validate checks the complete config, including the required address.
func (c Config) Validate() error {
	if c.Board.Address == "" {
		return fmt.Errorf("board.address is required")
	}
	return c.validateTuning()
}

// Central returns the BLE settings.
func (c Config) Central() ble.Config {
	return ble.Config{
		Address:        c.Board.Address,
		Characteristic: c.Board.Characteristic,
		ScanTimeout:    c.Board.ScanTimeout,
		ConnectTimeout: c.Board.ConnectTimeout,
		ResolveTimeout: c.Board.ResolveTimeout,
	}
}

// Tuning returns the smoothing and hysteresis settings.
func (c Config) Tuning() board.Config {
	return board.Config{
		Activation: c.Board.ActivationDeg,
		Release:    *c.Board.ReleaseDeg,
		Samples:    c.Board.SmoothingSamples,
	}
}
