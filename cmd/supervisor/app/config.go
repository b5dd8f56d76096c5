package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/drone-supervisor/internal/link/mavlink"
)

const (
	defaultWaitTimeout   = 30 * time.Second
	defaultDataDirectory = "data"
)

// TimeDuration is a time.Duration read from strings such as "30s" or "2m"
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Link     LinkConfig    `yaml:"link"`
	Storage  StorageConfig `yaml:"storage"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// LinkConfig describes how the vehicle is reached
type LinkConfig struct {
	Endpoint        string       `yaml:"endpoint"`        // tcp:, tcpin:, udp:, udpin: or serial: endpoint
	Simulate        bool         `yaml:"simulate"`        // Fly the built-in simulated vehicle instead
	WaitTimeout     TimeDuration `yaml:"waitTimeout"`     // How long to wait for the first heartbeat
	SystemID        uint8        `yaml:"systemID"`        // Our own MAVLink system ID
	TargetSystem    uint8        `yaml:"targetSystem"`    // Vehicle system ID
	TargetComponent uint8        `yaml:"targetComponent"` // Vehicle component ID
	SilenceAfter    TimeDuration `yaml:"silenceAfter"`    // Simulated vehicle only: stop heartbeats after this long
}

// StorageConfig represents the flight recorder settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// MetricsConfig represents the Prometheus endpoint settings
type MetricsConfig struct {
	Address string `yaml:"address"` // Listen address, empty disables the endpoint
}

// NewConfig returns a configuration with defaults applied
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Link: LinkConfig{
			WaitTimeout: TimeDuration(defaultWaitTimeout),
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
		},
	}
}

// LoadConfig reads and validates a YAML configuration file
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	c := NewConfig()
	if err = yaml.Unmarshal(p, c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Link.WaitTimeout <= 0 {
		return fmt.Errorf("link.waitTimeout must be positive: %s", c.Link.WaitTimeout.Duration())
	}
	if c.Link.SilenceAfter < 0 {
		return fmt.Errorf("link.silenceAfter must not be negative: %s", c.Link.SilenceAfter.Duration())
	}

	if !c.Link.Simulate {
		if c.Link.Endpoint == "" {
			return fmt.Errorf("link.endpoint is required unless link.simulate is set")
		}
		if _, err := mavlink.ParseEndpoint(c.Link.Endpoint); err != nil {
			return fmt.Errorf("link.endpoint: %w", err)
		}
	}

	if c.Storage.Enabled && c.Storage.DataDirectory == "" {
		return fmt.Errorf("storage.dataDirectory is required when storage is enabled")
	}
	return nil
}
