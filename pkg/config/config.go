// Package config holds the application configuration and logger setup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	OutputFormat   string        `yaml:"output_format" default:"table"` // table, json
	EventBuffer    int           `yaml:"event_buffer" default:"64"`
	NotifyBuffer   int           `yaml:"notify_buffer" default:"128"`
}

// DefaultConfig returns the configuration with default values applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalYAML decodes the config, parsing durations from strings like
// "10s". Keys absent from the document keep their current values, so
// unmarshalling on top of DefaultConfig keeps the defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LogLevel       *string `yaml:"log_level"`
		ScanTimeout    *string `yaml:"scan_timeout"`
		ConnectTimeout *string `yaml:"connect_timeout"`
		OutputFormat   *string `yaml:"output_format"`
		EventBuffer    *int    `yaml:"event_buffer"`
		NotifyBuffer   *int    `yaml:"notify_buffer"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.ScanTimeout != nil {
		d, err := time.ParseDuration(*raw.ScanTimeout)
		if err != nil {
			return fmt.Errorf("invalid scan_timeout: %w", err)
		}
		c.ScanTimeout = d
	}
	if raw.ConnectTimeout != nil {
		d, err := time.ParseDuration(*raw.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("invalid connect_timeout: %w", err)
		}
		c.ConnectTimeout = d
	}
	if raw.OutputFormat != nil {
		c.OutputFormat = *raw.OutputFormat
	}
	if raw.EventBuffer != nil {
		c.EventBuffer = *raw.EventBuffer
	}
	if raw.NotifyBuffer != nil {
		c.NotifyBuffer = *raw.NotifyBuffer
	}
	return nil
}

// Validate rejects values the rest of the application cannot work with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.OutputFormat != "table" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output format %q, want table or json", c.OutputFormat)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event buffer must be positive, got %d", c.EventBuffer)
	}
	if c.NotifyBuffer <= 0 {
		return fmt.Errorf("notify buffer must be positive, got %d", c.NotifyBuffer)
	}
	return nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
