package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// TracingConfig selects the OpenTelemetry exporter for operation spans.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" default:"noop"` // noop, stdout
}

// Config holds library and CLI configuration
type Config struct {
	LogLevel            string        `yaml:"log_level" default:"info"`
	ObserverBuffer      int           `yaml:"observer_buffer" default:"64"`
	ScanAllowDuplicates bool          `yaml:"scan_allow_duplicates"`
	ScanTimeout         time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" default:"30s"`
	OutputFormat        string        `yaml:"output_format" default:"table"` // table, json
	Tracing             TracingConfig `yaml:"tracing"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ObserverBuffer <= 0 {
		return fmt.Errorf("observer_buffer must be positive, got %d", c.ObserverBuffer)
	}
	if c.ScanTimeout < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("unsupported output_format %q", c.OutputFormat)
	}
	switch c.Tracing.Exporter {
	case "", "noop", "stdout":
	default:
		return fmt.Errorf("unsupported tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
