package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     string          `yaml:"log_level" default:"info"`
	OutputFormat string          `yaml:"output_format" default:"table"`
	Adapter      AdapterConfig   `yaml:"adapter"`
	Download     DownloadConfig  `yaml:"download"`
	Poll         PollConfig      `yaml:"poll"`
	Metrics      MetricsConfig   `yaml:"metrics"`
	Timescale    TimescaleConfig `yaml:"timescale"`
}

// AdapterConfig bounds the BLE link.
type AdapterConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"5s"`
}

// DownloadConfig tunes history downloads.
type DownloadConfig struct {
	Timeout      time.Duration `yaml:"timeout" default:"15s"`
	PollInterval time.Duration `yaml:"poll_interval" default:"500ms"`
}

// PollConfig drives the run command.
type PollConfig struct {
	Interval     time.Duration `yaml:"interval" default:"10m"`
	ScanDuration time.Duration `yaml:"scan_duration" default:"10s"`
	// Devices lists gadget addresses; empty means scan for gadgets every round.
	Devices []string `yaml:"devices"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" default:":9100"`
}

// TimescaleConfig enables the database sink when ConnString is set.
type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table" default:"gadget_samples"`
	BatchSize  int    `yaml:"batch_size" default:"500"`
}

var (
	outputFormats = []string{"table", "json", "csv"}
	tableName     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, fills unset fields with defaults and validates
// the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse is Load for an in-memory document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	defaults.SetDefaults(c)

	devices := c.Poll.Devices[:0]
	for _, d := range c.Poll.Devices {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, d)
		}
	}
	c.Poll.Devices = devices
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if !contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("output_format %q is not one of %s", c.OutputFormat, strings.Join(outputFormats, ", "))
	}

	for name, d := range map[string]time.Duration{
		"adapter.connect_timeout": c.Adapter.ConnectTimeout,
		"adapter.request_timeout": c.Adapter.RequestTimeout,
		"download.timeout":        c.Download.Timeout,
		"download.poll_interval":  c.Download.PollInterval,
		"poll.interval":           c.Poll.Interval,
		"poll.scan_duration":      c.Poll.ScanDuration,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Download.PollInterval > c.Download.Timeout {
		return fmt.Errorf("download.poll_interval %s exceeds download.timeout %s", c.Download.PollInterval, c.Download.Timeout)
	}

	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if c.Timescale.ConnString != "" {
		if !tableName.MatchString(c.Timescale.Table) {
			return fmt.Errorf("timescale.table %q is not a valid table name", c.Timescale.Table)
		}
		if c.Timescale.BatchSize <= 0 {
			return fmt.Errorf("timescale.batch_size must be positive, got %d", c.Timescale.BatchSize)
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
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

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
