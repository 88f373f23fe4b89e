package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the exporter configuration.
type Config struct {
	Log     LogFileConfig `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// LogFileConfig configures the followed log file.
type LogFileConfig struct {
	Path             string        `yaml:"path"`
	WaitTimeout      time.Duration `yaml:"wait_timeout"`
	OpenPollInterval time.Duration `yaml:"open_poll_interval"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxLineBytes     int           `yaml:"max_line_bytes"`
}

// MetricsConfig configures the metrics HTTP endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// DaemonConfig configures detection of the monitored arpwatch process.
type DaemonConfig struct {
	Name          string        `yaml:"name"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default values
const (
	DefaultLogPath          = "/var/log/arpwatch.log"
	DefaultWaitTimeout      = 60 * time.Second
	DefaultOpenPollInterval = 2 * time.Second
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultMaxLineBytes     = 64 * 1024
	DefaultMetricsAddress   = "0.0.0.0"
	DefaultMetricsPort      = 8000
	DefaultMetricsPath      = "/metrics"
	DefaultDaemonName       = "arpwatch"
	DefaultDaemonInterval   = 30 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// Load loads configuration from a YAML file with environment variable
// expansion, then applies ARPWATCH_* overrides and defaults. An empty path
// skips the file and configures from environment and defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnv applies ARPWATCH_* environment variable overrides. Environment
// wins over the file so the container deployment can run without one.
func (c *Config) applyEnv() error {
	if v := os.Getenv("ARPWATCH_LOG_FILE"); v != "" {
		c.Log.Path = v
	}
	if v := os.Getenv("ARPWATCH_METRICS_ADDRESS"); v != "" {
		c.Metrics.Address = v
	}
	if v := os.Getenv("ARPWATCH_METRICS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ARPWATCH_METRICS_PORT %q: %w", v, err)
		}
		c.Metrics.Port = port
	}
	if v := os.Getenv("ARPWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARPWATCH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("ARPWATCH_DAEMON_NAME"); v != "" {
		c.Daemon.Name = v
	}

	for _, env := range []struct {
		name string
		dst  *time.Duration
	}{
		{"ARPWATCH_FILE_WAIT_TIMEOUT", &c.Log.WaitTimeout},
		{"ARPWATCH_POLL_INTERVAL", &c.Log.PollInterval},
		{"ARPWATCH_DAEMON_CHECK_INTERVAL", &c.Daemon.CheckInterval},
	} {
		v := os.Getenv(env.name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", env.name, v, err)
		}
		*env.dst = d
	}

	return nil
}

// applyDefaults sets default values for unspecified configuration
func (c *Config) applyDefaults() {
	if c.Log.Path == "" {
		c.Log.Path = DefaultLogPath
	}
	if c.Log.WaitTimeout == 0 {
		c.Log.WaitTimeout = DefaultWaitTimeout
	}
	if c.Log.OpenPollInterval == 0 {
		c.Log.OpenPollInterval = DefaultOpenPollInterval
	}
	if c.Log.PollInterval == 0 {
		c.Log.PollInterval = DefaultPollInterval
	}
	if c.Log.MaxLineBytes == 0 {
		c.Log.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Daemon.Name == "" {
		c.Daemon.Name = DefaultDaemonName
	}
	if c.Daemon.CheckInterval == 0 {
		c.Daemon.CheckInterval = DefaultDaemonInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Log.Path == "" {
		return fmt.Errorf("log path must be configured")
	}
	if c.Log.WaitTimeout < 0 {
		return fmt.Errorf("log wait timeout must not be negative")
	}
	if c.Log.OpenPollInterval <= 0 {
		return fmt.Errorf("log open poll interval must be positive")
	}
	if c.Log.PollInterval <= 0 {
		return fmt.Errorf("log poll interval must be positive")
	}
	if c.Log.MaxLineBytes <= 0 {
		return fmt.Errorf("max line bytes must be positive")
	}
	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	if c.Daemon.CheckInterval <= 0 {
		return fmt.Errorf("daemon check interval must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// ListenAddr returns the host:port the metrics server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Metrics.Address, c.Metrics.Port)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
