package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Path != DefaultLogPath {
		t.Errorf("Expected default log path %s, got %s", DefaultLogPath, cfg.Log.Path)
	}
	if cfg.Log.WaitTimeout != DefaultWaitTimeout {
		t.Errorf("Expected default wait timeout %s, got %s", DefaultWaitTimeout, cfg.Log.WaitTimeout)
	}
	if cfg.Log.PollInterval != DefaultPollInterval {
		t.Errorf("Expected default poll interval %s, got %s", DefaultPollInterval, cfg.Log.PollInterval)
	}
	if cfg.ListenAddr() != "0.0.0.0:8000" {
		t.Errorf("Expected default listen address 0.0.0.0:8000, got %s", cfg.ListenAddr())
	}
	if cfg.Daemon.Name != "arpwatch" {
		t.Errorf("Expected default daemon name arpwatch, got %s", cfg.Daemon.Name)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging defaults: %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadYAML(t *testing.T) {
	content := `
log:
  path: /tmp/test-arpwatch.log
  wait_timeout: 10s
  poll_interval: 50ms
metrics:
  address: 127.0.0.1
  port: 9099
daemon:
  name: arpwatchd
logging:
  level: debug
  format: console
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Path != "/tmp/test-arpwatch.log" {
		t.Errorf("Unexpected log path: %s", cfg.Log.Path)
	}
	if cfg.Log.WaitTimeout != 10*time.Second {
		t.Errorf("Unexpected wait timeout: %s", cfg.Log.WaitTimeout)
	}
	if cfg.Log.PollInterval != 50*time.Millisecond {
		t.Errorf("Unexpected poll interval: %s", cfg.Log.PollInterval)
	}
	if cfg.ListenAddr() != "127.0.0.1:9099" {
		t.Errorf("Unexpected listen address: %s", cfg.ListenAddr())
	}
	if cfg.Daemon.Name != "arpwatchd" {
		t.Errorf("Unexpected daemon name: %s", cfg.Daemon.Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Unexpected log level: %s", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARPWATCH_LOG_FILE", "/custom/arpwatch.log")
	t.Setenv("ARPWATCH_METRICS_PORT", "9200")
	t.Setenv("ARPWATCH_FILE_WAIT_TIMEOUT", "5s")
	t.Setenv("ARPWATCH_POLL_INTERVAL", "250ms")
	t.Setenv("ARPWATCH_DAEMON_NAME", "arpwatch-ng")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Path != "/custom/arpwatch.log" {
		t.Errorf("Expected env log path, got %s", cfg.Log.Path)
	}
	if cfg.Metrics.Port != 9200 {
		t.Errorf("Expected env port 9200, got %d", cfg.Metrics.Port)
	}
	if cfg.Log.WaitTimeout != 5*time.Second {
		t.Errorf("Expected env wait timeout 5s, got %s", cfg.Log.WaitTimeout)
	}
	if cfg.Log.PollInterval != 250*time.Millisecond {
		t.Errorf("Expected env poll interval 250ms, got %s", cfg.Log.PollInterval)
	}
	if cfg.Daemon.Name != "arpwatch-ng" {
		t.Errorf("Expected env daemon name, got %s", cfg.Daemon.Name)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	content := `
log:
  path: /from/file.log
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("ARPWATCH_LOG_FILE", "/from/env.log")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Path != "/from/env.log" {
		t.Errorf("Expected environment to win, got %s", cfg.Log.Path)
	}
}

func TestInvalidEnvValues(t *testing.T) {
	t.Setenv("ARPWATCH_METRICS_PORT", "not-a-port")
	if _, err := Load(""); err == nil {
		t.Error("Expected an error for an invalid port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty log path", func(c *Config) { c.Log.Path = "" }},
		{"zero poll interval", func(c *Config) { c.Log.PollInterval = 0 }},
		{"bad port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero daemon interval", func(c *Config) { c.Daemon.CheckInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}
