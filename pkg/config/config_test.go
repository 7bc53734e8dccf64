package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/webhook"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DatabasePath != "securelock.db" {
		t.Errorf("expected securelock.db, got %s", cfg.DatabasePath)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info level, got %s", cfg.Logging.Level)
	}
	if cfg.Sensors.LightThreshold != 10 {
		t.Errorf("expected light threshold 10, got %v", cfg.Sensors.LightThreshold)
	}
	if cfg.Sensors.FaceDownZ != -9 {
		t.Errorf("expected face-down z -9, got %v", cfg.Sensors.FaceDownZ)
	}
	if cfg.Sensors.SampleInterval != time.Second {
		t.Errorf("expected 1s interval, got %v", cfg.Sensors.SampleInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NotExists(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sensors.PocketProbeWait != 500*time.Millisecond {
		t.Errorf("expected default probe wait, got %v", cfg.Sensors.PocketProbeWait)
	}
}

func TestLoad_Exists(t *testing.T) {
	dir := t.TempDir()
	content := `
database_path: /var/lib/securelock/lock.db
logging:
  level: debug
  file: securelock.log
sensors:
  light_threshold: 4.5
  sample_interval: 250ms
metrics:
  address: 127.0.0.1:9464
webhook:
  enabled: true
  hooks:
    - url: https://example.invalid/hook
      secret: s3cret
      events: [intruder_attempt, lockout_started]
      enabled: true
      timeout: 2s
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "/var/lib/securelock/lock.db" {
		t.Errorf("unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.File != "securelock.log" {
		t.Errorf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.Sensors.LightThreshold != 4.5 {
		t.Errorf("expected 4.5, got %v", cfg.Sensors.LightThreshold)
	}
	if cfg.Sensors.SampleInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Sensors.SampleInterval)
	}
	// Unset keys keep their defaults.
	if cfg.Sensors.FaceDownZ != -9 {
		t.Errorf("expected default face-down z, got %v", cfg.Sensors.FaceDownZ)
	}
	if cfg.Metrics.Address != "127.0.0.1:9464" {
		t.Errorf("unexpected metrics address %s", cfg.Metrics.Address)
	}
	if len(cfg.Webhook.Hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(cfg.Webhook.Hooks))
	}
	hook := cfg.Webhook.Hooks[0]
	if hook.Timeout != 2*time.Second || len(hook.Events) != 2 || hook.Events[0] != webhook.AttemptEvent {
		t.Errorf("unexpected hook %+v", hook)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("sensors: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("sensors:\n  sample_interval: 0s\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(dir)
	if !errors.Is(err, errclass.ErrConfigInvalid) {
		t.Errorf("expected E_CONFIG_INVALID, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"negative interval", func(c *Config) { c.Sensors.SampleInterval = -time.Second }},
		{"zero probe wait", func(c *Config) { c.Sensors.PocketProbeWait = 0 }},
		{"negative threshold", func(c *Config) { c.Sensors.LightThreshold = -1 }},
		{"hook without url", func(c *Config) {
			c.Webhook.Hooks = []webhook.HookConfig{{Enabled: true}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, errclass.ErrConfigInvalid) {
				t.Errorf("expected E_CONFIG_INVALID, got %v", err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	cfg := Default()
	cfg.Logging.Level = "warn"
	cfg.Sensors.SampleInterval = 2 * time.Second

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", loaded.Logging.Level)
	}
	if loaded.Sensors.SampleInterval != 2*time.Second {
		t.Errorf("expected 2s, got %v", loaded.Sensors.SampleInterval)
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.DatabasePath = ""
	if err := Save(t.TempDir(), cfg); err == nil {
		t.Error("expected validation error")
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/data", "lock.db"); got != filepath.Join("/data", "lock.db") {
		t.Errorf("unexpected %s", got)
	}
	if got := Resolve("/data", "/abs/lock.db"); got != "/abs/lock.db" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
	if got := Resolve("/data", ""); got != "" {
		t.Errorf("empty should stay empty, got %s", got)
	}
}
