// Package config provides configuration file support for SecureLock.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/fsutil"
	"github.com/securelock/securelock/pkg/webhook"
)

// FileName is the configuration file name inside the data directory.
const FileName = "config.yaml"

// Config represents the SecureLock configuration.
type Config struct {
	DatabasePath string         `yaml:"database_path"`
	AuditLogPath string         `yaml:"audit_log_path"`
	MediaDir     string         `yaml:"media_dir"`
	Logging      LoggingConfig  `yaml:"logging"`
	Sensors      SensorConfig   `yaml:"sensors"`
	Metrics      MetricsConfig  `yaml:"metrics"`
	Webhook      webhook.Config `yaml:"webhook"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"` // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SensorConfig tunes proximity detection.
type SensorConfig struct {
	LightThreshold  float64       `yaml:"light_threshold"`
	FaceDownZ       float64       `yaml:"face_down_z"`
	FlatZ           float64       `yaml:"flat_z"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
	PocketProbeWait time.Duration `yaml:"pocket_probe_wait"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DatabasePath: "securelock.db",
		AuditLogPath: filepath.Join("audit", "journal.jsonl"),
		MediaDir:     "media",
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		Sensors: SensorConfig{
			LightThreshold:  10,
			FaceDownZ:       -9,
			FlatZ:           9,
			SampleInterval:  time.Second,
			PocketProbeWait: 500 * time.Millisecond,
		},
		Webhook: *webhook.DefaultConfig(),
	}
}

// Validate rejects values the coordinator cannot work with.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errclass.ErrConfigInvalid.WithMessage("database_path must not be empty")
	}
	if c.Sensors.SampleInterval <= 0 {
		return errclass.ErrConfigInvalid.WithMessagef("sensors.sample_interval must be positive, got %s", c.Sensors.SampleInterval)
	}
	if c.Sensors.PocketProbeWait <= 0 {
		return errclass.ErrConfigInvalid.WithMessagef("sensors.pocket_probe_wait must be positive, got %s", c.Sensors.PocketProbeWait)
	}
	if c.Sensors.LightThreshold < 0 {
		return errclass.ErrConfigInvalid.WithMessage("sensors.light_threshold must not be negative")
	}
	for i, h := range c.Webhook.Hooks {
		if h.URL == "" {
			return errclass.ErrConfigInvalid.WithMessagef("webhook.hooks[%d].url must not be empty", i)
		}
	}
	return nil
}

// Resolve returns p joined to dataDir unless p is already absolute.
func Resolve(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

// Load loads configuration from <dataDir>/config.yaml.
// Returns default config if file doesn't exist.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(dataDir, FileName)

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to <dataDir>/config.yaml.
func Save(dataDir string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(filepath.Join(dataDir, FileName), data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
