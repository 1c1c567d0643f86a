// Package config reads and writes the per-directory watcher configuration
// stored at .autobackup/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autobackup-watch/autobackup/pkg/fsutil"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

// DefaultPollInterval is used when no positive interval is configured.
const DefaultPollInterval = 5

// Corrupt state policies.
const (
	CorruptAbort   = "abort"
	CorruptDiscard = "discard"
)

// Config represents the watcher configuration.
type Config struct {
	PollInterval   int             `yaml:"poll_interval"` // seconds
	OnCorruptState string          `yaml:"on_corrupt_state"`
	NotifyEvents   bool            `yaml:"notify_events"`
	Logging        LoggingConfig   `yaml:"logging"`
	Metrics        MetricsConfig   `yaml:"metrics"`
	Webhooks       []WebhookConfig `yaml:"webhooks,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the Prometheus exporter. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// WebhookConfig is one notification endpoint.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

// Keys lists the settable scalar keys in display order.
var Keys = []string{
	"poll_interval",
	"on_corrupt_state",
	"notify_events",
	"logging.level",
	"logging.format",
	"metrics.addr",
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		PollInterval:   DefaultPollInterval,
		OnCorruptState: CorruptAbort,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the config file location for a watched directory.
func Path(watchDir string) string {
	return filepath.Join(watchDir, model.BackupDirName, model.ConfigFile)
}

// Load loads configuration for watchDir.
// Returns default config if file doesn't exist.
func Load(watchDir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(watchDir))
	if errors.Is(err, os.ErrNotExist) {
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

// Save writes configuration for watchDir.
func Save(watchDir string, cfg *Config) error {
	cfgPath := Path(watchDir)

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate rejects values the watcher cannot act on.
func (c *Config) Validate() error {
	switch c.OnCorruptState {
	case "", CorruptAbort, CorruptDiscard:
	default:
		return fmt.Errorf("on_corrupt_state: %q is not abort or discard", c.OnCorruptState)
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhooks[%d]: url is required", i)
		}
	}
	return nil
}

// Interval returns the poll interval, falling back to the default for
// non-positive values.
func (c *Config) Interval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval * time.Second
	}
	return time.Duration(c.PollInterval) * time.Second
}

// CorruptPolicy returns the effective corrupt state policy.
func (c *Config) CorruptPolicy() string {
	if c.OnCorruptState == "" {
		return CorruptAbort
	}
	return c.OnCorruptState
}

// Get returns the string form of a scalar key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "poll_interval":
		return strconv.Itoa(c.PollInterval), nil
	case "on_corrupt_state":
		return c.OnCorruptState, nil
	case "notify_events":
		return strconv.FormatBool(c.NotifyEvents), nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "metrics.addr":
		return c.Metrics.Addr, nil
	default:
		return "", fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
}

// Set parses value and assigns it to key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "poll_interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		c.PollInterval = n
	case "on_corrupt_state":
		c.OnCorruptState = value
	case "notify_events":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("notify_events: %w", err)
		}
		c.NotifyEvents = b
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	case "metrics.addr":
		c.Metrics.Addr = value
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	return c.Validate()
}
