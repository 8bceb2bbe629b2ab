package config

import (
	"fmt"
	"time"
)

// Config represents an inlet.yaml configuration file.
// All values are optional and act as defaults for inlet run flags.
// CLI flags always override config values.
type Config struct {
	Reveal  RevealConfig  `yaml:"reveal"`
	Retry   RetryConfig   `yaml:"retry"`
	Store   StoreConfig   `yaml:"store"`
	Journal JournalConfig `yaml:"journal"`
	Archive ArchiveConfig `yaml:"archive"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// RevealConfig holds reveal pacing defaults from the config file.
type RevealConfig struct {
	// Pacer selects the reveal strategy: "time-sliced" or "char-paced".
	Pacer string `yaml:"pacer"`
	// FlushInterval is the minimum interval between UI flushes
	// (time-sliced pacer).
	FlushInterval Duration `yaml:"flush_interval,omitempty"`
	// CharsPerSecond is the reveal rate (char-paced pacer).
	CharsPerSecond float64 `yaml:"chars_per_second,omitempty"`
}

// RetryConfig holds connect retry defaults from the config file.
type RetryConfig struct {
	Attempts  int      `yaml:"attempts,omitempty"`
	BaseDelay Duration `yaml:"base_delay,omitempty"`
	MaxDelay  Duration `yaml:"max_delay,omitempty"`
}

// StoreConfig holds state repository defaults from the config file.
type StoreConfig struct {
	// Backend selects the store implementation: "memory" or "redis".
	Backend string `yaml:"backend"`
	// URL is the redis connection URL.
	URL string `yaml:"url,omitempty"`
	// KeyPrefix namespaces redis keys.
	KeyPrefix string `yaml:"key_prefix,omitempty"`
	// Timeout bounds each store operation.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// JournalConfig holds record journaling defaults from the config file.
type JournalConfig struct {
	// Path is the journal file destination. Empty disables journaling.
	Path string `yaml:"path,omitempty"`
}

// ArchiveConfig holds sealed-artifact archival defaults from the
// config file.
type ArchiveConfig struct {
	Bucket      string `yaml:"bucket,omitempty"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// AdapterConfig holds completion notification defaults from the
// config file.
type AdapterConfig struct {
	// Type selects the adapter: "webhook" or "redis".
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "100ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "100ms" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks cross-field constraints that YAML parsing cannot.
func (c *Config) Validate() error {
	switch c.Reveal.Pacer {
	case "", "time-sliced", "char-paced":
	default:
		return fmt.Errorf("unknown pacer %q", c.Reveal.Pacer)
	}
	switch c.Store.Backend {
	case "", "memory":
	case "redis":
		if c.Store.URL == "" {
			return fmt.Errorf("redis store requires a url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Adapter.Type {
	case "":
	case "webhook":
		if c.Adapter.URL == "" {
			return fmt.Errorf("webhook adapter requires a url")
		}
	case "redis":
		if c.Adapter.URL == "" || c.Adapter.Channel == "" {
			return fmt.Errorf("redis adapter requires a url and a channel")
		}
	default:
		return fmt.Errorf("unknown adapter type %q", c.Adapter.Type)
	}
	return nil
}
