package cache

import (
	"fmt"
	"time"
)

// Config holds the tuning knobs shared by Tiered and Fetcher.
type Config struct {
	// DefaultTTL applies when Set is called with a non positive ttl.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxTTL caps every entry regardless of the requested ttl. It also bounds
	// how long invalidation tombstones are kept.
	MaxTTL time.Duration `yaml:"max_ttl"`

	// AsyncQueueSize bounds pending writes to slower tiers. Writes beyond it
	// are dropped.
	AsyncQueueSize int `yaml:"async_queue_size"`

	// AsyncWorkers drain the async queue.
	AsyncWorkers int `yaml:"async_workers"`

	// TierTimeout bounds every call made to a tier other than the first.
	TierTimeout time.Duration `yaml:"tier_timeout"`

	// LoaderTimeout bounds every loader run by Fetcher.
	LoaderTimeout time.Duration `yaml:"loader_timeout"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:     5 * time.Minute,
		MaxTTL:         time.Hour,
		AsyncQueueSize: 1024,
		AsyncWorkers:   4,
		TierTimeout:    250 * time.Millisecond,
		LoaderTimeout:  30 * time.Second,
	}
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache config error: %s %s", e.Field, e.Message)
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	if c.MaxTTL < c.DefaultTTL {
		return &ConfigError{Field: "MaxTTL", Message: "must be greater than or equal to DefaultTTL"}
	}
	if c.AsyncQueueSize <= 0 {
		return &ConfigError{Field: "AsyncQueueSize", Message: "must be greater than 0"}
	}
	if c.AsyncWorkers <= 0 {
		return &ConfigError{Field: "AsyncWorkers", Message: "must be greater than 0"}
	}
	if c.TierTimeout <= 0 {
		return &ConfigError{Field: "TierTimeout", Message: "must be greater than 0"}
	}
	if c.LoaderTimeout <= 0 {
		return &ConfigError{Field: "LoaderTimeout", Message: "must be greater than 0"}
	}
	return nil
}
