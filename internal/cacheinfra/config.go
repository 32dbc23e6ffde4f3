package cacheinfra

import (
	"time"
)

// LRUConfig configures the in-process least recently used tier.
type LRUConfig struct {
	// Capacity is the hard ceiling on stored entries. Must be greater than 0.
	Capacity int `yaml:"capacity"`

	// SweepInterval enables a background pass removing expired entries.
	// Zero disables it; expiry is always checked on read.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SturdycConfig holds the configuration for the sturdyc backed local tier.
type SturdycConfig struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int `yaml:"capacity"`

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int `yaml:"num_shards"`

	// TTL is the lifetime sturdyc applies to every entry. The entry's own
	// expiry still wins when it is shorter.
	TTL time.Duration `yaml:"ttl"`

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int `yaml:"eviction_percentage"`

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration `yaml:"eviction_interval"`
}

// RedisConfig configures the shared remote tier.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ScanCount is the COUNT hint used while scanning keys to invalidate.
	ScanCount int64 `yaml:"scan_count"`
}

// SQLConfig configures the durable tier stored in a relational database.
type SQLConfig struct {
	// SweepInterval enables a background delete of expired rows.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultLRUConfig returns a 10000 entry LRU with a one minute sweep.
func DefaultLRUConfig() LRUConfig {
	return LRUConfig{
		Capacity:      10000,
		SweepInterval: time.Minute,
	}
}

// DefaultSturdycConfig returns a Config with sensible defaults for most use cases.
func DefaultSturdycConfig() SturdycConfig {
	return SturdycConfig{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// DefaultRedisConfig targets a local Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		ScanCount:    200,
	}
}

// DefaultSQLConfig sweeps expired rows every ten minutes.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{SweepInterval: 10 * time.Minute}
}

// Validate checks if the configuration values are valid.
func (c LRUConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.SweepInterval < 0 {
		return &ConfigError{Field: "SweepInterval", Message: "must be non-negative"}
	}
	return nil
}

// Validate checks if the configuration values are valid.
func (c SturdycConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Addr", Message: "cannot be empty"}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "DB", Message: "must be non-negative"}
	}
	if c.ScanCount <= 0 {
		return &ConfigError{Field: "ScanCount", Message: "must be greater than 0"}
	}
	return nil
}

// Validate checks if the configuration values are valid.
func (c SQLConfig) Validate() error {
	if c.SweepInterval < 0 {
		return &ConfigError{Field: "SweepInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
