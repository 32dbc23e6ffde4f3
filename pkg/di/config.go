package di

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/events"
	"github.com/goliatone/go-vocabulary-store/internal/cacheinfra"
	"github.com/goliatone/go-vocabulary-store/vocab"
)

// Local tier kinds.
const (
	LocalLRU     = "lru"
	LocalSturdyc = "sturdyc"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config aggregates the configuration of every wired component.
type Config struct {
	// Namespace prefixes cache keys and metric names.
	Namespace string `yaml:"namespace"`

	Cache    cache.Config   `yaml:"cache"`
	Local    LocalConfig    `yaml:"local"`
	Redis    RedisConfig    `yaml:"redis"`
	Durable  DurableConfig  `yaml:"durable"`
	Database DatabaseConfig `yaml:"database"`
	Vocab    vocab.Config   `yaml:"vocab"`
	Events   events.Config  `yaml:"events"`

	// ListCacheTTL bounds how long resolved lists are cached. Zero uses
	// Vocab.ListTTL.
	ListCacheTTL time.Duration `yaml:"list_cache_ttl"`
}

// LocalConfig selects and configures the in-process tier.
type LocalConfig struct {
	Kind    string                   `yaml:"kind"`
	LRU     cacheinfra.LRUConfig     `yaml:"lru"`
	Sturdyc cacheinfra.SturdycConfig `yaml:"sturdyc"`
}

// RedisConfig enables the shared remote tier.
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxTTL  time.Duration `yaml:"max_ttl"`

	cacheinfra.RedisConfig `yaml:",inline"`
}

// DurableConfig enables the SQL tier. It shares the database of the backing
// store and is ignored with the memory driver.
type DurableConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxTTL  time.Duration `yaml:"max_ttl"`

	cacheinfra.SQLConfig `yaml:",inline"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`

	// AutoMigrate creates missing tables on start.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// DefaultConfig wires an LRU tier in front of an in-memory store.
func DefaultConfig() Config {
	return Config{
		Namespace: "vocab",
		Cache:     cache.DefaultConfig(),
		Local: LocalConfig{
			Kind:    LocalLRU,
			LRU:     cacheinfra.DefaultLRUConfig(),
			Sturdyc: cacheinfra.DefaultSturdycConfig(),
		},
		Redis: RedisConfig{
			MaxTTL:      10 * time.Minute,
			RedisConfig: cacheinfra.DefaultRedisConfig(),
		},
		Durable: DurableConfig{
			MaxTTL:    time.Hour,
			SQLConfig: cacheinfra.DefaultSQLConfig(),
		},
		Database: DatabaseConfig{
			Driver:      DriverMemory,
			AutoMigrate: true,
		},
		Vocab:  vocab.DefaultConfig(),
		Events: events.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the
// result. Durations are Go duration strings such as "90s".
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Validate checks every section. Nested errors are wrapped with the section
// name.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return &ConfigError{Field: "Namespace", Message: "cannot be empty"}
	}
	if c.ListCacheTTL < 0 {
		return &ConfigError{Field: "ListCacheTTL", Message: "must be non-negative"}
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	switch c.Local.Kind {
	case LocalLRU:
		if err := c.Local.LRU.Validate(); err != nil {
			return fmt.Errorf("local.lru: %w", err)
		}
	case LocalSturdyc:
		if err := c.Local.Sturdyc.Validate(); err != nil {
			return fmt.Errorf("local.sturdyc: %w", err)
		}
	default:
		return &ConfigError{Field: "Local.Kind", Message: fmt.Sprintf("unknown kind %q", c.Local.Kind)}
	}

	if c.Redis.Enabled {
		if err := c.Redis.RedisConfig.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if c.Durable.Enabled {
		if err := c.Durable.SQLConfig.Validate(); err != nil {
			return fmt.Errorf("durable: %w", err)
		}
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return &ConfigError{Field: "Database.DSN", Message: "cannot be empty"}
		}
	default:
		return &ConfigError{Field: "Database.Driver", Message: fmt.Sprintf("unknown driver %q", c.Database.Driver)}
	}
	if c.Database.MaxOpenConns < 0 {
		return &ConfigError{Field: "Database.MaxOpenConns", Message: "must be non-negative"}
	}

	if err := c.Vocab.Validate(); err != nil {
		return fmt.Errorf("vocab: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	return nil
}

func (c Config) listCacheTTL() time.Duration {
	if c.ListCacheTTL > 0 {
		return c.ListCacheTTL
	}
	return c.Vocab.ListTTL
}
