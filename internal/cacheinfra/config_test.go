package cacheinfra

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigs(t *testing.T) {
	if err := DefaultLRUConfig().Validate(); err != nil {
		t.Errorf("DefaultLRUConfig invalid: %v", err)
	}
	if err := DefaultRedisConfig().Validate(); err != nil {
		t.Errorf("DefaultRedisConfig invalid: %v", err)
	}
	if err := DefaultSQLConfig().Validate(); err != nil {
		t.Errorf("DefaultSQLConfig invalid: %v", err)
	}

	cfg := DefaultSturdycConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultSturdycConfig invalid: %v", err)
	}
	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}
	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}
	if cfg.TTL != 5*time.Minute {
		t.Errorf("expected TTL to be 5 minutes, got %v", cfg.TTL)
	}
	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		validate  func() error
		wantField string
	}{
		{
			name:      "lru zero capacity",
			validate:  LRUConfig{Capacity: 0}.Validate,
			wantField: "Capacity",
		},
		{
			name:      "lru negative sweep",
			validate:  LRUConfig{Capacity: 1, SweepInterval: -time.Second}.Validate,
			wantField: "SweepInterval",
		},
		{
			name: "sturdyc zero shards",
			validate: SturdycConfig{
				Capacity:           100,
				NumShards:          0,
				TTL:                time.Minute,
				EvictionPercentage: 10,
			}.Validate,
			wantField: "NumShards",
		},
		{
			name: "sturdyc zero ttl",
			validate: SturdycConfig{
				Capacity:           100,
				NumShards:          2,
				EvictionPercentage: 10,
			}.Validate,
			wantField: "TTL",
		},
		{
			name: "sturdyc eviction above 100",
			validate: SturdycConfig{
				Capacity:           100,
				NumShards:          2,
				TTL:                time.Minute,
				EvictionPercentage: 101,
			}.Validate,
			wantField: "EvictionPercentage",
		},
		{
			name:      "redis empty addr",
			validate:  RedisConfig{ScanCount: 10}.Validate,
			wantField: "Addr",
		},
		{
			name:      "redis zero scan count",
			validate:  RedisConfig{Addr: "localhost:6379"}.Validate,
			wantField: "ScanCount",
		},
		{
			name:      "sql negative sweep",
			validate:  SQLConfig{SweepInterval: -time.Minute}.Validate,
			wantField: "SweepInterval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, cfgErr.Field)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TestField", Message: "test message"}
	expected := "config error in field TestField: test message"
	if err.Error() != expected {
		t.Errorf("expected error message %q, got %q", expected, err.Error())
	}
}
