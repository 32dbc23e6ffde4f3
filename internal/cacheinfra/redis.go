package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-vocabulary-store/cache"
)

// RedisTier stores entries in a shared Redis. Entries carry their own expiry
// and Redis is given the same TTL so abandoned keys disappear on their own.
// Prefix invalidation iterates SCAN MATCH and deletes the matches in
// batches; it is not atomic with concurrent writers.
type RedisTier struct {
	client    redis.UniversalClient
	scanCount int64
	ownClient bool
	now       func() time.Time
}

// NewRedisTier dials Redis with cfg. The connection is verified lazily on
// first use.
func NewRedisTier(cfg RedisConfig) (*RedisTier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &RedisTier{client: client, scanCount: cfg.ScanCount, ownClient: true, now: time.Now}, nil
}

// NewRedisTierFromClient wraps an existing client. Close leaves it open.
func NewRedisTierFromClient(client redis.UniversalClient, scanCount int64) *RedisTier {
	if scanCount <= 0 {
		scanCount = DefaultRedisConfig().ScanCount
	}
	return &RedisTier{client: client, scanCount: scanCount, now: time.Now}
}

func (r *RedisTier) Name() string { return "redis" }

func (r *RedisTier) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return entry, true, nil
}

func (r *RedisTier) Set(ctx context.Context, key string, entry cache.Entry) error {
	ttl := entry.TTL(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisTier) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisTier) InvalidateByPrefix(ctx context.Context, prefix string) error {
	match := escapeGlob(prefix) + "*"

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, r.scanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del %s: %w", prefix, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTier) Close() error {
	if !r.ownClient {
		return nil
	}
	return r.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
