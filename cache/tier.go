package cache

import (
	"context"
	"time"
)

// Entry is a cached value with its expiry. StoredAt is the instant the value
// was read from the source of truth; invalidations recorded after it win over
// the entry.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
	StoredAt  time.Time
}

// Expired reports whether e must no longer be served at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// TTL returns the remaining lifetime of e at now.
func (e Entry) TTL(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}

// Tier is one backend in the ordered chain consulted by Tiered.
//
// Get returns ok=false for a missing key. Implementations may return expired
// entries; Tiered treats them as misses. InvalidateByPrefix removes every key
// starting with prefix using whatever the backend supports natively.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	InvalidateByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Layer places a Tier in the chain. MaxTTL caps the lifetime of entries
// written to it; zero leaves the caller's TTL untouched.
type Layer struct {
	Tier   Tier
	MaxTTL time.Duration
}
