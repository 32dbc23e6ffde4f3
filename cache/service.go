package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidResultType is returned when a fetched value cannot be encoded
// for caching.
var ErrInvalidResultType = errors.New("cache: value cannot be encoded")

// FetchFn is the function signature GetOrFetch expects when loading from the
// source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Store is the read-through surface consumed by services: deduplicated
// fetches plus the two invalidation primitives.
type Store interface {
	Fetch(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error)
	Invalidate(ctx context.Context, prefixes ...string)
	Delete(ctx context.Context, keys ...string)
}

var _ Store = (*Fetcher)(nil)

// GetOrFetch is a type-safe wrapper over Store.Fetch. Values are encoded
// with msgpack. An entry that no longer decodes into T is dropped and the
// value is loaded again from fetchFn.
func GetOrFetch[T any](ctx context.Context, store Store, key string, ttl time.Duration, fetchFn FetchFn[T]) (T, error) {
	var zero T

	raw, err := store.Fetch(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		value, err := fetchFn(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := msgpack.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResultType, err)
		}
		return encoded, nil
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		store.Delete(ctx, key)
		return fetchFn(ctx)
	}
	return out, nil
}
