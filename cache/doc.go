// Package cache provides a tiered read-through cache with request
// deduplication and prefix invalidation.
//
// # Overview
//
// The package is built from four pieces:
//
//   - KeyCodec: builds resource::owner::digest keys and their prefixes
//   - Tier: one backend in the chain (local LRU, Redis, SQL, sturdyc)
//   - Tiered: probes tiers fastest first and repairs faster tiers on a hit
//   - Fetcher: collapses concurrent misses on one key into one loader call
//
// Tier implementations live in internal/cacheinfra and are wired by pkg/di.
//
// # Basic Usage
//
//	codec := cache.NewKeyCodec("vocab")
//	key := codec.Key("items", ownerID, filter)
//
//	items, err := cache.GetOrFetch(ctx, fetcher, key, time.Minute, func(ctx context.Context) ([]Item, error) {
//		return backend.Query(ctx, filter)
//	})
//
// After a write, drop every cached read of the owner:
//
//	fetcher.Invalidate(ctx, codec.Pattern("items", ownerID))
//
// # Failure Semantics
//
// A failing tier is logged and treated as a miss for that tier only. Errors
// never leave Tiered; the worst case is a trip to the source of truth.
//
// # Expiry and Invalidation
//
// Expiry is checked on read. An expired entry in a fast tier is discarded and
// the next tier is consulted. Invalidation removes keys natively in every
// tier and records a tombstone so that entries which survived a failing tier,
// or were written by a load that started before the invalidation, are never
// served.
package cache
