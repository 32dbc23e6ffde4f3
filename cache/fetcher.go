package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Loader reads the authoritative value for a key.
type Loader func(ctx context.Context) ([]byte, error)

// PendingRequest marks an in-flight load. It is shared by every caller that
// missed the cache for the same key while the load was running.
type PendingRequest struct {
	key     string
	started time.Time
	done    chan struct{}
	value   []byte
	err     error
	waiters atomic.Int32
}

// Key returns the cache key being loaded.
func (p *PendingRequest) Key() string { return p.key }

// Waiters returns the number of callers currently attached.
func (p *PendingRequest) Waiters() int { return int(p.waiters.Load()) }

// Done is closed once the load settled.
func (p *PendingRequest) Done() <-chan struct{} { return p.done }

// FetcherStats is a snapshot of Fetcher counters.
type FetcherStats struct {
	Requests    int64
	LoaderCalls int64
	DedupHits   int64
	InFlight    int
}

// DedupRatio is the fraction of cache-miss requests that did not cause a
// loader call.
func (s FetcherStats) DedupRatio() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Requests-s.LoaderCalls) / float64(s.Requests)
}

// Fetcher collapses concurrent misses on the same key into one loader call.
//
// The loader runs in its own goroutine, detached from the caller that
// started it and bounded by LoaderTimeout, so a caller giving up never
// cancels the load for the others. Values returned by Fetch are shared
// between callers and must not be modified.
type Fetcher struct {
	cache   *Tiered
	cfg     Config
	pending *xsync.MapOf[string, *PendingRequest]
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	requests    *xsync.Counter
	loaderCalls *xsync.Counter
	dedupHits   *xsync.Counter
}

// NewFetcher returns a Fetcher reading through c.
func NewFetcher(c *Tiered, cfg Config, opts ...Option) *Fetcher {
	o := buildOptions(opts)
	return &Fetcher{
		cache:       c,
		cfg:         cfg,
		pending:     xsync.NewMapOf[string, *PendingRequest](),
		logger:      o.logger.With().Str("component", "fetcher").Logger(),
		metrics:     o.metrics,
		now:         o.now,
		requests:    xsync.NewCounter(),
		loaderCalls: xsync.NewCounter(),
		dedupHits:   xsync.NewCounter(),
	}
}

// Cache returns the underlying tiered cache.
func (f *Fetcher) Cache() *Tiered { return f.cache }

// Fetch returns the cached value for key, or loads it once no matter how many
// callers ask concurrently. Successful loads are cached for ttl. Errors are
// shared by every waiter and never cached.
func (f *Fetcher) Fetch(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if value, ok := f.cache.Get(ctx, key); ok {
		return value, nil
	}

	f.requests.Inc()
	f.metrics.Requests.Inc()

	leader := false
	req, _ := f.pending.Compute(key, func(old *PendingRequest, loaded bool) (*PendingRequest, bool) {
		if loaded {
			old.waiters.Add(1)
			return old, false
		}
		leader = true
		p := &PendingRequest{key: key, started: f.now(), done: make(chan struct{})}
		p.waiters.Add(1)
		return p, false
	})

	if leader {
		go f.run(ctx, req, ttl, load)
	} else {
		f.dedupHits.Inc()
		f.metrics.DedupHits.Inc()
	}

	return f.wait(ctx, req)
}

// Pending returns the in-flight request for key, if any.
func (f *Fetcher) Pending(key string) (*PendingRequest, bool) {
	return f.pending.Load(key)
}

// Invalidate drops every key under the given prefixes. Loads already in
// flight for those keys are detached: their current waiters still get the
// result, later callers start a fresh load.
func (f *Fetcher) Invalidate(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		f.pending.Range(func(key string, req *PendingRequest) bool {
			if strings.HasPrefix(key, prefix) {
				f.detach(key, req)
			}
			return true
		})
		f.cache.InvalidateByPrefix(ctx, prefix)
	}
}

// Delete drops the given keys and detaches their in-flight loads.
func (f *Fetcher) Delete(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if req, ok := f.pending.Load(key); ok {
			f.detach(key, req)
		}
		f.cache.Delete(ctx, key)
	}
}

func (f *Fetcher) detach(key string, req *PendingRequest) {
	f.pending.Compute(key, func(old *PendingRequest, loaded bool) (*PendingRequest, bool) {
		return old, loaded && old == req
	})
}

// Flush waits until queued writes to slower tiers are applied.
func (f *Fetcher) Flush(ctx context.Context) error {
	return f.cache.Flush(ctx)
}

// Stats returns a snapshot of the dedup counters.
func (f *Fetcher) Stats() FetcherStats {
	return FetcherStats{
		Requests:    f.requests.Value(),
		LoaderCalls: f.loaderCalls.Value(),
		DedupHits:   f.dedupHits.Value(),
		InFlight:    f.pending.Size(),
	}
}

func (f *Fetcher) wait(ctx context.Context, req *PendingRequest) ([]byte, error) {
	defer req.waiters.Add(-1)

	select {
	case <-req.done:
		return req.value, req.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fetcher) run(ctx context.Context, req *PendingRequest, ttl time.Duration, load Loader) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.LoaderTimeout)
	defer cancel()

	// A previous leader may have filled the cache between our miss and the
	// pending insert.
	if value, ok := f.cache.Get(lctx, req.key); ok {
		req.value = value
	} else {
		f.loaderCalls.Inc()
		f.metrics.LoaderCalls.Inc()

		req.value, req.err = f.load(lctx, req.key, load)
		if req.err == nil {
			f.cache.SetEntry(lctx, req.key, Entry{Value: req.value, StoredAt: req.started}, ttl)
		}
	}

	f.detach(req.key, req)
	close(req.done)
}

func (f *Fetcher) load(ctx context.Context, key string, load Loader) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: loader for %s panicked: %v", key, r)
			f.logger.Error().Str("key", key).Interface("panic", r).Msg("loader panicked")
		}
	}()
	return load(ctx)
}
