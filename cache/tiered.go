package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// ErrNoTiers is returned by NewTiered when the chain is empty.
var ErrNoTiers = errors.New("cache: at least one tier is required")

type writeJob struct {
	layer int
	key   string
	entry Entry
}

// Tiered is an ordered chain of tiers, fastest first.
//
// Reads probe the tiers in order and copy a hit into every faster tier before
// returning. Writes go to the first tier synchronously and to the others
// through a bounded queue. Tier failures are logged and counted, never
// returned.
//
// Every invalidation leaves a tombstone for its prefix. An entry read from any
// tier whose StoredAt is not after a matching tombstone is discarded, which
// covers tiers that failed to invalidate and writes that raced with the
// invalidation.
type Tiered struct {
	layers  []Layer
	cfg     Config
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	tombstones *xsync.MapOf[string, time.Time]
	lastPrune  atomic.Int64

	counters tieredCounters

	queue    chan writeJob
	inflight atomic.Int64
	mu       sync.RWMutex
	closed   bool
	workers  sync.WaitGroup
}

// Option configures optional collaborators of Tiered and Fetcher.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// WithLogger sets the logger used to report tier failures and drops.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics("", nil)
	}
	return o
}

// NewTiered starts the async writers and returns the chain.
func NewTiered(cfg Config, layers []Layer, opts ...Option) (*Tiered, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, ErrNoTiers
	}

	o := buildOptions(opts)
	c := &Tiered{
		layers:     layers,
		cfg:        cfg,
		logger:     o.logger.With().Str("component", "tiered_cache").Logger(),
		metrics:    o.metrics,
		now:        o.now,
		tombstones: xsync.NewMapOf[string, time.Time](),
		counters:   newTieredCounters(len(layers)),
		queue:      make(chan writeJob, cfg.AsyncQueueSize),
	}

	for i := 0; i < cfg.AsyncWorkers; i++ {
		c.workers.Add(1)
		go c.drain()
	}
	return c, nil
}

// Tiers returns the names of the configured tiers in probe order.
func (c *Tiered) Tiers() []string {
	names := make([]string, len(c.layers))
	for i, l := range c.layers {
		names[i] = l.Tier.Name()
	}
	return names
}

// Get returns the freshest value for key, or ok=false.
func (c *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, ok := c.GetEntry(ctx, key)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// GetEntry is Get returning the whole entry.
func (c *Tiered) GetEntry(ctx context.Context, key string) (Entry, bool) {
	now := c.now()

	for i, layer := range c.layers {
		name := layer.Tier.Name()

		entry, ok, err := c.tierGet(ctx, i, key)
		if err != nil {
			c.tierFailed(name, "get", err).Str("key", key).Msg("cache tier read failed")
			continue
		}
		if !ok {
			c.metrics.TierMisses.WithLabelValues(name).Inc()
			continue
		}
		if entry.Expired(now) || c.tombstoned(key, entry.StoredAt) {
			c.metrics.TierStale.WithLabelValues(name).Inc()
			if err := c.tierDelete(ctx, i, key); err != nil {
				c.tierFailed(name, "delete", err).Str("key", key).Msg("cache tier stale delete failed")
			}
			continue
		}

		c.metrics.TierHits.WithLabelValues(name).Inc()
		c.counters.hits[i].Inc()

		for j := 0; j < i; j++ {
			c.writeLayer(ctx, j, key, entry)
		}
		return entry, true
	}

	c.counters.misses.Inc()
	return Entry{}, false
}

// Set stores value under key for ttl. A non positive ttl uses DefaultTTL.
func (c *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.SetEntry(ctx, key, Entry{Value: value, StoredAt: c.now()}, ttl)
}

// SetEntry stores entry with its StoredAt preserved and ExpiresAt derived
// from ttl.
func (c *Tiered) SetEntry(ctx context.Context, key string, entry Entry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	if ttl > c.cfg.MaxTTL {
		ttl = c.cfg.MaxTTL
	}
	now := c.now()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = now
	}
	entry.ExpiresAt = now.Add(ttl)

	if c.tombstoned(key, entry.StoredAt) {
		c.logger.Debug().Str("key", key).Msg("skipping write of invalidated value")
		return
	}

	c.writeLayer(ctx, 0, key, entry)
	for i := 1; i < len(c.layers); i++ {
		c.enqueue(writeJob{layer: i, key: key, entry: entry})
	}
}

// Delete removes key from every tier.
func (c *Tiered) Delete(ctx context.Context, key string) {
	c.tombstones.Store(key, c.now())
	for i, layer := range c.layers {
		if err := c.tierDelete(ctx, i, key); err != nil {
			c.tierFailed(layer.Tier.Name(), "delete", err).Str("key", key).Msg("cache tier delete failed")
		}
	}
}

// InvalidateByPrefix drops every key starting with prefix from every tier.
// Calling it repeatedly with the same prefix is harmless. The tombstone only
// matches keys when prefix ends at a KeySeparator boundary, as the prefixes
// built by KeyCodec.Pattern do.
func (c *Tiered) InvalidateByPrefix(ctx context.Context, prefix string) {
	now := c.now()
	c.tombstones.Store(prefix, now)
	c.pruneTombstones(now)

	for i, layer := range c.layers {
		if err := c.tierInvalidate(ctx, i, prefix); err != nil {
			c.tierFailed(layer.Tier.Name(), "invalidate", err).
				Str("prefix", prefix).
				Msg("cache tier invalidation failed, relying on tombstone")
		}
	}
}

// Flush blocks until queued writes to slower tiers are done or ctx ends.
func (c *Tiered) Flush(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for c.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops the async writers, waits for queued writes and closes every
// tier.
func (c *Tiered) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.workers.Wait()

	var errs []error
	for _, layer := range c.layers {
		if err := layer.Tier.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of hit and drop counters.
func (c *Tiered) Stats() TieredStats {
	s := TieredStats{
		Hits:       make(map[string]int64, len(c.layers)),
		Misses:     c.counters.misses.Value(),
		AsyncDrops: c.counters.asyncDrops.Value(),
		TierErrors: c.counters.tierErrors.Value(),
		Tombstones: c.tombstones.Size(),
	}
	for i, layer := range c.layers {
		s.Hits[layer.Tier.Name()] = c.counters.hits[i].Value()
	}
	return s
}

func (c *Tiered) writeLayer(ctx context.Context, i int, key string, entry Entry) {
	layer := c.layers[i]
	if layer.MaxTTL > 0 {
		if limit := c.now().Add(layer.MaxTTL); entry.ExpiresAt.After(limit) {
			entry.ExpiresAt = limit
		}
	}
	if err := c.tierSet(ctx, i, key, entry); err != nil {
		c.tierFailed(layer.Tier.Name(), "set", err).Str("key", key).Msg("cache tier write failed")
	}
}

func (c *Tiered) enqueue(job writeJob) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	c.inflight.Add(1)
	select {
	case c.queue <- job:
	default:
		c.inflight.Add(-1)
		c.counters.asyncDrops.Inc()
		c.metrics.AsyncDrops.Inc()
		c.logger.Warn().
			Str("tier", c.layers[job.layer].Tier.Name()).
			Str("key", job.key).
			Msg("async cache write dropped, queue full")
	}
}

func (c *Tiered) drain() {
	defer c.workers.Done()

	for job := range c.queue {
		if !c.tombstoned(job.key, job.entry.StoredAt) {
			c.writeLayer(context.Background(), job.layer, job.key, job.entry)
		}
		c.inflight.Add(-1)
	}
}

// tombstoned reports whether an invalidation recorded at or after storedAt
// covers key. Tombstones are looked up at every segment boundary of key and
// for the key itself.
func (c *Tiered) tombstoned(key string, storedAt time.Time) bool {
	if c.tombstones.Size() == 0 {
		return false
	}

	covered := func(prefix string) bool {
		at, ok := c.tombstones.Load(prefix)
		return ok && !storedAt.After(at)
	}

	if covered(key) {
		return true
	}
	for i := 0; i < len(key); {
		idx := strings.Index(key[i:], KeySeparator)
		if idx < 0 {
			break
		}
		i += idx + len(KeySeparator)
		if covered(key[:i]) {
			return true
		}
	}
	return false
}

func (c *Tiered) pruneTombstones(now time.Time) {
	last := c.lastPrune.Load()
	if now.UnixNano()-last < int64(c.cfg.MaxTTL/4) {
		return
	}
	if !c.lastPrune.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	horizon := now.Add(-2 * c.cfg.MaxTTL)
	c.tombstones.Range(func(prefix string, at time.Time) bool {
		if at.Before(horizon) {
			c.tombstones.Delete(prefix)
		}
		return true
	})
}

// tierCtx bounds calls to slower tiers. Mutations are detached from the
// caller so a cancelled request cannot leave a tier half updated.
func (c *Tiered) tierCtx(ctx context.Context, i int) (context.Context, context.CancelFunc) {
	if i == 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), c.cfg.TierTimeout)
}

func (c *Tiered) tierGet(ctx context.Context, i int, key string) (Entry, bool, error) {
	if i == 0 {
		return c.layers[0].Tier.Get(ctx, key)
	}
	tctx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
	defer cancel()
	return c.layers[i].Tier.Get(tctx, key)
}

func (c *Tiered) tierSet(ctx context.Context, i int, key string, entry Entry) error {
	tctx, cancel := c.tierCtx(ctx, i)
	defer cancel()
	return c.layers[i].Tier.Set(tctx, key, entry)
}

func (c *Tiered) tierDelete(ctx context.Context, i int, key string) error {
	tctx, cancel := c.tierCtx(ctx, i)
	defer cancel()
	return c.layers[i].Tier.Delete(tctx, key)
}

func (c *Tiered) tierInvalidate(ctx context.Context, i int, prefix string) error {
	tctx, cancel := c.tierCtx(ctx, i)
	defer cancel()
	return c.layers[i].Tier.InvalidateByPrefix(tctx, prefix)
}

func (c *Tiered) tierFailed(tier, op string, err error) *zerolog.Event {
	c.counters.tierErrors.Inc()
	c.metrics.TierErrors.WithLabelValues(tier, op).Inc()
	return c.logger.Warn().Err(err).Str("tier", tier).Str("op", op)
}
