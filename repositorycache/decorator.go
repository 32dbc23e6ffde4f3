package repositorycache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/vocab"
)

// Interface assertion to ensure CachedBackend implements vocab.Backend
var _ vocab.Backend = (*CachedBackend)(nil)

// DefaultTTL bounds how long a resolved list may be served from cache.
const DefaultTTL = time.Minute

// CachedBackend decorates a vocab.Backend, caching list reads. Item reads and
// every write pass through; list writes drop the cached list and every
// cached list index.
type CachedBackend struct {
	base   vocab.Backend
	store  cache.Store
	codec  cache.KeyCodec
	ttl    time.Duration
	logger zerolog.Logger

	byID  string
	index string
}

// Option configures a CachedBackend.
type Option func(*CachedBackend)

// WithTTL sets the lifetime of cached lists.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedBackend) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyCodec sets the codec building cache keys. Use the same namespace as
// the service when both share a store.
func WithKeyCodec(codec cache.KeyCodec) Option {
	return func(c *CachedBackend) { c.codec = codec }
}

// WithLogger sets the logger used for invalidation traces.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *CachedBackend) { c.logger = logger }
}

// New wraps base, caching list reads in store.
func New(base vocab.Backend, store cache.Store, opts ...Option) *CachedBackend {
	c := &CachedBackend{
		base:   base,
		store:  store,
		codec:  cache.NewKeyCodec("vocab"),
		ttl:    DefaultTTL,
		logger: zerolog.Nop(),
		byID:   resourceName[vocab.List](),
	}
	c.index = c.byID + "_index"
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "repositorycache").Logger()
	return c
}

// Base returns the decorated backend.
func (c *CachedBackend) Base() vocab.Backend { return c.base }

// GetList reads through the cache unless ctx bypasses it.
func (c *CachedBackend) GetList(ctx context.Context, id uuid.UUID) (vocab.List, error) {
	if vocab.CacheBypassed(ctx) {
		return c.base.GetList(ctx, id)
	}
	l, err := cache.GetOrFetch(ctx, c.store, c.listKey(id), c.ttl, func(ctx context.Context) (vocab.List, error) {
		return c.base.GetList(ctx, id)
	})
	if err != nil {
		return vocab.List{}, err
	}
	return utcList(l), nil
}

// ListLists reads through the cache unless ctx bypasses it.
func (c *CachedBackend) ListLists(ctx context.Context, ownerID string, includePublic bool) ([]vocab.List, error) {
	if vocab.CacheBypassed(ctx) {
		return c.base.ListLists(ctx, ownerID, includePublic)
	}
	key := c.codec.Key(c.index, ownerID, map[string]any{"include_public": includePublic})
	lists, err := cache.GetOrFetch(ctx, c.store, key, c.ttl, func(ctx context.Context) ([]vocab.List, error) {
		return c.base.ListLists(ctx, ownerID, includePublic)
	})
	if err != nil {
		return nil, err
	}
	for i := range lists {
		lists[i] = utcList(lists[i])
	}
	return lists, nil
}

func (c *CachedBackend) InsertList(ctx context.Context, list vocab.List) error {
	if err := c.base.InsertList(ctx, list); err != nil {
		return err
	}
	c.invalidate(ctx, list.ID)
	return nil
}

func (c *CachedBackend) UpdateList(ctx context.Context, id uuid.UUID, patch vocab.ListPatch) (vocab.List, error) {
	l, err := c.base.UpdateList(ctx, id, patch)
	if err != nil {
		return vocab.List{}, err
	}
	c.invalidate(ctx, id)
	return l, nil
}

func (c *CachedBackend) GetItem(ctx context.Context, id uuid.UUID) (vocab.Item, error) {
	return c.base.GetItem(ctx, id)
}

func (c *CachedBackend) Query(ctx context.Context, filter vocab.ItemFilter, sort vocab.Sort, limit, offset int) ([]vocab.Item, int, error) {
	return c.base.Query(ctx, filter, sort, limit, offset)
}

func (c *CachedBackend) InsertMany(ctx context.Context, items []vocab.Item) error {
	return c.base.InsertMany(ctx, items)
}

func (c *CachedBackend) UpdateOne(ctx context.Context, id uuid.UUID, patch vocab.ItemPatch) (vocab.Item, error) {
	return c.base.UpdateOne(ctx, id, patch)
}

func (c *CachedBackend) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	return c.base.DeleteMany(ctx, ids)
}

func (c *CachedBackend) listKey(id uuid.UUID) string {
	return c.codec.Key(c.byID, "", id.String())
}

// invalidate drops the list itself and every owner's index, since a public
// list shows up in indexes of other owners.
func (c *CachedBackend) invalidate(ctx context.Context, id uuid.UUID) {
	key := c.listKey(id)
	prefix := c.codec.Pattern(c.index, "")
	c.store.Delete(ctx, key)
	c.store.Invalidate(ctx, prefix)
	c.logger.Debug().Str("key", key).Str("prefix", prefix).Msg("list cache invalidated")
}

func utcList(l vocab.List) vocab.List {
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l
}
