package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/events"
	"github.com/goliatone/go-vocabulary-store/internal/cacheinfra"
	"github.com/goliatone/go-vocabulary-store/repositorycache"
	"github.com/goliatone/go-vocabulary-store/storage/memstore"
	"github.com/goliatone/go-vocabulary-store/storage/sqlstore"
	"github.com/goliatone/go-vocabulary-store/vocab"
)

// Container owns every component of a running store and closes them in
// reverse order of construction.
type Container struct {
	config   Config
	logger   zerolog.Logger
	db       *bun.DB
	tiered   *cache.Tiered
	fetcher  *cache.Fetcher
	emitter  *events.Emitter
	backend  vocab.Backend
	cached   *repositorycache.CachedBackend
	service  *vocab.Service
	registry prometheus.Registerer
}

// Option customises NewContainer.
type Option func(*options)

type options struct {
	logger      zerolog.Logger
	registry    prometheus.Registerer
	sink        events.Sink
	backend     vocab.Backend
	redisClient redis.UniversalClient
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers cache, service and event metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithSink sets where events are delivered. The default logs them.
func WithSink(sink events.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithBackend replaces the configured backing store.
func WithBackend(b vocab.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithRedisClient makes the remote tier use client instead of dialing. The
// container does not close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) { o.redisClient = client }
}

// NewContainer validates cfg and builds the tier chain, the backing store,
// the event emitter and the service on top of them. On error everything
// built so far is closed.
func NewContainer(ctx context.Context, cfg Config, opts ...Option) (_ *Container, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = events.LogSink{Logger: o.logger}
	}

	c := &Container{config: cfg, logger: o.logger, registry: o.registry}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	if o.backend == nil && cfg.Database.Driver != DriverMemory {
		if c.db, err = openDB(cfg.Database); err != nil {
			return nil, err
		}
	}

	layers, err := c.buildLayers(ctx, o)
	if err != nil {
		return nil, err
	}

	cacheMetrics := cache.NewMetrics(cfg.Namespace, o.registry)
	cacheOpts := []cache.Option{cache.WithLogger(o.logger), cache.WithMetrics(cacheMetrics)}
	if c.tiered, err = cache.NewTiered(cfg.Cache, layers, cacheOpts...); err != nil {
		for _, layer := range layers {
			_ = layer.Tier.Close()
		}
		return nil, err
	}
	c.fetcher = cache.NewFetcher(c.tiered, cfg.Cache, cacheOpts...)

	if c.backend, err = c.buildBackend(ctx, o); err != nil {
		return nil, err
	}

	codec := cache.NewKeyCodec(cfg.Namespace)
	c.cached = repositorycache.New(c.backend, c.fetcher,
		repositorycache.WithTTL(cfg.listCacheTTL()),
		repositorycache.WithKeyCodec(codec),
		repositorycache.WithLogger(o.logger),
	)

	emitterOpts := []events.Option{events.WithLogger(o.logger)}
	if o.registry != nil {
		emitterOpts = append(emitterOpts, events.WithRegisterer(cfg.Namespace, o.registry))
	}
	if c.emitter, err = events.NewEmitter(cfg.Events, o.sink, emitterOpts...); err != nil {
		return nil, err
	}

	c.service, err = vocab.NewService(c.cached, c.fetcher,
		vocab.WithConfig(cfg.Vocab),
		vocab.WithLogger(o.logger),
		vocab.WithEmitter(c.emitter),
		vocab.WithKeyCodec(codec),
		vocab.WithMetrics(vocab.NewMetrics(cfg.Namespace, o.registry)),
	)
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Strs("tiers", c.tiered.Tiers()).
		Str("driver", c.driver(o)).
		Msg("vocabulary store ready")
	return c, nil
}

// NewContainerWithDefaults builds a container from DefaultConfig.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, DefaultConfig(), opts...)
}

// Service returns the vocabulary service.
func (c *Container) Service() *vocab.Service { return c.service }

// Fetcher returns the deduplicating read-through cache.
func (c *Container) Fetcher() *cache.Fetcher { return c.fetcher }

// Cache returns the tier chain.
func (c *Container) Cache() *cache.Tiered { return c.tiered }

// Backend returns the uncached backing store.
func (c *Container) Backend() vocab.Backend { return c.backend }

// Emitter returns the event emitter.
func (c *Container) Emitter() *events.Emitter { return c.emitter }

// DB returns the database handle, or nil with the memory driver.
func (c *Container) DB() *bun.DB { return c.db }

// Config returns the configuration the container was built with.
func (c *Container) Config() Config { return c.config }

// Close drains events and queued cache writes, then closes the tiers and the
// database. It is safe on a partially built container.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.service != nil {
		errs = append(errs, c.service.Close(ctx))
	} else if c.emitter != nil {
		errs = append(errs, c.emitter.Close(ctx))
	}
	if c.tiered != nil {
		errs = append(errs, c.tiered.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}

func (c *Container) buildLayers(ctx context.Context, o options) ([]cache.Layer, error) {
	var layers []cache.Layer

	switch c.config.Local.Kind {
	case LocalSturdyc:
		tier, err := cacheinfra.NewSturdycTier(c.config.Local.Sturdyc)
		if err != nil {
			return nil, fmt.Errorf("local tier: %w", err)
		}
		layers = append(layers, cache.Layer{Tier: tier})
	default:
		tier, err := cacheinfra.NewLRUTier(c.config.Local.LRU)
		if err != nil {
			return nil, fmt.Errorf("local tier: %w", err)
		}
		layers = append(layers, cache.Layer{Tier: tier})
	}

	if c.config.Redis.Enabled {
		var tier *cacheinfra.RedisTier
		if o.redisClient != nil {
			tier = cacheinfra.NewRedisTierFromClient(o.redisClient, c.config.Redis.ScanCount)
		} else {
			var err error
			if tier, err = cacheinfra.NewRedisTier(c.config.Redis.RedisConfig); err != nil {
				closeLayers(layers)
				return nil, fmt.Errorf("redis tier: %w", err)
			}
		}
		layers = append(layers, cache.Layer{Tier: tier, MaxTTL: c.config.Redis.MaxTTL})
	}

	if c.config.Durable.Enabled && c.db != nil {
		tier, err := cacheinfra.NewSQLTier(c.db, c.config.Durable.SQLConfig)
		if err == nil && c.config.Database.AutoMigrate {
			err = tier.CreateSchema(ctx)
		}
		if err != nil {
			if tier != nil {
				_ = tier.Close()
			}
			closeLayers(layers)
			return nil, fmt.Errorf("durable tier: %w", err)
		}
		layers = append(layers, cache.Layer{Tier: tier, MaxTTL: c.config.Durable.MaxTTL})
	}

	return layers, nil
}

func (c *Container) buildBackend(ctx context.Context, o options) (vocab.Backend, error) {
	if o.backend != nil {
		return o.backend, nil
	}
	if c.db == nil {
		return memstore.New(), nil
	}

	store := sqlstore.New(c.db)
	if c.config.Database.AutoMigrate {
		if err := store.CreateSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (c *Container) driver(o options) string {
	if o.backend != nil {
		return "custom"
	}
	return c.config.Database.Driver
}

func openDB(cfg DatabaseConfig) (*bun.DB, error) {
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	switch cfg.Driver {
	case DriverPostgres:
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
}

func closeLayers(layers []cache.Layer) {
	for _, layer := range layers {
		_ = layer.Tier.Close()
	}
}
