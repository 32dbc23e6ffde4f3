package cacheinfra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-vocabulary-store/cache"
)

// cacheEntryRecord is the row layout of the durable tier.
type cacheEntryRecord struct {
	bun.BaseModel `bun:"table:cache_entries,alias:ce"`

	Key       string    `bun:"cache_key,pk"`
	Value     []byte    `bun:"value,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	StoredAt  time.Time `bun:"stored_at,notnull"`
}

// SQLTier keeps entries in a cache_entries table. It is the slowest tier and
// survives restarts. Prefix invalidation is a single DELETE comparing the
// leading characters of the key.
type SQLTier struct {
	db  bun.IDB
	now func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSQLTier wraps db. Call CreateSchema once before use.
func NewSQLTier(db bun.IDB, cfg SQLConfig) (*SQLTier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &SQLTier{
		db:   db,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go t.sweepLoop(cfg.SweepInterval)
	} else {
		close(t.done)
	}
	return t, nil
}

// CreateSchema creates the table and its expiry index when missing.
func (t *SQLTier) CreateSchema(ctx context.Context) error {
	if _, err := t.db.NewCreateTable().
		Model((*cacheEntryRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create cache_entries: %w", err)
	}

	if _, err := t.db.NewCreateIndex().
		Model((*cacheEntryRecord)(nil)).
		Index("cache_entries_expires_at_idx").
		Column("expires_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create cache_entries index: %w", err)
	}
	return nil
}

func (t *SQLTier) Name() string { return "sql" }

func (t *SQLTier) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var record cacheEntryRecord
	err := t.db.NewSelect().
		Model(&record).
		Where("cache_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("sql tier get %s: %w", key, err)
	}

	return cache.Entry{
		Value:     record.Value,
		ExpiresAt: record.ExpiresAt,
		StoredAt:  record.StoredAt,
	}, true, nil
}

func (t *SQLTier) Set(ctx context.Context, key string, entry cache.Entry) error {
	record := &cacheEntryRecord{
		Key:       key,
		Value:     entry.Value,
		ExpiresAt: entry.ExpiresAt.UTC().Truncate(time.Microsecond),
		StoredAt:  entry.StoredAt.UTC().Truncate(time.Microsecond),
	}

	_, err := t.db.NewInsert().
		Model(record).
		On("CONFLICT (cache_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Set("stored_at = EXCLUDED.stored_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sql tier set %s: %w", key, err)
	}
	return nil
}

func (t *SQLTier) Delete(ctx context.Context, key string) error {
	_, err := t.db.NewDelete().
		Model((*cacheEntryRecord)(nil)).
		Where("cache_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sql tier delete %s: %w", key, err)
	}
	return nil
}

func (t *SQLTier) InvalidateByPrefix(ctx context.Context, prefix string) error {
	_, err := t.db.NewDelete().
		Model((*cacheEntryRecord)(nil)).
		Where("substr(cache_key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sql tier invalidate %s: %w", prefix, err)
	}
	return nil
}

// DeleteExpired removes rows whose expiry has passed.
func (t *SQLTier) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := t.db.NewDelete().
		Model((*cacheEntryRecord)(nil)).
		Where("expires_at <= ?", t.now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sql tier sweep: %w", err)
	}
	return res.RowsAffected()
}

func (t *SQLTier) Close() error {
	t.once.Do(func() { close(t.stop) })
	<-t.done
	return nil
}

func (t *SQLTier) sweepLoop(interval time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			_, _ = t.DeleteExpired(ctx)
			cancel()
		}
	}
}
