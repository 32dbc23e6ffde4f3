package vocab_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/events"
	"github.com/goliatone/go-vocabulary-store/internal/cacheinfra"
	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/goliatone/go-vocabulary-store/storage/memstore"
	"github.com/goliatone/go-vocabulary-store/vocab"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// countingStore records every invalidation issued by the service.
type countingStore struct {
	*cache.Fetcher

	mu            sync.Mutex
	invalidations [][]string
	deletes       [][]string
}

func (c *countingStore) Invalidate(ctx context.Context, prefixes ...string) {
	c.mu.Lock()
	c.invalidations = append(c.invalidations, prefixes)
	c.mu.Unlock()
	c.Fetcher.Invalidate(ctx, prefixes...)
}

func (c *countingStore) Delete(ctx context.Context, keys ...string) {
	c.mu.Lock()
	c.deletes = append(c.deletes, keys)
	c.mu.Unlock()
	c.Fetcher.Delete(ctx, keys...)
}

func (c *countingStore) invalidateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.invalidations)
}

func (c *countingStore) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations = nil
	c.deletes = nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return true
}

func (r *recordingEmitter) received() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

type harness struct {
	backend *memstore.Store
	store   *countingStore
	emitter *recordingEmitter
	svc     *vocab.Service
}

func fastConfig() vocab.Config {
	cfg := vocab.DefaultConfig()
	cfg.Retry = retry.Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		Multiplier:     2,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*vocab.Config)) *harness {
	t.Helper()

	cfg := fastConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	local, err := cacheinfra.NewLRUTier(cacheinfra.LRUConfig{Capacity: 1000})
	require.NoError(t, err)
	tiered, err := cache.NewTiered(cache.DefaultConfig(), []cache.Layer{{Tier: local}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tiered.Close() })

	h := &harness{
		backend: memstore.New(),
		store:   &countingStore{Fetcher: cache.NewFetcher(tiered, cache.DefaultConfig())},
		emitter: &recordingEmitter{},
	}
	h.svc, err = vocab.NewService(h.backend, h.store,
		vocab.WithConfig(cfg),
		vocab.WithEmitter(h.emitter),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) list(t *testing.T, owner string, vis authz.Visibility) vocab.List {
	t.Helper()
	l, err := h.svc.CreateList(context.Background(), owner, vocab.NewList{
		Name:       owner + " words",
		Visibility: vis,
		SourceLang: "es",
		TargetLang: "en",
	})
	require.NoError(t, err)
	return l
}

func (h *harness) add(t *testing.T, owner string, listID uuid.UUID, words ...string) []vocab.Item {
	t.Helper()
	inputs := make([]vocab.NewItem, len(words))
	for i, w := range words {
		inputs[i] = sampleItem(listID, w)
	}
	res := h.svc.AddBatch(context.Background(), owner, inputs)
	require.Empty(t, res.Failed)
	return res.Values()
}

func sampleItem(listID uuid.UUID, source string) vocab.NewItem {
	return vocab.NewItem{
		ListID:     listID,
		SourceText: source,
		TargetText: fmt.Sprintf("%s (en)", source),
		Category:   "general",
		Difficulty: 3,
	}
}
