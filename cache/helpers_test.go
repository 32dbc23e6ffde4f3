package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-vocabulary-store/pkg/testsupport"
)

// mockTier is an in-memory Tier that counts calls and injects failures.
type mockTier struct {
	name string

	mu            sync.Mutex
	entries       map[string]Entry
	getErr        error
	setErr        error
	invalidateErr error
	setGate       chan struct{}

	gets          int
	sets          int
	deletes       int
	invalidations int
}

func newMockTier(name string) *mockTier {
	return &mockTier{name: name, entries: make(map[string]Entry)}
}

func (m *mockTier) Name() string { return m.name }

func (m *mockTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return Entry{}, false, m.getErr
	}
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *mockTier) Set(ctx context.Context, key string, entry Entry) error {
	m.mu.Lock()
	gate := m.setGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = entry
	return nil
}

func (m *mockTier) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.entries, key)
	return nil
}

func (m *mockTier) InvalidateByPrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations++
	if m.invalidateErr != nil {
		return m.invalidateErr
	}
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *mockTier) Close() error { return nil }

func (m *mockTier) put(key string, value string, storedAt time.Time, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Value: []byte(value), StoredAt: storedAt, ExpiresAt: storedAt.Add(ttl)}
}

func (m *mockTier) entry(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *mockTier) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AsyncWorkers = 1
	cfg.LoaderTimeout = 2 * time.Second
	return cfg
}

func newTestTiered(t *testing.T, clock *testsupport.Clock, tiers ...*mockTier) *Tiered {
	t.Helper()

	layers := make([]Layer, len(tiers))
	for i, tier := range tiers {
		layers[i] = Layer{Tier: tier}
	}

	opts := []Option{}
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	c, err := NewTiered(testConfig(), layers, opts...)
	if err != nil {
		t.Fatalf("NewTiered() failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}
