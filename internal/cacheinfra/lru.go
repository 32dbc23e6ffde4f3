package cacheinfra

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-vocabulary-store/cache"
)

type lruItem struct {
	key   string
	entry cache.Entry
}

// LRUTier is a bounded in-process tier. Once Capacity entries are stored the
// least recently used one is evicted before every insert. Expiry is checked
// on read; the optional sweeper only bounds memory held by entries nobody
// reads.
type LRUTier struct {
	name     string
	capacity int
	now      func() time.Time

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	evictions int64

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewLRUTier validates cfg and starts the sweeper when configured.
func NewLRUTier(cfg LRUConfig) (*LRUTier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &LRUTier{
		name:     "local",
		capacity: cfg.Capacity,
		now:      time.Now,
		ll:       list.New(),
		items:    make(map[string]*list.Element, cfg.Capacity),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go t.sweepLoop(cfg.SweepInterval)
	} else {
		close(t.done)
	}
	return t, nil
}

func (t *LRUTier) Name() string { return t.name }

func (t *LRUTier) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.items[key]
	if !ok {
		return cache.Entry{}, false, nil
	}

	item := elem.Value.(*lruItem)
	if item.entry.Expired(t.now()) {
		t.removeElement(elem)
		return cache.Entry{}, false, nil
	}

	t.ll.MoveToFront(elem)
	return item.entry, true, nil
}

func (t *LRUTier) Set(_ context.Context, key string, entry cache.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.items[key]; ok {
		elem.Value.(*lruItem).entry = entry
		t.ll.MoveToFront(elem)
		return nil
	}

	for t.ll.Len() >= t.capacity {
		t.removeElement(t.ll.Back())
		t.evictions++
	}

	t.items[key] = t.ll.PushFront(&lruItem{key: key, entry: entry})
	return nil
}

func (t *LRUTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.items[key]; ok {
		t.removeElement(elem)
	}
	return nil
}

// InvalidateByPrefix walks the key index and removes every match.
func (t *LRUTier) InvalidateByPrefix(_ context.Context, prefix string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, elem := range t.items {
		if strings.HasPrefix(key, prefix) {
			t.removeElement(elem)
		}
	}
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (t *LRUTier) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for elem := t.ll.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*lruItem).entry.Expired(now) {
			t.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (t *LRUTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ll.Len()
}

// Evictions returns how many entries were dropped to make room.
func (t *LRUTier) Evictions() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictions
}

func (t *LRUTier) Close() error {
	t.once.Do(func() { close(t.stop) })
	<-t.done
	return nil
}

func (t *LRUTier) removeElement(elem *list.Element) {
	t.ll.Remove(elem)
	delete(t.items, elem.Value.(*lruItem).key)
}

func (t *LRUTier) sweepLoop(interval time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
