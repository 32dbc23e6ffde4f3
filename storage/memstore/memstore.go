// Package memstore is an in-memory vocab.Backend. Every call is atomic under
// one lock. Faults and latency can be injected per operation, which makes it
// the backend of choice for tests and demos.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/goliatone/go-vocabulary-store/vocab"
	"github.com/google/uuid"
)

// Op names a backend method for fault injection and call counting.
type Op string

const (
	OpGetList    Op = "GetList"
	OpInsertList Op = "InsertList"
	OpUpdateList Op = "UpdateList"
	OpListLists  Op = "ListLists"
	OpGetItem    Op = "GetItem"
	OpQuery      Op = "Query"
	OpInsertMany Op = "InsertMany"
	OpUpdateOne  Op = "UpdateOne"
	OpDeleteMany Op = "DeleteMany"
)

// ErrUnavailable is a transient failure suitable for injection.
var ErrUnavailable = retry.MarkTransient(errors.New("memstore: unavailable"))

// ErrDuplicate is returned when inserting an existing id.
var ErrDuplicate = errors.New("memstore: duplicate id")

type fault struct {
	remaining int // negative means forever
	err       error
}

// Store is an in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	lists map[uuid.UUID]vocab.List
	items map[uuid.UUID]vocab.Item

	fmu    sync.Mutex
	faults map[Op]*fault
	delays map[Op]time.Duration
	calls  map[Op]int

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock stamping updates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		lists:  make(map[uuid.UUID]vocab.List),
		items:  make(map[uuid.UUID]vocab.Item),
		faults: make(map[Op]*fault),
		delays: make(map[Op]time.Duration),
		calls:  make(map[Op]int),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext makes the next n calls of op fail with err. A negative n fails
// every call until Reset.
func (s *Store) FailNext(op Op, n int, err error) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.faults[op] = &fault{remaining: n, err: err}
}

// Delay makes every call of op wait d, or until its context is done.
func (s *Store) Delay(op Op, d time.Duration) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.delays[op] = d
}

// Reset clears faults, delays and call counts.
func (s *Store) Reset() {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.faults = make(map[Op]*fault)
	s.delays = make(map[Op]time.Duration)
	s.calls = make(map[Op]int)
}

// Calls returns how many times op was called.
func (s *Store) Calls(op Op) int {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	return s.calls[op]
}

func (s *Store) enter(ctx context.Context, op Op) error {
	s.fmu.Lock()
	s.calls[op]++
	delay := s.delays[op]
	var err error
	if f, ok := s.faults[op]; ok && f.remaining != 0 {
		err = f.err
		if f.remaining > 0 {
			f.remaining--
		}
	}
	s.fmu.Unlock()

	if delay > 0 {
		if serr := retry.Sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	if err != nil {
		return fmt.Errorf("memstore %s: %w", op, err)
	}
	return ctx.Err()
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) GetList(ctx context.Context, id uuid.UUID) (vocab.List, error) {
	if err := s.enter(ctx, OpGetList); err != nil {
		return vocab.List{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return vocab.List{}, vocab.ErrNotFound
	}
	return l, nil
}

func (s *Store) InsertList(ctx context.Context, list vocab.List) error {
	if err := s.enter(ctx, OpInsertList); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[list.ID]; ok {
		return ErrDuplicate
	}
	s.lists[list.ID] = list
	return nil
}

func (s *Store) UpdateList(ctx context.Context, id uuid.UUID, patch vocab.ListPatch) (vocab.List, error) {
	if err := s.enter(ctx, OpUpdateList); err != nil {
		return vocab.List{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[id]
	if !ok {
		return vocab.List{}, vocab.ErrNotFound
	}
	patch.Apply(&l)
	l.UpdatedAt = s.stamp()
	s.lists[id] = l
	return l, nil
}

func (s *Store) ListLists(ctx context.Context, ownerID string, includePublic bool) ([]vocab.List, error) {
	if err := s.enter(ctx, OpListLists); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []vocab.List
	for _, l := range s.lists {
		if (ownerID != "" && l.OwnerID == ownerID) || (includePublic && l.Visibility == authz.Public) {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b vocab.List) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (vocab.Item, error) {
	if err := s.enter(ctx, OpGetItem); err != nil {
		return vocab.Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return vocab.Item{}, vocab.ErrNotFound
	}
	return it, nil
}

func (s *Store) Query(ctx context.Context, filter vocab.ItemFilter, sort vocab.Sort, limit, offset int) ([]vocab.Item, int, error) {
	if err := s.enter(ctx, OpQuery); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	matched := make([]vocab.Item, 0)
	for _, it := range s.items {
		if filter.Match(it) {
			matched = append(matched, it)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, itemOrder(sort))

	total := len(matched)
	if offset >= total {
		return []vocab.Item{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *Store) InsertMany(ctx context.Context, items []vocab.Item) error {
	if err := s.enter(ctx, OpInsertMany); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		if _, ok := s.items[it.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicate, it.ID)
		}
		if _, ok := s.lists[it.ListID]; !ok {
			return fmt.Errorf("memstore: list %s does not exist", it.ListID)
		}
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return nil
}

func (s *Store) UpdateOne(ctx context.Context, id uuid.UUID, patch vocab.ItemPatch) (vocab.Item, error) {
	if err := s.enter(ctx, OpUpdateOne); err != nil {
		return vocab.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return vocab.Item{}, vocab.ErrNotFound
	}
	patch.Apply(&it)
	it.UpdatedAt = s.stamp()
	s.items[id] = it
	return it, nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	if err := s.enter(ctx, OpDeleteMany); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func itemOrder(sort vocab.Sort) func(a, b vocab.Item) int {
	return func(a, b vocab.Item) int {
		var c int
		switch sort.Field {
		case vocab.SortSourceText:
			c = strings.Compare(a.SourceText, b.SourceText)
		case vocab.SortDifficulty:
			c = a.Difficulty - b.Difficulty
		case vocab.SortMastery:
			c = a.Mastery - b.Mastery
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if sort.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	}
}

var _ vocab.Backend = (*Store)(nil)
