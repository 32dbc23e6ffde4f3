package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/goliatone/go-vocabulary-store/vocab"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, owner string, vis authz.Visibility) vocab.List {
	t.Helper()
	l := vocab.List{ID: uuid.New(), OwnerID: owner, Name: owner + " list", Visibility: vis, Kind: vocab.KindCustom, CreatedAt: time.Now()}
	require.NoError(t, s.InsertList(context.Background(), l))
	return l
}

func TestStore_ListsByOwnerAndVisibility(t *testing.T) {
	ctx := context.Background()
	s := New()
	mine := seed(t, s, "a", authz.Private)
	public := seed(t, s, "b", authz.Public)
	seed(t, s, "b", authz.Private)

	own, err := s.ListLists(ctx, "a", false)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	withPublic, err := s.ListLists(ctx, "a", true)
	require.NoError(t, err)
	assert.Len(t, withPublic, 2)

	anon, err := s.ListLists(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Equal(t, public.ID, anon[0].ID)
}

func TestStore_InsertManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	l := seed(t, s, "a", authz.Private)

	first := vocab.Item{ID: uuid.New(), ListID: l.ID, SourceText: "uno"}
	require.NoError(t, s.InsertMany(ctx, []vocab.Item{first}))

	err := s.InsertMany(ctx, []vocab.Item{
		{ID: uuid.New(), ListID: l.ID, SourceText: "dos"},
		first,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, s.Len())
}

func TestStore_QueryFiltersSortsAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	l := seed(t, s, "a", authz.Private)
	other := seed(t, s, "a", authz.Private)

	var items []vocab.Item
	for i, w := range []string{"delta", "alpha", "charlie", "bravo"} {
		items = append(items, vocab.Item{ID: uuid.New(), ListID: l.ID, SourceText: w, Difficulty: i + 1, Category: "nato"})
	}
	items = append(items, vocab.Item{ID: uuid.New(), ListID: other.ID, SourceText: "echo", Difficulty: 5})
	require.NoError(t, s.InsertMany(ctx, items))

	got, total, err := s.Query(ctx, vocab.ItemFilter{ListIDs: []uuid.UUID{l.ID}}, vocab.Sort{Field: vocab.SortSourceText}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, got, 2)
	assert.Equal(t, "bravo", got[0].SourceText)
	assert.Equal(t, "charlie", got[1].SourceText)

	got, total, err = s.Query(ctx, vocab.ItemFilter{MinDifficulty: 3}, vocab.Sort{Field: vocab.SortDifficulty, Desc: true}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "echo", got[0].SourceText)

	got, total, err = s.Query(ctx, vocab.ItemFilter{}, vocab.Sort{}, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, got)
}

func TestStore_UpdateOneStampsTime(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 4, 5, 6, 7, 891234567, time.UTC)
	s := New(WithClock(func() time.Time { return at }))
	l := seed(t, s, "a", authz.Private)
	it := vocab.Item{ID: uuid.New(), ListID: l.ID, SourceText: "perro", Difficulty: 2}
	require.NoError(t, s.InsertMany(ctx, []vocab.Item{it}))

	mastery := 40
	updated, err := s.UpdateOne(ctx, it.ID, vocab.ItemPatch{Mastery: &mastery})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Mastery)
	assert.Equal(t, at.Truncate(time.Microsecond), updated.UpdatedAt)

	_, err = s.UpdateOne(ctx, uuid.New(), vocab.ItemPatch{Mastery: &mastery})
	assert.ErrorIs(t, err, vocab.ErrNotFound)
}

func TestStore_FaultInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailNext(OpGetList, 2, context.DeadlineExceeded)

	for i := 0; i < 2; i++ {
		_, err := s.GetList(ctx, uuid.New())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, retry.IsTransient(err))
	}
	_, err := s.GetList(ctx, uuid.New())
	assert.ErrorIs(t, err, vocab.ErrNotFound)
	assert.Equal(t, 3, s.Calls(OpGetList))

	s.FailNext(OpQuery, -1, ErrUnavailable)
	for i := 0; i < 3; i++ {
		_, _, err := s.Query(ctx, vocab.ItemFilter{}, vocab.Sort{}, 0, 0)
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	s.Reset()
	_, _, err = s.Query(ctx, vocab.ItemFilter{}, vocab.Sort{}, 0, 0)
	assert.NoError(t, err)
}

func TestStore_DelayHonoursContext(t *testing.T) {
	s := New()
	s.Delay(OpGetItem, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.GetItem(ctx, uuid.New())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
