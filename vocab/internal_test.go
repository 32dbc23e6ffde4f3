package vocab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedDistance(t *testing.T) {
	tests := []struct {
		a, b  string
		bound int
		want  int
	}{
		{"gato", "gato", 2, 0},
		{"gato", "pato", 2, 1},
		{"gatito", "gato", 2, 2},
		{"gatito", "gato", 1, -1},
		{"casa", "gato", 2, -1},
		{"", "ab", 2, 2},
		{"niño", "nino", 1, 1},
		{"mariposa", "gato", 2, -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, boundedDistance(tt.a, tt.b, tt.bound))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe con leche", normalize("  Café   CON\tleche "))
	assert.Equal(t, "strasse", normalize("STRASSE"))
	assert.Equal(t, normalize("Ñandú"), normalize("nandu"))
}

func TestRanker_LevelsAreOrdered(t *testing.T) {
	r := newRanker("gato", DefaultConfig())

	exact := r.fieldScore("Gato")
	substring := r.fieldScore("un gato")
	fuzzy := r.fieldScore("gata")
	none := r.fieldScore("perro")

	assert.Greater(t, exact, substring)
	assert.Greater(t, substring, fuzzy)
	assert.Greater(t, fuzzy, 0.0)
	assert.Zero(t, none)
	assert.Greater(t, r.fieldScore("gato negro"), r.fieldScore("negro gato"))
}

func TestRanker_DropsBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SearchMinScore = 5
	r := newRanker("gato", cfg)

	hits := r.rank([]Item{
		{ID: uuid.New(), SourceText: "gato"},
		{ID: uuid.New(), SourceText: "gata"},
		{ID: uuid.New(), ExampleTarget: "un gato"},
	}, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "gato", hits[0].Item.SourceText)
}

func TestRanker_Limit(t *testing.T) {
	r := newRanker("a", DefaultConfig())
	items := make([]Item, 10)
	for i := range items {
		items[i] = Item{ID: uuid.New(), SourceText: fmt.Sprintf("a%d", i)}
	}
	assert.Len(t, r.rank(items, 3), 3)
}

func TestKeyspace_Prefixes(t *testing.T) {
	k := keyspace{codec: cache.NewKeyCodec("vocab")}

	private := k.prefixes(authz.Resource{OwnerID: "alice", Visibility: authz.Private})
	assert.ElementsMatch(t, []string{
		"vocab::items::alice::",
		"vocab::search::alice::",
		"vocab::stats::alice::",
	}, private)

	public := k.prefixes(
		authz.Resource{OwnerID: "alice", Visibility: authz.Public},
		authz.Resource{OwnerID: "bob", Visibility: authz.Public},
	)
	assert.ElementsMatch(t, []string{"vocab::items::", "vocab::search::", "vocab::stats::"}, public)

	for _, p := range private {
		assert.True(t, strings.HasPrefix(k.scoped(strings.Split(p, "::")[1], "alice", 1), p))
	}
	assert.True(t, strings.HasPrefix(k.scoped(ResourceItems, "carol", 1), public[0]))
	assert.False(t, strings.HasPrefix(k.item(uuid.New()), "vocab::items::"))
}

func TestStoreError_Classification(t *testing.T) {
	o := newOp("test", time.Now, time.Time{}, uuid.New())

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", fmt.Errorf("wrapped: %w", ErrNotFound), IsNotFound},
		{"timeout", context.DeadlineExceeded, IsTransientStore},
		{"exhausted", fmt.Errorf("%w after 3 attempts: %w", retry.ErrExhausted, errors.New("x")), IsTransientStore},
		{"marked", retry.MarkTransient(errors.New("503")), IsTransientStore},
		{"terminal", errors.New("unique constraint"), IsTerminalStore},
		{"already classified", accessDenied(o), IsAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeError(o, tt.err, nil)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Equal(t, "test", Metadata(err)["op"])
		})
	}

	assert.Nil(t, storeError(o, nil, nil))
	assert.True(t, retry.IsTransient(storeError(o, context.DeadlineExceeded, nil)))
	assert.False(t, retry.IsTransient(storeError(o, errors.New("boom"), nil)))
}

func TestValidation(t *testing.T) {
	list := uuid.New()
	valid := NewItem{ListID: list, SourceText: "a", TargetText: "b", Difficulty: 1}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*NewItem){
		"missing list":    func(n *NewItem) { n.ListID = uuid.Nil },
		"difficulty 0":    func(n *NewItem) { n.Difficulty = 0 },
		"difficulty 11":   func(n *NewItem) { n.Difficulty = 11 },
		"blank source":    func(n *NewItem) { n.SourceText = "" },
		"bad audio url":   func(n *NewItem) { n.AudioURL = "not a url" },
		"long source":     func(n *NewItem) { n.SourceText = strings.Repeat("x", 501) },
		"long pronounced": func(n *NewItem) { n.Pronunciation = strings.Repeat("x", 129) },
	} {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			err := validationError(newOp("add", time.Now, time.Time{}), in.Validate())
			assert.True(t, IsValidation(err))
		})
	}

	zero, over, under := 0, 101, -1
	assert.NoError(t, ItemPatch{Mastery: &zero}.Validate())
	assert.Error(t, ItemPatch{Mastery: &over}.Validate())
	assert.Error(t, ItemPatch{Mastery: &under}.Validate())
	assert.Error(t, ItemPatch{Difficulty: &zero}.Validate())
}

func TestItemPatch_ApplyKeepsIdentity(t *testing.T) {
	it := Item{ID: uuid.New(), ListID: uuid.New(), SourceText: "a", Difficulty: 2}
	id, listID := it.ID, it.ListID

	text, difficulty := "b", 4
	p := ItemPatch{SourceText: &text, Difficulty: &difficulty}
	p.Apply(&it)

	assert.Equal(t, id, it.ID)
	assert.Equal(t, listID, it.ListID)
	assert.Equal(t, "b", it.SourceText)
	assert.Equal(t, 4, it.Difficulty)
	assert.Equal(t, []string{"source_text", "difficulty"}, p.Fields())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestBypassCache(t *testing.T) {
	ctx := context.Background()
	assert.False(t, CacheBypassed(ctx))
	assert.True(t, CacheBypassed(BypassCache(ctx)))
}

func TestMasteryDelta(t *testing.T) {
	assert.Equal(t, -20, masteryDelta(0))
	assert.Equal(t, 4, masteryDelta(3))
	assert.Equal(t, 20, masteryDelta(5))
	assert.Equal(t, 0, clamp(-5, MinMastery, MaxMastery))
	assert.Equal(t, 100, clamp(130, MinMastery, MaxMastery))
}

func TestCompareIDs(t *testing.T) {
	low := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	mid := uuid.MustParse("00000000-0000-4000-8000-0000000000ff")
	high := uuid.MustParse("ff000000-0000-4000-8000-000000000000")

	assert.Equal(t, -1, compareIDs(low, mid))
	assert.Equal(t, 1, compareIDs(high, mid))
	assert.Equal(t, 0, compareIDs(mid, mid))

	keys := sortedKeys(map[uuid.UUID]bool{high: true, low: true, mid: true})
	assert.Equal(t, []uuid.UUID{low, mid, high}, keys)
}

func TestOp_ElapsedUsesClock(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o := newOp("get_item", func() time.Time { return started.Add(42 * time.Millisecond) }, started)
	assert.Equal(t, int64(42), Metadata(notFound(o))["elapsed_ms"])

	o = newOp("get_item", time.Now, time.Time{})
	_, ok := Metadata(notFound(o))["elapsed_ms"]
	assert.False(t, ok)
}
