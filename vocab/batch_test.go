package vocab_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/events"
	"github.com/goliatone/go-vocabulary-store/storage/memstore"
	"github.com/goliatone/go-vocabulary-store/vocab"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBatch_OutOfRangeDifficulty(t *testing.T) {
	h := newHarness(t)
	l := h.list(t, "alice", authz.Private)

	inputs := []vocab.NewItem{
		sampleItem(l.ID, "uno"),
		sampleItem(l.ID, "dos"),
		sampleItem(l.ID, "tres"),
		sampleItem(l.ID, "cuatro"),
	}
	inputs[2].Difficulty = 15

	res := h.svc.AddBatch(context.Background(), "alice", inputs)

	require.Len(t, res.Succeeded, 3)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Failed[0].Index)
	assert.Equal(t, inputs[2], res.Failed[0].Input)
	assert.True(t, vocab.IsValidation(res.Failed[0].Err))
	assert.Equal(t, []int{0, 1, 3}, []int{res.Succeeded[0].Index, res.Succeeded[1].Index, res.Succeeded[2].Index})
	assert.Equal(t, 3, h.backend.Len())
}

func TestAddBatch_CountsAlwaysAddUp(t *testing.T) {
	for _, tc := range []struct{ m, f int }{{1, 0}, {1, 1}, {5, 2}, {7, 7}, {250, 13}} {
		h := newHarness(t, func(c *vocab.Config) { c.ChunkSize = 10 })
		l := h.list(t, "alice", authz.Private)

		inputs := make([]vocab.NewItem, tc.m)
		for i := range inputs {
			inputs[i] = sampleItem(l.ID, "word")
			if i < tc.f {
				inputs[i].SourceText = ""
			}
		}

		res := h.svc.AddBatch(context.Background(), "alice", inputs)
		assert.Len(t, res.Succeeded, tc.m-tc.f, "m=%d f=%d", tc.m, tc.f)
		assert.Len(t, res.Failed, tc.f, "m=%d f=%d", tc.m, tc.f)
		assert.Equal(t, tc.m, len(res.Succeeded)+len(res.Failed))
	}
}

func TestAddBatch_EmptyInputTouchesNothing(t *testing.T) {
	h := newHarness(t)

	res := h.svc.AddBatch(context.Background(), "alice", nil)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Succeeded)
	assert.Empty(t, res.Failed)

	for _, op := range []memstore.Op{memstore.OpGetList, memstore.OpInsertMany} {
		assert.Zero(t, h.backend.Calls(op), op)
	}
	assert.Zero(t, h.store.invalidateCalls())
	assert.Empty(t, h.emitter.received())
}

func TestAddBatch_RetriesTransientChunkFailures(t *testing.T) {
	h := newHarness(t)
	l := h.list(t, "alice", authz.Private)
	h.backend.FailNext(memstore.OpInsertMany, 2, context.DeadlineExceeded)

	res := h.svc.AddBatch(context.Background(), "alice", []vocab.NewItem{
		sampleItem(l.ID, "uno"),
		sampleItem(l.ID, "dos"),
	})

	require.Empty(t, res.Failed)
	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, h.backend.Calls(memstore.OpInsertMany))
}

func TestAddBatch_ExhaustedRetriesAreTransient(t *testing.T) {
	h := newHarness(t)
	l := h.list(t, "alice", authz.Private)
	h.backend.FailNext(memstore.OpInsertMany, -1, memstore.ErrUnavailable)

	res := h.svc.AddBatch(context.Background(), "alice", []vocab.NewItem{sampleItem(l.ID, "uno")})

	require.Len(t, res.Failed, 1)
	err := res.Failed[0].Err
	assert.True(t, vocab.IsTransientStore(err))
	meta := vocab.Metadata(err)
	assert.Equal(t, "add_batch", meta["op"])
	assert.Equal(t, 3, meta["attempts"])
	assert.Contains(t, meta, "elapsed_ms")
	assert.Contains(t, meta, "ids")
	assert.Zero(t, h.store.invalidateCalls())
}

func TestAddBatch_TerminalChunkFailureSparesSiblings(t *testing.T) {
	h := newHarness(t, func(c *vocab.Config) {
		c.ChunkSize = 2
		c.MaxConcurrentChunks = 1
	})
	l := h.list(t, "alice", authz.Private)
	h.backend.FailNext(memstore.OpInsertMany, 1, errors.New("constraint violation"))

	inputs := make([]vocab.NewItem, 5)
	for i := range inputs {
		inputs[i] = sampleItem(l.ID, "word")
	}
	res := h.svc.AddBatch(context.Background(), "alice", inputs)

	require.Len(t, res.Failed, 2)
	assert.Equal(t, 0, res.Failed[0].Index)
	assert.Equal(t, 1, res.Failed[1].Index)
	assert.True(t, vocab.IsTerminalStore(res.Failed[0].Err))
	assert.Len(t, res.Succeeded, 3)
	assert.Zero(t, res.Retries)
	assert.Equal(t, 3, h.backend.Len())
}

func TestAddBatch_InvalidatesOnceAcrossChunks(t *testing.T) {
	h := newHarness(t, func(c *vocab.Config) { c.ChunkSize = 3 })
	l := h.list(t, "alice", authz.Private)
	h.store.reset()

	inputs := make([]vocab.NewItem, 10)
	for i := range inputs {
		inputs[i] = sampleItem(l.ID, "word")
	}
	res := h.svc.AddBatch(context.Background(), "alice", inputs)

	require.Len(t, res.Succeeded, 10)
	assert.Equal(t, 4, h.backend.Calls(memstore.OpInsertMany))
	assert.Equal(t, 1, h.store.invalidateCalls())
}

func TestAddBatch_EmitsOneEvent(t *testing.T) {
	h := newHarness(t)
	l := h.list(t, "alice", authz.Private)

	items := h.add(t, "alice", l.ID, "uno", "dos", "tres")

	got := h.emitter.received()
	require.Len(t, got, 1)
	ev, ok := got[0].(events.ItemsAdded)
	require.True(t, ok)
	assert.Equal(t, "alice", ev.OwnerID)
	assert.Equal(t, []uuid.UUID{l.ID}, ev.ListIDs)
	assert.Len(t, ev.ItemIDs, len(items))
}

func TestAddBatch_ForeignAndMissingLists(t *testing.T) {
	h := newHarness(t)
	bobs := h.list(t, "bob", authz.Private)
	public := h.list(t, "bob", authz.Public)

	res := h.svc.AddBatch(context.Background(), "alice", []vocab.NewItem{
		sampleItem(bobs.ID, "uno"),
		sampleItem(public.ID, "dos"),
		sampleItem(uuid.New(), "tres"),
	})

	require.Len(t, res.Failed, 3)
	assert.True(t, vocab.IsAccessDenied(res.Failed[0].Err))
	assert.True(t, vocab.IsAccessDenied(res.Failed[1].Err))
	assert.True(t, vocab.IsNotFound(res.Failed[2].Err))
	assert.Zero(t, h.backend.Calls(memstore.OpInsertMany))
}

func TestAddBatch_ResolvesEachListOnce(t *testing.T) {
	h := newHarness(t)
	l := h.list(t, "alice", authz.Private)
	before := h.backend.Calls(memstore.OpGetList)

	h.add(t, "alice", l.ID, "uno", "dos", "tres", "cuatro")
	assert.Equal(t, before+1, h.backend.Calls(memstore.OpGetList))
}

func TestDeleteBatch_Outcomes(t *testing.T) {
	h := newHarness(t)
	l := h.list(t, "alice", authz.Private)
	items := h.add(t, "alice", l.ID, "uno", "dos")
	h.store.reset()

	res := h.svc.DeleteBatch(context.Background(), "alice", []uuid.UUID{
		items[0].ID,
		uuid.New(),
		items[0].ID,
		uuid.Nil,
		items[1].ID,
	})

	require.Len(t, res.Succeeded, 2)
	assert.Equal(t, items[0].ID, res.Succeeded[0].Value)
	assert.Equal(t, 4, res.Succeeded[1].Index)

	require.Len(t, res.Failed, 3)
	assert.True(t, vocab.IsNotFound(res.Failed[0].Err))
	assert.True(t, vocab.IsValidation(res.Failed[1].Err))
	assert.True(t, vocab.IsValidation(res.Failed[2].Err))

	assert.Zero(t, h.backend.Len())
	assert.Equal(t, 1, h.store.invalidateCalls())

	got := h.emitter.received()
	ev, ok := got[len(got)-1].(events.ItemsDeleted)
	require.True(t, ok)
	assert.Len(t, ev.ItemIDs, 2)
}

func TestDeleteItem_CrossOwnerPrivateList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.list(t, "alice", authz.Private)
	item := h.add(t, "alice", l.ID, "secreto")[0]

	err := h.svc.DeleteItem(ctx, "bob", item.ID)
	assert.True(t, vocab.IsAccessDenied(err), "got %v", err)

	got, err := h.svc.GetItem(ctx, "alice", item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
}
