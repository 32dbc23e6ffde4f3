package vocab

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/events"
	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Success is an input that was written.
type Success[T any] struct {
	Index int
	Value T
}

// Failure is an input that was not written. Input is the original value.
type Failure struct {
	Index int
	Input any
	Err   error
}

// BatchResult is the outcome of a batch operation. Every input index appears
// in exactly one of Succeeded and Failed, both ordered by index.
type BatchResult[T any] struct {
	Succeeded []Success[T]
	Failed    []Failure
	Total     int
	// Retries counts chunk retries across the whole batch.
	Retries int
	Elapsed time.Duration
}

// Values returns the succeeded values in input order.
func (r BatchResult[T]) Values() []T {
	out := make([]T, len(r.Succeeded))
	for i, s := range r.Succeeded {
		out[i] = s.Value
	}
	return out
}

func (r *BatchResult[T]) succeed(index int, value T) {
	r.Succeeded = append(r.Succeeded, Success[T]{Index: index, Value: value})
}

func (r *BatchResult[T]) fail(index int, input any, err error) {
	r.Failed = append(r.Failed, Failure{Index: index, Input: input, Err: err})
}

func (r *BatchResult[T]) finish(started, now time.Time) {
	slices.SortFunc(r.Succeeded, func(a, b Success[T]) int { return a.Index - b.Index })
	slices.SortFunc(r.Failed, func(a, b Failure) int { return a.Index - b.Index })
	r.Elapsed = now.Sub(started)
}

// BatchEngine writes collections of items in chunks. Each chunk is one
// backend transaction retried under the configured policy; a failed chunk
// fails its own items only. Affected cache prefixes are invalidated once per
// batch.
type BatchEngine struct {
	options
	backend Backend
	store   cache.Store
	keys    keyspace
	lists   *authz.Validator[uuid.UUID]
}

// NewBatchEngine returns an engine writing to backend and invalidating store.
func NewBatchEngine(backend Backend, store cache.Store, opts ...Option) (*BatchEngine, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newBatchEngine(o, backend, store), nil
}

func newBatchEngine(o options, backend Backend, store cache.Store) *BatchEngine {
	return &BatchEngine{
		options: o,
		backend: backend,
		store:   store,
		keys:    keyspace{codec: o.codec},
		lists:   authz.NewValidator(listResolver(backend)),
	}
}

// AddBatch validates and inserts inputs on behalf of callerID, who must own
// every target list.
func (e *BatchEngine) AddBatch(ctx context.Context, callerID string, inputs []NewItem) BatchResult[Item] {
	started := e.now()
	res := BatchResult[Item]{Total: len(inputs)}
	if len(inputs) == 0 {
		return res
	}

	var valid []int
	var listIDs []uuid.UUID
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			res.fail(i, in, validationError(newOp("add_batch", e.now, started), err))
			continue
		}
		valid = append(valid, i)
		listIDs = append(listIDs, in.ListID)
	}

	parents := e.authorizeParents(ctx, "add_batch", started, callerID, listIDs, authz.Write)

	now := e.now().UTC().Truncate(time.Microsecond)
	var (
		items   []Item
		indexes []int
	)
	for _, i := range valid {
		if p := parents[inputs[i].ListID]; p.err != nil {
			res.fail(i, inputs[i], p.err)
			continue
		}
		items = append(items, inputs[i].build(e.newID(), now))
		indexes = append(indexes, i)
	}

	outcomes := e.runChunks(ctx, "add_batch", len(items), func(ctx context.Context, lo, hi int) error {
		return e.backend.InsertMany(ctx, items[lo:hi])
	})

	changed := make(map[uuid.UUID]authz.Resource)
	var added []uuid.UUID
	for _, oc := range outcomes {
		res.Retries += oc.state.Retries
		var err error
		if oc.err != nil {
			err = storeError(newOp("add_batch", e.now, started, idsOf(items[oc.lo:oc.hi])...), oc.err, &oc.state)
		}
		for j := oc.lo; j < oc.hi; j++ {
			if err != nil {
				res.fail(indexes[j], inputs[indexes[j]], err)
				continue
			}
			res.succeed(indexes[j], items[j])
			changed[items[j].ListID] = parents[items[j].ListID].resource
			added = append(added, items[j].ID)
		}
	}

	if len(added) > 0 {
		e.invalidate(ctx, changed, nil)
		e.emit(events.ItemsAdded{
			OwnerID: callerID,
			ListIDs: sortedKeys(changed),
			ItemIDs: added,
			At:      now,
		})
	}

	e.record("add", len(res.Succeeded), len(res.Failed))
	res.finish(started, e.now())
	return res
}

// DeleteBatch removes ids on behalf of callerID, who must own the list of
// every item.
func (e *BatchEngine) DeleteBatch(ctx context.Context, callerID string, ids []uuid.UUID) BatchResult[uuid.UUID] {
	started := e.now()
	res := BatchResult[uuid.UUID]{Total: len(ids)}
	if len(ids) == 0 {
		return res
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	var candidates []int
	for i, id := range ids {
		if id == uuid.Nil {
			res.fail(i, id, validationMessage(newOp("delete_batch", e.now, started), "id cannot be blank"))
			continue
		}
		if _, dup := seen[id]; dup {
			res.fail(i, id, validationMessage(newOp("delete_batch", e.now, started, id), "duplicate id"))
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, i)
	}

	current, lookupErr := e.lookup(ctx, ids, candidates)

	var (
		listIDs []uuid.UUID
		present []int
	)
	for _, i := range candidates {
		if lookupErr != nil {
			res.fail(i, ids[i], storeError(newOp("delete_batch", e.now, started, ids[i]), lookupErr, nil))
			continue
		}
		item, ok := current[ids[i]]
		if !ok {
			res.fail(i, ids[i], notFound(newOp("delete_batch", e.now, started, ids[i])))
			continue
		}
		listIDs = append(listIDs, item.ListID)
		present = append(present, i)
	}

	parents := e.authorizeParents(ctx, "delete_batch", started, callerID, listIDs, authz.Delete)

	var (
		targets []uuid.UUID
		indexes []int
	)
	for _, i := range present {
		if p := parents[current[ids[i]].ListID]; p.err != nil {
			res.fail(i, ids[i], p.err)
			continue
		}
		targets = append(targets, ids[i])
		indexes = append(indexes, i)
	}

	outcomes := e.runChunks(ctx, "delete_batch", len(targets), func(ctx context.Context, lo, hi int) error {
		return e.backend.DeleteMany(ctx, targets[lo:hi])
	})

	changed := make(map[uuid.UUID]authz.Resource)
	var deleted []uuid.UUID
	for _, oc := range outcomes {
		res.Retries += oc.state.Retries
		var err error
		if oc.err != nil {
			err = storeError(newOp("delete_batch", e.now, started, targets[oc.lo:oc.hi]...), oc.err, &oc.state)
		}
		for j := oc.lo; j < oc.hi; j++ {
			if err != nil {
				res.fail(indexes[j], targets[j], err)
				continue
			}
			res.succeed(indexes[j], targets[j])
			listID := current[targets[j]].ListID
			changed[listID] = parents[listID].resource
			deleted = append(deleted, targets[j])
		}
	}

	if len(deleted) > 0 {
		e.invalidate(ctx, changed, deleted)
		e.emit(events.ItemsDeleted{OwnerID: callerID, ItemIDs: deleted, At: e.now().UTC()})
	}

	e.record("delete", len(res.Succeeded), len(res.Failed))
	res.finish(started, e.now())
	return res
}

// lookup reads the current state of the candidate ids, one chunk per query.
func (e *BatchEngine) lookup(ctx context.Context, ids []uuid.UUID, candidates []int) (map[uuid.UUID]Item, error) {
	out := make(map[uuid.UUID]Item, len(candidates))
	for lo := 0; lo < len(candidates); lo += e.cfg.ChunkSize {
		hi := min(lo+e.cfg.ChunkSize, len(candidates))
		chunk := make([]uuid.UUID, 0, hi-lo)
		for _, i := range candidates[lo:hi] {
			chunk = append(chunk, ids[i])
		}

		found, _, err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) ([]Item, error) {
			items, _, err := e.backend.Query(ctx, ItemFilter{IDs: chunk}, Sort{}, 0, 0)
			return items, err
		})
		if err != nil {
			return nil, err
		}
		for _, it := range found {
			out[it.ID] = it
		}
	}
	return out, nil
}

type parentCheck struct {
	resource authz.Resource
	err      error
}

// authorizeParents resolves every distinct list once, bypassing caches, and
// records the error each child of a rejected list fails with.
func (e *BatchEngine) authorizeParents(ctx context.Context, name string, started time.Time, callerID string, listIDs []uuid.UUID, operation authz.Operation) map[uuid.UUID]parentCheck {
	out := make(map[uuid.UUID]parentCheck)
	fresh := BypassCache(ctx)

	for _, id := range listIDs {
		if _, done := out[id]; done {
			continue
		}
		o := newOp(name, e.now, started, id)

		type resolved struct {
			decision authz.Decision
			resource authz.Resource
		}
		r, state, err := retry.Do(fresh, e.cfg.Retry, func(ctx context.Context) (resolved, error) {
			d, res, err := e.lists.AuthorizeChild(ctx, callerID, id, operation)
			return resolved{decision: d, resource: res}, err
		})

		switch {
		case err != nil:
			out[id] = parentCheck{err: storeError(o, err, &state)}
		case r.decision.Reason == authz.ReasonMissing:
			out[id] = parentCheck{err: notFound(o)}
		case !r.decision.Allowed:
			e.logger.Debug().
				Str("op", name).
				Str("caller", callerID).
				Str("list", id.String()).
				Str("reason", string(r.decision.Reason)).
				Msg("write denied")
			out[id] = parentCheck{err: accessDenied(o)}
		default:
			out[id] = parentCheck{resource: r.resource}
		}
	}
	return out
}

type chunkOutcome struct {
	lo, hi int
	state  retry.State
	err    error
}

// runChunks splits n records into chunks and writes them concurrently, at
// most MaxConcurrentChunks at a time. Outcomes are returned in chunk order.
func (e *BatchEngine) runChunks(ctx context.Context, name string, n int, write func(ctx context.Context, lo, hi int) error) []chunkOutcome {
	if n == 0 {
		return nil
	}
	size := e.cfg.ChunkSize
	out := make([]chunkOutcome, (n+size-1)/size)

	var g errgroup.Group
	g.SetLimit(e.cfg.MaxConcurrentChunks)

	for c := range out {
		lo := c * size
		hi := min(lo+size, n)
		out[c] = chunkOutcome{lo: lo, hi: hi}

		g.Go(func() error {
			policy := e.cfg.Retry
			onRetry := policy.OnRetry
			policy.OnRetry = func(s retry.State) {
				e.metrics.ChunkRetries.Inc()
				e.logger.Warn().
					Err(s.LastErr).
					Str("op", name).
					Int("chunk", c).
					Int("attempt", s.Attempts).
					Dur("backoff", s.NextDelay).
					Msg("retrying chunk")
				if onRetry != nil {
					onRetry(s)
				}
			}

			_, state, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, write(ctx, lo, hi)
			})
			if err != nil {
				e.logger.Warn().
					Err(err).
					Str("op", name).
					Int("chunk", c).
					Int("attempts", state.Attempts).
					Int("records", hi-lo).
					Msg("chunk failed")
			}
			out[c].state = state
			out[c].err = err
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// invalidate drops cached results for the changed lists and the given item
// keys. It is called once per write operation.
func (e *BatchEngine) invalidate(ctx context.Context, changed map[uuid.UUID]authz.Resource, itemIDs []uuid.UUID) {
	resources := make([]authz.Resource, 0, len(changed))
	for _, id := range sortedKeys(changed) {
		resources = append(resources, changed[id])
	}
	if prefixes := e.keys.prefixes(resources...); len(prefixes) > 0 {
		e.store.Invalidate(ctx, prefixes...)
	}
	if len(itemIDs) > 0 {
		e.store.Delete(ctx, e.keys.items(itemIDs)...)
	}
}

func (e *BatchEngine) emit(ev events.Event) {
	if !e.emitter.Emit(ev) {
		e.logger.Debug().Str("kind", string(ev.Kind())).Msg("usage event not queued")
	}
}

func (e *BatchEngine) record(op string, succeeded, failed int) {
	e.metrics.BatchItems.WithLabelValues(op, "succeeded").Add(float64(succeeded))
	e.metrics.BatchItems.WithLabelValues(op, "failed").Add(float64(failed))
}

func listResolver(b Backend) authz.ResolveFunc[uuid.UUID] {
	return func(ctx context.Context, id uuid.UUID) (authz.Resource, bool, error) {
		l, err := b.GetList(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return authz.Resource{}, false, nil
		}
		if err != nil {
			return authz.Resource{}, false, err
		}
		return l.Resource(), true, nil
	}
}

func idsOf(items []Item) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func sortedKeys[V any](m map[uuid.UUID]V) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareIDs)
	return keys
}

func compareIDs(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }
