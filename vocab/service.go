package vocab

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/events"
	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/google/uuid"
)

// Service is the vocabulary store facade. It is safe for concurrent use.
type Service struct {
	*BatchEngine
}

// NewService returns a Service reading through store and writing to backend.
func NewService(backend Backend, store cache.Store, opts ...Option) (*Service, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Service{BatchEngine: newBatchEngine(o, backend, store)}, nil
}

// Config returns the active configuration.
func (s *Service) Config() Config { return s.cfg }

// GetItem returns an item the caller may read. Items in lists the caller
// cannot see are reported as not found.
func (s *Service) GetItem(ctx context.Context, callerID string, id uuid.UUID) (Item, error) {
	started := s.now()
	defer s.observe("get_item", started)
	o := newOp("get_item", s.now, started, id)

	item, err := cache.GetOrFetch(ctx, s.store, s.keys.item(id), s.cfg.ItemTTL, func(ctx context.Context) (Item, error) {
		return withRetry(ctx, s.cfg.Retry, func(ctx context.Context) (Item, error) {
			return s.backend.GetItem(ctx, id)
		})
	})
	if err != nil {
		return Item{}, storeError(o, err, nil)
	}

	if err := s.authorizeRead(ctx, o, callerID, item.ListID); err != nil {
		return Item{}, err
	}
	return item.utc(), nil
}

// ListItems returns one page of the items visible to the caller.
func (s *Service) ListItems(ctx context.Context, callerID string, q ItemQuery) (Page, error) {
	started := s.now()
	defer s.observe("list_items", started)
	o := newOp("list_items", s.now, started, q.Filter.ListIDs...)

	if err := q.Validate(); err != nil {
		return Page{}, validationError(o, err)
	}

	listIDs, err := s.visibleLists(ctx, o, callerID, q.Filter.ListIDs, q.IncludePublic)
	if err != nil {
		return Page{}, err
	}
	empty := Page{Items: []Item{}, Limit: q.Limit, Offset: q.Offset}
	if len(listIDs) == 0 {
		return empty, nil
	}
	q.Filter.ListIDs = listIDs

	key := s.keys.scoped(ResourceItems, callerID, q)
	page, err := cache.GetOrFetch(ctx, s.store, key, s.cfg.ListTTL, func(ctx context.Context) (Page, error) {
		return withRetry(ctx, s.cfg.Retry, func(ctx context.Context) (Page, error) {
			items, total, err := s.backend.Query(ctx, q.Filter, q.Sort, q.Limit, q.Offset)
			if err != nil {
				return Page{}, err
			}
			return Page{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
		})
	})
	if err != nil {
		return Page{}, storeError(o, err, nil)
	}
	if page.Items == nil {
		page.Items = []Item{}
	}
	page.Items = utcItems(page.Items)
	return page, nil
}

// Search ranks the items visible to the caller against the query text.
func (s *Service) Search(ctx context.Context, callerID string, q SearchQuery) ([]SearchHit, error) {
	started := s.now()
	defer s.observe("search", started)
	o := newOp("search", s.now, started, q.Filter.ListIDs...)

	if err := q.Validate(); err != nil {
		return nil, validationError(o, err)
	}
	if q.Limit == 0 {
		q.Limit = s.cfg.SearchLimit
	}

	listIDs, err := s.visibleLists(ctx, o, callerID, q.Filter.ListIDs, q.IncludePublic)
	if err != nil {
		return nil, err
	}
	if len(listIDs) == 0 {
		return []SearchHit{}, nil
	}
	q.Filter.ListIDs = listIDs
	q.Text = normalize(q.Text)

	key := s.keys.scoped(ResourceSearch, callerID, q)
	hits, err := cache.GetOrFetch(ctx, s.store, key, s.cfg.SearchTTL, func(ctx context.Context) ([]SearchHit, error) {
		items, err := withRetry(ctx, s.cfg.Retry, func(ctx context.Context) ([]Item, error) {
			items, _, err := s.backend.Query(ctx, q.Filter, Sort{Field: SortSourceText}, 0, 0)
			return items, err
		})
		if err != nil {
			return nil, err
		}
		return newRanker(q.Text, s.cfg).rank(items, q.Limit), nil
	})
	if err != nil {
		return nil, storeError(o, err, nil)
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	for i := range hits {
		hits[i].Item = hits[i].Item.utc()
	}
	return hits, nil
}

// Stats aggregates the items ListItems would return for the same query,
// ignoring paging and sort.
func (s *Service) Stats(ctx context.Context, callerID string, q ItemQuery) (Stats, error) {
	started := s.now()
	defer s.observe("stats", started)
	o := newOp("stats", s.now, started, q.Filter.ListIDs...)

	if err := q.Validate(); err != nil {
		return Stats{}, validationError(o, err)
	}

	listIDs, err := s.visibleLists(ctx, o, callerID, q.Filter.ListIDs, q.IncludePublic)
	if err != nil {
		return Stats{}, err
	}
	if len(listIDs) == 0 {
		return computeStats(0, nil), nil
	}

	filter := q.Filter
	filter.ListIDs = listIDs
	params := struct {
		Filter        ItemFilter
		IncludePublic bool
	}{filter, q.IncludePublic}

	key := s.keys.scoped(ResourceStats, callerID, params)
	stats, err := cache.GetOrFetch(ctx, s.store, key, s.cfg.StatsTTL, func(ctx context.Context) (Stats, error) {
		items, err := withRetry(ctx, s.cfg.Retry, func(ctx context.Context) ([]Item, error) {
			items, _, err := s.backend.Query(ctx, filter, Sort{}, 0, 0)
			return items, err
		})
		if err != nil {
			return Stats{}, err
		}
		return computeStats(len(listIDs), items), nil
	})
	if err != nil {
		return Stats{}, storeError(o, err, nil)
	}
	return stats, nil
}

// AddItem adds one item. It runs through the same chunked path as AddBatch.
func (s *Service) AddItem(ctx context.Context, callerID string, in NewItem) (Item, error) {
	defer s.observe("add_item", s.now())

	res := s.AddBatch(ctx, callerID, []NewItem{in})
	if len(res.Failed) > 0 {
		return Item{}, res.Failed[0].Err
	}
	return res.Succeeded[0].Value, nil
}

// DeleteItem removes one item owned by the caller.
func (s *Service) DeleteItem(ctx context.Context, callerID string, id uuid.UUID) error {
	defer s.observe("delete_item", s.now())

	res := s.DeleteBatch(ctx, callerID, []uuid.UUID{id})
	if len(res.Failed) > 0 {
		return res.Failed[0].Err
	}
	return nil
}

// UpdateItem applies patch to an item owned by the caller.
func (s *Service) UpdateItem(ctx context.Context, callerID string, id uuid.UUID, patch ItemPatch) (Item, error) {
	started := s.now()
	defer s.observe("update_item", started)
	o := newOp("update_item", s.now, started, id)

	if err := patch.Validate(); err != nil {
		return Item{}, validationError(o, err)
	}
	if patch.Empty() {
		return Item{}, validationMessage(o, "patch is empty")
	}

	updated, err := s.updateItem(ctx, o, callerID, id, func(Item) ItemPatch { return patch })
	if err != nil {
		return Item{}, err
	}
	s.emit(events.ItemUpdated{
		OwnerID: callerID,
		ListID:  updated.ListID,
		ItemID:  updated.ID,
		Fields:  patch.Fields(),
		At:      updated.UpdatedAt,
	})
	return updated, nil
}

// RecordReview records a practice review of quality 0 (forgotten) to 5
// (perfect recall): it bumps the review count and moves mastery up or down,
// clamped to 0..100.
func (s *Service) RecordReview(ctx context.Context, callerID string, id uuid.UUID, quality int) (Item, error) {
	started := s.now()
	defer s.observe("record_review", started)
	o := newOp("record_review", s.now, started, id)

	if quality < 0 || quality > 5 {
		return Item{}, validationMessage(o, "quality must be between 0 and 5")
	}

	updated, err := s.updateItem(ctx, o, callerID, id, func(current Item) ItemPatch {
		mastery := clamp(current.Mastery+masteryDelta(quality), MinMastery, MaxMastery)
		reviews := current.ReviewCount + 1
		return ItemPatch{Mastery: &mastery, ReviewCount: &reviews}
	})
	if err != nil {
		return Item{}, err
	}
	s.emit(events.ReviewRecorded{
		OwnerID:     callerID,
		ItemID:      updated.ID,
		Quality:     quality,
		Mastery:     updated.Mastery,
		ReviewCount: updated.ReviewCount,
		At:          updated.UpdatedAt,
	})
	return updated, nil
}

// masteryDelta maps review quality 0..5 to -20..+20.
func masteryDelta(quality int) int {
	return (2*quality - 5) * 4
}

func (s *Service) updateItem(ctx context.Context, o op, callerID string, id uuid.UUID, build func(Item) ItemPatch) (Item, error) {
	fresh := BypassCache(ctx)

	current, err := withRetry(fresh, s.cfg.Retry, func(ctx context.Context) (Item, error) {
		return s.backend.GetItem(ctx, id)
	})
	if err != nil {
		return Item{}, storeError(o, err, nil)
	}

	parents := s.authorizeParents(ctx, o.name, o.started, callerID, []uuid.UUID{current.ListID}, authz.Write)
	parent := parents[current.ListID]
	if parent.err != nil {
		return Item{}, parent.err
	}

	patch := build(current)
	updated, state, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) (Item, error) {
		return s.backend.UpdateOne(ctx, id, patch)
	})
	if err != nil {
		return Item{}, storeError(o, err, &state)
	}

	s.invalidate(ctx, map[uuid.UUID]authz.Resource{current.ListID: parent.resource}, []uuid.UUID{id})
	return updated, nil
}

// CreateList creates a list owned by the caller. Lists default to custom.
func (s *Service) CreateList(ctx context.Context, callerID string, in NewList) (List, error) {
	started := s.now()
	defer s.observe("create_list", started)
	o := newOp("create_list", s.now, started)

	if callerID == "" {
		return List{}, accessDenied(o)
	}
	if in.Kind == "" {
		in.Kind = KindCustom
	}
	if err := in.Validate(); err != nil {
		return List{}, validationError(o, err)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	list := List{
		ID:          s.newID(),
		OwnerID:     callerID,
		Name:        in.Name,
		Description: in.Description,
		Visibility:  in.Visibility,
		Kind:        in.Kind,
		SourceLang:  in.SourceLang,
		TargetLang:  in.TargetLang,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, state, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.InsertList(ctx, list)
	})
	if err != nil {
		return List{}, storeError(newOp("create_list", s.now, started, list.ID), err, &state)
	}
	return list, nil
}

// GetList returns a list the caller may read.
func (s *Service) GetList(ctx context.Context, callerID string, id uuid.UUID) (List, error) {
	started := s.now()
	defer s.observe("get_list", started)
	o := newOp("get_list", s.now, started, id)

	list, err := withRetry(ctx, s.cfg.Retry, func(ctx context.Context) (List, error) {
		return s.backend.GetList(ctx, id)
	})
	if err != nil {
		return List{}, storeError(o, err, nil)
	}
	if !authz.Authorize(callerID, list.Resource(), authz.Read).Allowed {
		return List{}, notFound(o)
	}
	return list, nil
}

// ListLists returns the caller's lists, plus public ones when includePublic
// is set.
func (s *Service) ListLists(ctx context.Context, callerID string, includePublic bool) ([]List, error) {
	started := s.now()
	defer s.observe("list_lists", started)

	lists, err := s.readableLists(ctx, callerID, includePublic)
	if err != nil {
		return nil, storeError(newOp("list_lists", s.now, started), err, nil)
	}
	return lists, nil
}

// UpdateList applies patch to a list owned by the caller.
func (s *Service) UpdateList(ctx context.Context, callerID string, id uuid.UUID, patch ListPatch) (List, error) {
	started := s.now()
	defer s.observe("update_list", started)
	o := newOp("update_list", s.now, started, id)

	if err := patch.Validate(); err != nil {
		return List{}, validationError(o, err)
	}
	if patch.Empty() {
		return List{}, validationMessage(o, "patch is empty")
	}

	current, err := withRetry(BypassCache(ctx), s.cfg.Retry, func(ctx context.Context) (List, error) {
		return s.backend.GetList(ctx, id)
	})
	if err != nil {
		return List{}, storeError(o, err, nil)
	}

	if !authz.Authorize(callerID, current.Resource(), authz.Write).Allowed {
		return List{}, accessDenied(o)
	}
	if current.Kind == KindCurated && patch.Visibility != nil && *patch.Visibility != authz.Public {
		return List{}, validationMessage(o, "curated lists must be public")
	}

	updated, state, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) (List, error) {
		return s.backend.UpdateList(ctx, id, patch)
	})
	if err != nil {
		return List{}, storeError(o, err, &state)
	}

	// Cached results computed while the list had its old visibility must go
	// as well as those computed with the new one.
	s.store.Invalidate(ctx, s.keys.prefixes(current.Resource(), updated.Resource())...)
	return updated, nil
}

// Close drains the event emitter and waits for queued cache writes, when
// they support it.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if c, ok := s.emitter.(interface{ Close(context.Context) error }); ok {
		errs = append(errs, c.Close(ctx))
	}
	if f, ok := s.store.(interface{ Flush(context.Context) error }); ok {
		errs = append(errs, f.Flush(ctx))
	}
	return errors.Join(errs...)
}

// authorizeRead resolves the parent list and collapses every denial into
// NotFound.
func (s *Service) authorizeRead(ctx context.Context, o op, callerID string, listID uuid.UUID) error {
	decision, _, err := s.lists.AuthorizeChild(ctx, callerID, listID, authz.Read)
	if err != nil {
		return storeError(o, err, nil)
	}
	if !decision.Allowed {
		s.logger.Debug().
			Str("op", o.name).
			Str("caller", callerID).
			Str("list", listID.String()).
			Str("reason", string(decision.Reason)).
			Msg("read denied")
		return notFound(o)
	}
	return nil
}

// visibleLists returns the sorted ids of the lists a query covers. Named
// lists must all be readable.
func (s *Service) visibleLists(ctx context.Context, o op, callerID string, named []uuid.UUID, includePublic bool) ([]uuid.UUID, error) {
	if len(named) > 0 {
		ids := sortIDs(named)
		for _, id := range ids {
			if err := s.authorizeRead(ctx, newOp(o.name, s.now, o.started, id), callerID, id); err != nil {
				return nil, err
			}
		}
		return ids, nil
	}

	lists, err := s.readableLists(ctx, callerID, includePublic)
	if err != nil {
		return nil, storeError(o, err, nil)
	}
	ids := make([]uuid.UUID, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
	}
	return sortIDs(ids), nil
}

func (s *Service) readableLists(ctx context.Context, callerID string, includePublic bool) ([]List, error) {
	lists, err := withRetry(ctx, s.cfg.Retry, func(ctx context.Context) ([]List, error) {
		return s.backend.ListLists(ctx, callerID, includePublic)
	})
	if err != nil {
		return nil, err
	}

	out := make([]List, 0, len(lists))
	for _, l := range lists {
		if authz.Authorize(callerID, l.Resource(), authz.Read).Allowed {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Service) observe(op string, started time.Time) {
	s.metrics.Duration.WithLabelValues(op).Observe(s.now().Sub(started).Seconds())
}

func withRetry[T any](ctx context.Context, p retry.Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	v, _, err := retry.Do(ctx, p, fn)
	return v, err
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
