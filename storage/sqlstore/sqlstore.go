// Package sqlstore is a vocab.Backend on a relational database through bun.
// Reads and single-record writes go through go-repository-bun repositories;
// batch writes run in one transaction each.
package sqlstore

import (
	"context"
	"fmt"
	"math"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/vocab"
)

var sortColumns = map[vocab.SortField]string{
	vocab.SortCreatedAt:  "created_at",
	vocab.SortSourceText: "source_text",
	vocab.SortDifficulty: "difficulty",
	vocab.SortMastery:    "mastery",
}

// Store persists lists and items in the vocab_lists and vocab_items tables.
type Store struct {
	db    *bun.DB
	lists repository.Repository[*listRecord]
	items repository.Repository[*itemRecord]
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock stamping updates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps db. Call CreateSchema once before use.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		lists: repository.NewRepository[*listRecord](db, listHandlers()),
		items: repository.NewRepository[*itemRecord](db, itemHandlers()),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSchema creates both tables and the item indexes when missing.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, model := range []any{(*listRecord)(nil), (*itemRecord)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore create table: %w", err)
		}
	}

	indexes := map[string]string{
		"vocab_items_list_id_idx":  "list_id",
		"vocab_items_category_idx": "category",
		"vocab_lists_owner_id_idx": "owner_id",
	}
	for name, column := range indexes {
		q := s.db.NewCreateIndex().Index(name).Column(column).IfNotExists()
		if column == "owner_id" {
			q = q.Model((*listRecord)(nil))
		} else {
			q = q.Model((*itemRecord)(nil))
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore create index %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) stamp() time.Time {
	return dbTime(s.now())
}

func (s *Store) GetList(ctx context.Context, id uuid.UUID) (vocab.List, error) {
	rec, err := s.lists.GetByID(ctx, id.String())
	if err != nil {
		return vocab.List{}, classify("GetList", err)
	}
	return rec.list()
}

func (s *Store) InsertList(ctx context.Context, list vocab.List) error {
	_, err := s.lists.Create(ctx, newListRecord(list))
	return classify("InsertList", err)
}

func (s *Store) UpdateList(ctx context.Context, id uuid.UUID, patch vocab.ListPatch) (vocab.List, error) {
	var out vocab.List
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec, err := s.lists.GetByIDTx(ctx, tx, id.String())
		if err != nil {
			return err
		}
		l, err := rec.list()
		if err != nil {
			return err
		}
		patch.Apply(&l)
		l.UpdatedAt = s.stamp()

		rec = newListRecord(l)
		if _, err := tx.NewUpdate().Model(rec).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return vocab.List{}, classify("UpdateList", err)
	}
	return out, nil
}

func (s *Store) ListLists(ctx context.Context, ownerID string, includePublic bool) ([]vocab.List, error) {
	if ownerID == "" && !includePublic {
		return []vocab.List{}, nil
	}

	recs, _, err := s.lists.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if ownerID != "" {
				q = q.WhereOr("vl.owner_id = ?", ownerID)
			}
			if includePublic {
				q = q.WhereOr("vl.visibility = ?", string(authz.Public))
			}
			return q
		}).OrderExpr("vl.created_at ASC").OrderExpr("vl.id ASC")
	})
	if err != nil {
		return nil, classify("ListLists", err)
	}

	out := make([]vocab.List, 0, len(recs))
	for _, rec := range recs {
		l, err := rec.list()
		if err != nil {
			return nil, classify("ListLists", err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (vocab.Item, error) {
	rec, err := s.items.GetByID(ctx, id.String())
	if err != nil {
		return vocab.Item{}, classify("GetItem", err)
	}
	return rec.item()
}

// Query always sends an explicit LIMIT, since not every dialect accepts
// OFFSET alone.
func (s *Store) Query(ctx context.Context, filter vocab.ItemFilter, sort vocab.Sort, limit, offset int) ([]vocab.Item, int, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	recs, total, err := s.items.List(ctx,
		filterCriteria(filter),
		sortCriteria(sort),
		func(q *bun.SelectQuery) *bun.SelectQuery { return q.Limit(limit).Offset(offset) },
	)
	if err != nil {
		return nil, 0, classify("Query", err)
	}

	out := make([]vocab.Item, 0, len(recs))
	for _, rec := range recs {
		it, err := rec.item()
		if err != nil {
			return nil, 0, classify("Query", err)
		}
		out = append(out, it)
	}
	return out, total, nil
}

// InsertMany writes every item or none. Every referenced list must exist.
func (s *Store) InsertMany(ctx context.Context, items []vocab.Item) error {
	if len(items) == 0 {
		return nil
	}

	records := make([]*itemRecord, len(items))
	parents := make(map[string]struct{})
	for i, it := range items {
		records[i] = newItemRecord(it)
		parents[records[i].ListID] = struct{}{}
	}
	listIDs := make([]string, 0, len(parents))
	for id := range parents {
		listIDs = append(listIDs, id)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := tx.NewSelect().
			Model((*listRecord)(nil)).
			Where("vl.id IN (?)", bun.In(listIDs)).
			Count(ctx)
		if err != nil {
			return err
		}
		if found != len(listIDs) {
			return fmt.Errorf("%d of %d lists do not exist", len(listIDs)-found, len(listIDs))
		}

		_, err = s.items.CreateManyTx(ctx, tx, records)
		return err
	})
	return classify("InsertMany", err)
}

func (s *Store) UpdateOne(ctx context.Context, id uuid.UUID, patch vocab.ItemPatch) (vocab.Item, error) {
	var out vocab.Item
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec, err := s.items.GetByIDTx(ctx, tx, id.String())
		if err != nil {
			return err
		}
		it, err := rec.item()
		if err != nil {
			return err
		}
		patch.Apply(&it)
		it.UpdatedAt = s.stamp()

		if _, err := tx.NewUpdate().Model(newItemRecord(it)).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = it
		return nil
	})
	if err != nil {
		return vocab.Item{}, classify("UpdateOne", err)
	}
	return out, nil
}

// DeleteMany removes the given items in one transaction. Ids that do not
// exist are ignored.
func (s *Store) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.items.DeleteWhereTx(ctx, tx, func(q *bun.DeleteQuery) *bun.DeleteQuery {
			return q.Where("id IN (?)", bun.In(idStrings(ids)))
		})
	})
	return classify("DeleteMany", err)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return classify("Ping", s.db.PingContext(ctx))
}

func filterCriteria(f vocab.ItemFilter) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if len(f.IDs) > 0 {
			q = q.Where("vi.id IN (?)", bun.In(idStrings(f.IDs)))
		}
		if len(f.ListIDs) > 0 {
			q = q.Where("vi.list_id IN (?)", bun.In(idStrings(f.ListIDs)))
		}
		if f.Category != "" {
			q = q.Where("vi.category = ?", f.Category)
		}
		if f.PartOfSpeech != "" {
			q = q.Where("vi.part_of_speech = ?", f.PartOfSpeech)
		}
		if f.MinDifficulty > 0 {
			q = q.Where("vi.difficulty >= ?", f.MinDifficulty)
		}
		if f.MaxDifficulty > 0 {
			q = q.Where("vi.difficulty <= ?", f.MaxDifficulty)
		}
		if f.MinMastery != nil {
			q = q.Where("vi.mastery >= ?", *f.MinMastery)
		}
		if f.MaxMastery != nil {
			q = q.Where("vi.mastery <= ?", *f.MaxMastery)
		}
		return q
	}
}

func sortCriteria(sort vocab.Sort) repository.SelectCriteria {
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = sortColumns[vocab.SortCreatedAt]
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("vi.? "+dir, bun.Safe(column)).OrderExpr("vi.id ASC")
	}
}

var _ vocab.Backend = (*Store)(nil)
