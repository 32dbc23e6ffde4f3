package vocab

import (
	"context"

	"github.com/google/uuid"
)

// Backend is the backing store. Every call either fully applies or fully
// fails; InsertMany and DeleteMany run as one transaction. Missing records
// are reported with ErrNotFound.
type Backend interface {
	GetList(ctx context.Context, id uuid.UUID) (List, error)
	InsertList(ctx context.Context, list List) error
	UpdateList(ctx context.Context, id uuid.UUID, patch ListPatch) (List, error)
	// ListLists returns the lists owned by ownerID, plus every public list
	// when includePublic is set.
	ListLists(ctx context.Context, ownerID string, includePublic bool) ([]List, error)

	GetItem(ctx context.Context, id uuid.UUID) (Item, error)
	// Query returns one page of matching items and the total match count.
	// A non positive limit returns every match after offset.
	Query(ctx context.Context, filter ItemFilter, sort Sort, limit, offset int) ([]Item, int, error)
	InsertMany(ctx context.Context, items []Item) error
	UpdateOne(ctx context.Context, id uuid.UUID, patch ItemPatch) (Item, error)
	DeleteMany(ctx context.Context, ids []uuid.UUID) error
}

type bypassCacheKey struct{}

// BypassCache marks ctx so caching decorators read through to the source of
// truth. Write authorization uses it to resolve parents fresh.
func BypassCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassCacheKey{}, true)
}

// CacheBypassed reports whether ctx was marked with BypassCache.
func CacheBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassCacheKey{}).(bool)
	return v
}
