// Package repositorycache decorates a vocab.Backend with read-through caching
// of list lookups.
//
// Authorization resolves the parent list of every item it checks, so list
// reads are by far the hottest backend call. CachedBackend serves GetList and
// ListLists from a cache.Store and passes everything else through:
//
//	base := sqlstore.New(db)
//	backend := repositorycache.New(base, fetcher, repositorycache.WithTTL(time.Minute))
//	svc, err := vocab.NewService(backend, fetcher)
//
// # Invalidation
//
// InsertList and UpdateList drop the cached list and every cached list index
// after the base call succeeds. Indexes of all owners are dropped because a
// public list appears in the index of every reader.
//
// # Bypass
//
// Contexts marked with vocab.BypassCache read through to the base backend.
// The service marks every write-path authorization this way, so a change of
// owner or visibility is seen by the next write even while a stale entry is
// still cached on another instance.
package repositorycache
