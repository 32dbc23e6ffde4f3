package vocab

import (
	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/google/uuid"
)

// Cache resources. Item values do not depend on the caller and are keyed
// without owner; everything computed over a set of lists is keyed by caller.
const (
	ResourceItem   = "item"
	ResourceItems  = "items"
	ResourceSearch = "search"
	ResourceStats  = "stats"
)

var listScoped = []string{ResourceItems, ResourceSearch, ResourceStats}

type keyspace struct {
	codec cache.KeyCodec
}

func (k keyspace) item(id uuid.UUID) string {
	return k.codec.Key(ResourceItem, "", id.String())
}

func (k keyspace) items(ids []uuid.UUID) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = k.item(id)
	}
	return keys
}

func (k keyspace) scoped(resource, callerID string, params any) string {
	return k.codec.Key(resource, callerID, params)
}

// prefixes returns what must be invalidated after items of lists changed.
// Results involving a public list may be cached for any caller, so a public
// list invalidates the whole resource; a private one only its owner.
func (k keyspace) prefixes(lists ...authz.Resource) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}

	for _, l := range lists {
		owner := l.OwnerID
		if l.Visibility == authz.Public {
			owner = ""
		}
		for _, res := range listScoped {
			add(k.codec.Pattern(res, owner))
		}
	}
	return out
}
