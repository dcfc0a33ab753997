// Package queries binds the consolidation procedures to the query cache:
// one cache key hierarchy per resource kind, the retention policy of list
// and detail queries, prefetching and invalidation.
package queries

import (
	"strconv"
	"time"

	"github.com/Sternrassler/pokeref/pkg/cache"
	"github.com/Sternrassler/pokeref/pkg/resource"
)

// ListGCTime is how long an unused list result is retained.
const ListGCTime = 365 * 24 * time.Hour

var (
	// ListOptions never go stale and are retained for a year.
	ListOptions = cache.Options{StaleTime: cache.Infinity, GCTime: ListGCTime}

	// DetailOptions never go stale and use the default retention.
	DetailOptions = cache.Options{StaleTime: cache.Infinity, GCTime: cache.DefaultGCTime}
)

// KeyFactory builds the cache keys of one kind:
//
//	[kind]                      All
//	[kind list]                 Lists, List
//	[kind list range 0 20]      Range (pokemon only)
//	[kind detail]               Details
//	[kind detail name]          Detail
type KeyFactory struct {
	kind resource.Kind
}

// Keys returns the key factory for kind.
func Keys(kind resource.Kind) KeyFactory {
	return KeyFactory{kind: kind}
}

func (f KeyFactory) All() cache.Key {
	return cache.NewKey(f.kind.String())
}

func (f KeyFactory) Lists() cache.Key {
	return f.All().Append("list")
}

// List is the key of the full list query. Lists take no filters, so it
// equals Lists.
func (f KeyFactory) List() cache.Key {
	return f.Lists()
}

// Range is the key of one window of a list. Invalidating Lists drops it.
func (f KeyFactory) Range(offset, limit int) cache.Key {
	return f.Lists().Append("range", strconv.Itoa(offset), strconv.Itoa(limit))
}

func (f KeyFactory) Details() cache.Key {
	return f.All().Append("detail")
}

func (f KeyFactory) Detail(name string) cache.Key {
	return f.Details().Append(name)
}
