package cache

import (
	"encoding/json"
	"math"
	"time"
)

// Infinity disables staleness or collection when used as StaleTime or GCTime.
const Infinity time.Duration = math.MaxInt64

const (
	// DefaultStaleTime is how long an entry counts as fresh unless a query
	// overrides it.
	DefaultStaleTime = time.Hour

	// DefaultGCTime is how long an entry is retained after its last access
	// unless a query overrides it.
	DefaultGCTime = 7 * 24 * time.Hour

	// DefaultPersistMaxAge bounds how long a persisted record is trusted.
	DefaultPersistMaxAge = 7 * 24 * time.Hour
)

// Options control the retention policy of one query.
type Options struct {
	// StaleTime is how long after FetchedAt the value is served without
	// reloading. Infinity means never stale.
	StaleTime time.Duration

	// GCTime is how long after the last access an entry is retained.
	// Infinity means never collected.
	GCTime time.Duration
}

// DefaultOptions returns the cache-wide default options.
func DefaultOptions() Options {
	return Options{
		StaleTime: DefaultStaleTime,
		GCTime:    DefaultGCTime,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	if o.StaleTime <= 0 {
		o.StaleTime = DefaultStaleTime
	}
	if o.GCTime <= 0 {
		o.GCTime = DefaultGCTime
	}
	return o
}

// Entry is a populated cache slot. Entries are never mutated after
// population except for LastAccessedAt.
type Entry struct {
	Key            Key
	Value          any
	FetchedAt      time.Time
	LastAccessedAt time.Time
	Options        Options
}

// IsStale reports whether the entry must be reloaded before it is served.
func (e *Entry) IsStale(now time.Time) bool {
	if e.Options.StaleTime == Infinity {
		return false
	}
	return now.Sub(e.FetchedAt) >= e.Options.StaleTime
}

// IsCollectable reports whether the entry outlived its retention.
func (e *Entry) IsCollectable(now time.Time) bool {
	if e.Options.GCTime == Infinity {
		return false
	}
	return now.Sub(e.LastAccessedAt) >= e.Options.GCTime
}

// Record is the persisted form of an entry.
type Record struct {
	// Data is the JSON encoded value
	Data json.RawMessage `json:"data"`

	// FetchedAt is when the value was loaded from the source
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the store stops trusting the record
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the record has expired.
func (r *Record) IsExpired() bool {
	return time.Now().After(r.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (r *Record) TTL() time.Duration {
	ttl := time.Until(r.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
