package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in a store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored record is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNilLoader is returned by Ensure when no loader is given
	ErrNilLoader = errors.New("loader cannot be nil")
)

// Store persists query results beyond the process lifetime.
//
// Implementations must be safe for concurrent use. A Store never decides
// freshness; it only drops records past their Expires time.
type Store interface {
	// Load returns the record for key, or ErrCacheMiss.
	Load(ctx context.Context, key Key) (*Record, error)

	// Save stores rec under key until rec.Expires.
	Save(ctx context.Context, key Key, rec *Record) error

	// DeletePrefix removes every record whose key has the given prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix Key) (int, error)

	// Close releases the store's resources.
	Close() error
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks that the cache's store is reachable. Memory-only caches and
// stores without a Pinger always succeed.
func (c *Cache) Ping(ctx context.Context) error {
	if p, ok := c.config.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
