package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Config holds query cache configuration.
type Config struct {
	// Store persists entries across restarts. Nil keeps the cache memory-only.
	Store Store

	// StoreTimeout bounds each store operation.
	StoreTimeout time.Duration

	// PersistMaxAge is how long a persisted record is trusted.
	PersistMaxAge time.Duration

	// LoadTimeout bounds a single loader invocation. Zero means no bound.
	LoadTimeout time.Duration
}

// DefaultConfig returns a memory-only configuration.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:  2 * time.Second,
		PersistMaxAge: DefaultPersistMaxAge,
		LoadTimeout:   2 * time.Minute,
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Loads      int64 `json:"loads"`
	LoadErrors int64 `json:"load_errors"`
}

// Loader produces the value for a key. It is invoked at most once per
// concurrent group of callers for the same key.
type Loader[T any] func(ctx context.Context) (T, error)

// flight tracks one in-progress load so invalidation can veto its result.
type flight struct {
	key     Key
	discard bool
}

// Cache is a keyed query cache with in-flight de-duplication.
//
// Values are held in memory and optionally written through to a Store.
// Failed loads are never cached. All methods are safe for concurrent use.
type Cache struct {
	config Config
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	flights map[string]*flight

	group      singleflight.Group
	prefetches sync.WaitGroup

	hits       atomic.Int64
	misses     atomic.Int64
	loads      atomic.Int64
	loadErrors atomic.Int64

	now func() time.Time
}

// New creates a query cache.
func New(cfg Config) *Cache {
	defaults := DefaultConfig()
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if cfg.PersistMaxAge <= 0 {
		cfg.PersistMaxAge = defaults.PersistMaxAge
	}

	return &Cache{
		config:  cfg,
		logger:  logging.NewLogger("query-cache"),
		entries: make(map[string]*Entry),
		flights: make(map[string]*flight),
		now:     time.Now,
	}
}

// Ensure returns the cached value for key, loading it if absent, stale or
// collected. Concurrent callers for the same key share one load.
//
// The load runs detached from the caller's cancellation so that other
// callers waiting on it are unaffected; a cancelled caller returns
// ctx.Err() immediately.
func Ensure[T any](ctx context.Context, c *Cache, key Key, load Loader[T], opts Options) (T, error) {
	var zero T
	if load == nil {
		return zero, ErrNilLoader
	}
	opts = opts.withDefaults()

	if v, ok := c.lookup(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
		c.logger.Warn().
			Str("key", key.String()).
			Str("type", fmt.Sprintf("%T", v)).
			Msg("Cached value has unexpected type, reloading")
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.fill(flightCtx, key, opts,
			func(ctx context.Context) (any, error) { return load(ctx) },
			func(data []byte) (any, error) {
				var v T
				err := json.Unmarshal(data, &v)
				return v, err
			})
	})

	select {
	case res := <-ch:
		if res.Shared {
			CacheShared.Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: %s holds %T, want %T", key, res.Val, zero)
		}
		return typed, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Prefetch loads key in the background unless a fresh entry exists.
// It never blocks and never reports errors to the caller; failures are
// logged. Use Wait to drain outstanding prefetches.
func Prefetch[T any](ctx context.Context, c *Cache, key Key, load Loader[T], opts Options) {
	if load == nil {
		return
	}
	if c.fresh(key, opts.withDefaults()) {
		return
	}

	detached := context.WithoutCancel(ctx)
	c.prefetches.Add(1)
	go func() {
		defer c.prefetches.Done()
		if _, err := Ensure(detached, c, key, load, opts); err != nil {
			c.logger.Warn().
				Err(err).
				Str("key", key.String()).
				Msg("Prefetch failed")
		}
	}()
}

// Get returns the cached value for key without loading or touching its
// access time. Stale values are returned; collected ones are not.
func Get[T any](c *Cache, key Key) (T, bool) {
	var zero T
	v, ok := c.Peek(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Peek returns the raw cached value for key. See Get.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || e.IsCollectable(c.now()) {
		return nil, false
	}
	return e.Value, true
}

// Invalidate removes every entry whose key has prefix, in memory and in the
// store. Loads in flight for matching keys still answer their callers but
// their results are not stored. Returns the number of in-memory entries
// removed.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) int {
	c.mu.Lock()
	removed := 0
	for ks, e := range c.entries {
		if e.Key.HasPrefix(prefix) {
			delete(c.entries, ks)
			removed++
		}
	}
	for ks, f := range c.flights {
		if f.key.HasPrefix(prefix) {
			f.discard = true
			// New callers must start a fresh load
			c.group.Forget(ks)
		}
	}
	CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	CacheInvalidations.WithLabelValues("invalidate").Add(float64(removed))

	if c.config.Store != nil {
		sctx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
		defer cancel()
		if n, err := c.config.Store.DeletePrefix(sctx, prefix); err != nil {
			c.logger.Warn().Err(err).Str("prefix", prefix.String()).Msg("Store invalidation failed")
		} else {
			c.logger.Debug().Int("store_removed", n).Str("prefix", prefix.String()).Msg("Store invalidated")
		}
	}

	c.logger.Debug().
		Str("prefix", prefix.String()).
		Int("removed", removed).
		Msg("Cache invalidated")

	return removed
}

// Collect removes entries past their GC time and returns how many were removed.
func (c *Cache) Collect() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for ks, e := range c.entries {
		if e.IsCollectable(now) {
			delete(c.entries, ks)
			removed++
		}
	}
	CacheEntries.Set(float64(len(c.entries)))
	CacheInvalidations.WithLabelValues("collect").Add(float64(removed))
	return removed
}

// Run collects expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Collect(); n > 0 {
				c.logger.Debug().Int("removed", n).Msg("Collected cache entries")
			}
		}
	}
}

// Wait blocks until all outstanding prefetches have finished.
func (c *Cache) Wait() {
	c.prefetches.Wait()
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:    c.Len(),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Loads:      c.loads.Load(),
		LoadErrors: c.loadErrors.Load(),
	}
}

// Close waits for prefetches and closes the store.
func (c *Cache) Close() error {
	c.Wait()
	if c.config.Store != nil {
		return c.config.Store.Close()
	}
	return nil
}

// lookup returns a fresh in-memory value and records the access.
func (c *Cache) lookup(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.freshLocked(key.String(), c.now())
	if !ok {
		return nil, false
	}

	c.hits.Add(1)
	CacheHits.WithLabelValues("memory").Inc()
	return e.Value, true
}

// fresh reports whether key holds a servable entry under opts.
func (c *Cache) fresh(key Key, opts Options) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return false
	}
	now := c.now()
	probe := Entry{FetchedAt: e.FetchedAt, LastAccessedAt: e.LastAccessedAt, Options: opts}
	return !probe.IsStale(now) && !e.IsCollectable(now)
}

// freshLocked returns the entry for ks if it may be served, dropping it if
// collectable. c.mu must be held.
func (c *Cache) freshLocked(ks string, now time.Time) (*Entry, bool) {
	e, ok := c.entries[ks]
	if !ok {
		return nil, false
	}
	if e.IsCollectable(now) {
		delete(c.entries, ks)
		CacheEntries.Set(float64(len(c.entries)))
		CacheInvalidations.WithLabelValues("collect").Inc()
		return nil, false
	}
	if e.IsStale(now) {
		return nil, false
	}
	e.LastAccessedAt = now
	return e, true
}

// fill runs inside the singleflight group: store, then loader.
func (c *Cache) fill(ctx context.Context, key Key, opts Options, load func(context.Context) (any, error), decode func([]byte) (any, error)) (any, error) {
	ks := key.String()
	f := &flight{key: key}

	c.mu.Lock()
	// A previous flight may have filled the key after our lookup
	if e, ok := c.freshLocked(ks, c.now()); ok {
		c.mu.Unlock()
		return e.Value, nil
	}
	c.flights[ks] = f
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.flights[ks] == f {
			delete(c.flights, ks)
		}
		c.mu.Unlock()
	}()

	if c.config.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.LoadTimeout)
		defer cancel()
	}

	if v, fetchedAt, ok := c.hydrate(ctx, key, opts, decode); ok {
		c.commit(f, v, fetchedAt, opts)
		c.hits.Add(1)
		CacheHits.WithLabelValues("store").Inc()
		return v, nil
	}

	c.misses.Add(1)
	CacheMisses.Inc()
	c.loads.Add(1)

	start := time.Now()
	v, err := load(ctx)
	if err != nil {
		c.loadErrors.Add(1)
		CacheLoads.WithLabelValues("error").Inc()
		c.logger.Warn().
			Err(err).
			Str("key", ks).
			Dur("duration", time.Since(start)).
			Msg("Query load failed")
		return nil, err
	}

	fetchedAt := c.now()
	if !c.commit(f, v, fetchedAt, opts) {
		CacheLoads.WithLabelValues("discarded").Inc()
		c.logger.Debug().Str("key", ks).Msg("Load overtaken by invalidation, not stored")
		return v, nil
	}

	CacheLoads.WithLabelValues("success").Inc()
	c.logger.Debug().
		Str("key", ks).
		Dur("duration", time.Since(start)).
		Msg("Query loaded")

	c.persist(ctx, f, v, fetchedAt)
	return v, nil
}

// commit stores a loaded value unless the flight was invalidated.
func (c *Cache) commit(f *flight, v any, fetchedAt time.Time, opts Options) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f.discard {
		return false
	}

	c.entries[f.key.String()] = &Entry{
		Key:            f.key,
		Value:          v,
		FetchedAt:      fetchedAt,
		LastAccessedAt: c.now(),
		Options:        opts,
	}
	CacheEntries.Set(float64(len(c.entries)))
	return true
}

// hydrate tries the store for a record that is still fresh under opts.
func (c *Cache) hydrate(ctx context.Context, key Key, opts Options, decode func([]byte) (any, error)) (any, time.Time, bool) {
	if c.config.Store == nil {
		return nil, time.Time{}, false
	}

	sctx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	rec, err := c.config.Store.Load(sctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Store load failed")
		}
		return nil, time.Time{}, false
	}

	probe := Entry{FetchedAt: rec.FetchedAt, Options: opts}
	if probe.IsStale(c.now()) {
		return nil, time.Time{}, false
	}

	v, err := decode(rec.Data)
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Stored record does not decode")
		return nil, time.Time{}, false
	}

	return v, rec.FetchedAt, true
}

// persist writes a loaded value through to the store.
func (c *Cache) persist(ctx context.Context, f *flight, v any, fetchedAt time.Time) {
	if c.config.Store == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		c.logger.Warn().Err(err).Str("key", f.key.String()).Msg("Value does not encode, not persisted")
		return
	}

	rec := &Record{
		Data:      data,
		FetchedAt: fetchedAt,
		Expires:   fetchedAt.Add(c.config.PersistMaxAge),
	}

	sctx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	if err := c.config.Store.Save(sctx, f.key, rec); err != nil {
		c.logger.Warn().Err(err).Str("key", f.key.String()).Msg("Store save failed")
		return
	}

	// An invalidation may have cleared the store before our save landed
	c.mu.Lock()
	discard := f.discard
	c.mu.Unlock()
	if discard {
		if _, err := c.config.Store.DeletePrefix(sctx, f.key); err != nil {
			c.logger.Warn().Err(err).Str("key", f.key.String()).Msg("Store cleanup failed")
		}
	}
}
