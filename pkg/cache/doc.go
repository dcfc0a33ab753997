// Package cache provides the query cache: a keyed, in-process cache for
// read-only reference data with optional persistence.
//
// The cache implements the following features:
//
// - Load de-duplication: concurrent callers of one key share a single load
// - Retention policy per query (StaleTime, GCTime), including never-stale
// - Hierarchical keys with token-wise prefix invalidation
// - Non-blocking prefetch
// - Failed loads are never cached
// - Optional write-through persistence (Redis, SQLite)
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	c := cache.New(cache.DefaultConfig())
//
//	key := cache.NewKey("berries", "list")
//	opts := cache.Options{StaleTime: cache.Infinity, GCTime: 365 * 24 * time.Hour}
//
//	berries, err := cache.Ensure(ctx, c, key, func(ctx context.Context) ([]Berry, error) {
//		return fetchBerries(ctx)
//	}, opts)
//
// # Invalidation
//
//	// Drops [berries list], [berries detail cheri], ...
//	c.Invalidate(ctx, cache.NewKey("berries"))
//
// # Persistence
//
//	cfg := cache.DefaultConfig()
//	cfg.Store = cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//	c := cache.New(cfg)
//
// On a memory miss the store is consulted before the loader runs; loaded
// values are written through. Store failures are logged and never fail a
// query.
//
// # HTTP Validators
//
// ETag, NotModified and SetValidators let HTTP handlers answer conditional
// requests for cached responses with 304 Not Modified.
//
// # Metrics
//
//   - pokeref_cache_hits_total{layer} - Hits by layer (memory, store)
//   - pokeref_cache_misses_total - Lookups that invoked a loader
//   - pokeref_cache_loads_total{result} - Loads by result (success, error, discarded)
//   - pokeref_cache_shared_loads_total - Callers served by a shared load
//   - pokeref_cache_entries - In-memory entries
//   - pokeref_cache_removed_total{reason} - Removals (invalidate, collect)
//   - pokeref_cache_errors_total{operation} - Store errors
package cache
