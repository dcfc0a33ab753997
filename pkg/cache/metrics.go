package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, store)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokeref_cache_hits_total",
			Help: "Total number of query cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks lookups that had to invoke a loader
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokeref_cache_misses_total",
			Help: "Total number of query cache misses",
		},
	)

	// CacheLoads tracks loader invocations by result (success, error, discarded)
	CacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokeref_cache_loads_total",
			Help: "Total number of loader invocations by result",
		},
		[]string{"result"},
	)

	// CacheShared tracks callers that joined an in-flight load
	CacheShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokeref_cache_shared_loads_total",
			Help: "Total number of callers served by another caller's in-flight load",
		},
	)

	// CacheEntries tracks the number of in-memory entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pokeref_cache_entries",
			Help: "Current number of in-memory query cache entries",
		},
	)

	// CacheInvalidations tracks entries removed by invalidation or collection
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokeref_cache_removed_total",
			Help: "Total number of entries removed by reason",
		},
		[]string{"reason"}, // "invalidate", "collect"
	)

	// CacheErrors tracks persistent store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokeref_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "load", "save", "delete"
	)
)
