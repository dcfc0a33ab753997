// Package metrics provides the Prometheus registry and scrape handler for
// pokeref. All metrics are defined in their respective packages (pokeapi,
// ratelimit, aggregate, cache, rpc) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by pokeref.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving Gatherer in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Upstream Metrics (pkg/pokeapi):
//   - pokeref_upstream_requests_total{endpoint, status} (Counter): PokeAPI requests by endpoint and HTTP status
//   - pokeref_upstream_request_duration_seconds{endpoint} (Histogram): PokeAPI request duration
//   - pokeref_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, validation)
//   - pokeref_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pokeref_ratelimit_waits_total (Counter): Outbound requests that had to wait for a token
//   - pokeref_ratelimit_wait_seconds (Histogram): Time spent waiting for a token
//   - pokeref_ratelimit_rejects_total (Counter): Waits abandoned because the context ended
//
// Fan-out Metrics (pkg/aggregate):
//   - pokeref_fanout_duration_seconds{kind} (Histogram): Duration of list+detail aggregations
//   - pokeref_fanout_entries{kind} (Gauge): Entries in the last successful aggregation
//   - pokeref_fanout_failures_total{kind, stage} (Counter): Failed aggregations by stage (list, detail)
//
// Query Cache Metrics (pkg/cache):
//   - pokeref_cache_hits_total{layer} (Counter): Hits by layer (memory, store)
//   - pokeref_cache_misses_total (Counter): Misses
//   - pokeref_cache_loads_total{result} (Counter): Loader invocations by result
//   - pokeref_cache_shared_loads_total (Counter): Callers served by another caller's load
//   - pokeref_cache_entries (Gauge): In-memory entries
//   - pokeref_cache_removed_total{reason} (Counter): Removed entries (invalidate, collect)
//   - pokeref_cache_errors_total{operation} (Counter): Persistent store errors
//
// HTTP Metrics (pkg/rpc):
//   - pokeref_http_requests_total{route, method, status} (Counter): Requests by route template
//   - pokeref_http_request_duration_seconds{route} (Histogram): Request duration by route template
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pokeref_cache_hits_total[5m])) /
//   (sum(rate(pokeref_cache_hits_total[5m])) + sum(rate(pokeref_cache_misses_total[5m])))
//
//   # Upstream Request Error Rate
//   rate(pokeref_upstream_errors_total[5m])
//
//   # P95 Aggregation Latency per Kind
//   histogram_quantile(0.95, sum by (kind, le) (rate(pokeref_fanout_duration_seconds_bucket[5m])))
//
//   # Single-flight Savings
//   rate(pokeref_cache_shared_loads_total[5m])
