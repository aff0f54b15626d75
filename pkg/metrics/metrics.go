// Package metrics exposes the Prometheus registry the dex packages register
// into. All metrics are defined in their respective packages (client, cache,
// httpcache, pagination, ratelimit) to keep them next to the code they measure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer used by every package via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer serves the registered metrics.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Upstream Metrics (pkg/client):
//   - dex_upstream_requests_total{resource, status} (Counter): Upstream requests by resource and HTTP status
//   - dex_upstream_request_duration_seconds{resource} (Histogram): Call duration, retries included
//   - dex_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, timeout)
//   - dex_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - dex_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff waited before a retry
//   - dex_upstream_retry_exhausted_total{error_class} (Counter): Requests that ran out of attempts
//
// In-process Cache Metrics (pkg/cache):
//   - dex_cache_hits_total{kind} (Counter): Live entries served
//   - dex_cache_misses_total{kind} (Counter): Factory runs started
//   - dex_cache_shared_total{kind} (Counter): Callers that joined an in-flight computation
//   - dex_cache_compute_errors_total{kind} (Counter): Factory failures (never cached)
//   - dex_cache_entries (Gauge): Entries currently held
//
// HTTP Response Cache Metrics (pkg/httpcache, only with Redis configured):
//   - dex_http_cache_hits_total (Counter): Fresh responses served from Redis
//   - dex_http_cache_misses_total (Counter): Requests with no usable entry
//   - dex_http_cache_written_bytes (Gauge): Size of the last stored body
//   - dex_http_conditional_requests_total (Counter): Revalidations sent with If-None-Match/If-Modified-Since
//   - dex_http_304_responses_total (Counter): Revalidations answered with 304
//   - dex_http_cache_errors_total{operation} (Counter): Redis operation errors
//
// Cool-down Metrics (pkg/ratelimit):
//   - dex_rate_limit_cooldowns_total (Counter): Windows opened or extended by a 429 or 503 with Retry-After
//   - dex_rate_limit_waits_total (Counter): Requests that waited for a window
//   - dex_rate_limit_cooldown_seconds (Gauge): Length of the most recent window
//
// Paging Metrics (pkg/pagination):
//   - dex_pagination_items_total{result} (Counter): Hydrated items by outcome
//   - dex_pagination_batch_duration_seconds (Histogram): Wall time of one page hydration
//
// Example Prometheus Queries:
//
//   # In-process Cache Hit Rate
//   sum(rate(dex_cache_hits_total[5m])) /
//   (sum(rate(dex_cache_hits_total[5m])) + sum(rate(dex_cache_misses_total[5m])))
//
//   # Coalescing effectiveness
//   sum(rate(dex_cache_shared_total[5m])) by (kind)
//
//   # Throttled request rate
//   rate(dex_rate_limit_waits_total[5m])
//
//   # Upstream Error Rate
//   rate(dex_upstream_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(dex_upstream_request_duration_seconds_bucket[5m]))
//
//   # 304 Response Rate
//   rate(dex_http_304_responses_total[5m]) / rate(dex_http_conditional_requests_total[5m])
