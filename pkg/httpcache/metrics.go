package httpcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh responses served from Redis
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dex_http_cache_hits_total",
			Help: "Total number of fresh HTTP responses served from the Redis cache",
		},
	)

	// CacheMisses tracks requests with no usable cache entry
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dex_http_cache_misses_total",
			Help: "Total number of HTTP cache misses",
		},
	)

	// CacheSize tracks bytes written to Redis
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dex_http_cache_written_bytes",
			Help: "Bytes written to the Redis HTTP cache",
		},
	)

	// ConditionalRequestsSent tracks revalidation requests
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dex_http_conditional_requests_total",
			Help: "Total number of conditional requests sent to revalidate stale entries",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dex_http_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dex_http_cache_errors_total",
			Help: "Total number of HTTP cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
