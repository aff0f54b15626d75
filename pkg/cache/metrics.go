package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks live entries served by kind
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dex_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)

	// CacheMisses tracks lookups that required a computation
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dex_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind"},
	)

	// CacheShared tracks callers that attached to an in-flight computation
	CacheShared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dex_cache_shared_total",
			Help: "Total number of coalesced callers that shared an in-flight computation",
		},
		[]string{"kind"},
	)

	// CacheComputeErrors tracks failed computations
	CacheComputeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dex_cache_compute_errors_total",
			Help: "Total number of failed cache computations",
		},
		[]string{"kind"},
	)

	// CacheEntries tracks the number of entries held
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dex_cache_entries",
			Help: "Current number of entries held by the cache store",
		},
	)
)
