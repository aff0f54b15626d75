// Package httpcache provides an optional Redis-backed HTTP response cache
// that sits in the transport below the retry executor.
//
// It stores successful GET responses keyed by URL, serves them while fresh
// (Expires / Cache-Control max-age), and revalidates stale entries with
// conditional requests (If-None-Match / If-Modified-Since). A 304 answer is
// turned back into the cached 200 response.
//
// This layer is shared across processes through Redis. It is disabled unless
// a Redis address is configured; the in-process coalescing cache in
// pkg/cache works without it.
package httpcache

import (
	"net/http"
	"time"
)

// CacheEntry represents a cached upstream response.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale and must be revalidated
	Expires time.Time `json:"expires"`

	// LastModified from the upstream Last-Modified header
	LastModified time.Time `json:"last_modified"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry is stale.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until the entry becomes stale.
// Returns 0 if already stale.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
