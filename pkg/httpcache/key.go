package httpcache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// CacheKey represents a unique identifier for a cached upstream response.
type CacheKey struct {
	// Host is the upstream host (e.g., "pokeapi.co")
	Host string

	// Path is the request path (e.g., "/api/v2/pokemon/25/")
	Path string

	// QueryParams are the query parameters (e.g., {"offset": "20"})
	QueryParams url.Values
}

// KeyForRequest derives the cache key of a request.
func KeyForRequest(req *http.Request) CacheKey {
	return CacheKey{
		Host:        req.URL.Host,
		Path:        req.URL.Path,
		QueryParams: req.URL.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: dex-http:host:path:query1=val1:query2=val2
//
// Example:
//
//	dex-http:pokeapi.co:api/v2/pokemon:limit=20:offset=40
func (k CacheKey) String() string {
	parts := []string{"dex-http"}

	if k.Host != "" {
		parts = append(parts, strings.ToLower(k.Host))
	}

	// Trailing slashes are not significant upstream
	if path := strings.Trim(k.Path, "/"); path != "" {
		parts = append(parts, path)
	}

	// Query params sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
