package cache

import (
	"time"
)

// Entry is a computed value held by the Store. Entries are replaced
// wholesale on refresh, never mutated in place.
type Entry struct {
	// Key is the cache key the entry is stored under
	Key string

	// Value is the opaque computed result
	Value any

	// ExpiresAt is when the entry stops being served
	ExpiresAt time.Time
}

// IsExpiredAt reports whether the entry is stale at the given instant.
// An entry is still live at exactly ExpiresAt.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TTLAt returns the time left until expiration at the given instant.
// Returns 0 if already expired.
func (e *Entry) TTLAt(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
