// Package ratelimit implements the upstream cool-down gate. A 429 or 503
// carrying Retry-After observed by any request pauses every later request
// until the announced window has passed. Throttling without Retry-After
// opens no window; the retry executor's own backoff covers it. With Redis configured the window
// is shared by all processes using the same Redis.
package ratelimit

import (
	"time"
)

// RedisKeyBlockedUntil holds the end of the current cool-down as Unix
// milliseconds. It expires together with the window.
const RedisKeyBlockedUntil = "dex:rate_limit:blocked_until"

// MaxCooldown caps any announced window.
const MaxCooldown = time.Minute

// State is the current cool-down.
type State struct {
	// BlockedUntil is the end of the window. Zero means never blocked.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the status code that opened the window.
	LastStatus int `json:"last_status"`

	// LastUpdate is when the window was last opened or extended.
	LastUpdate time.Time `json:"last_update"`
}

// Blocked reports whether requests must wait at now.
func (s State) Blocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilReset returns the remaining wait at now, or 0.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
