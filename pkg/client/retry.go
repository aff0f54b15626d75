package client

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_upstream_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dex_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the backoff before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff (jitter excluded).
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// JitterMin and JitterMax bound the random delay added to every
	// exponential backoff: [JitterMin, JitterMax).
	JitterMin time.Duration
	JitterMax time.Duration
}

// DefaultRetryConfig returns the default retry configuration:
// 4 attempts, 250ms doubling backoff plus 50-200ms jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
		JitterMin:         50 * time.Millisecond,
		JitterMax:         200 * time.Millisecond,
	}
}

// Backoff returns the exponential delay after the given failed attempt
// (1-based), without jitter: 250ms, 500ms, 1s, 2s with the defaults.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := c.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	backoff := float64(c.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if c.MaxBackoff > 0 && backoff > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}

// jitter returns a random duration in [JitterMin, JitterMax).
func (c RetryConfig) jitter() time.Duration {
	span := c.JitterMax - c.JitterMin
	if span <= 0 {
		return max(c.JitterMin, 0)
	}
	return c.JitterMin + time.Duration(rand.Int63n(int64(span)))
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds or
// an HTTP date. Dates are converted to a wait relative to now and clamped to
// zero. The boolean reports whether the value was usable.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, true
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}

// backoffFor picks the wait before the next attempt. A Retry-After directive
// wins over the exponential schedule and is honored exactly.
func (c *Client) backoffFor(attempt int, header http.Header) (time.Duration, bool) {
	if header != nil {
		if wait, ok := ParseRetryAfter(header.Get("Retry-After"), c.now()); ok {
			return wait, true
		}
	}
	return c.config.Retry.Backoff(attempt) + c.jitter(), false
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
