package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pokedex-client/pkg/client"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

// Prometheus metrics for cool-down tracking.
var (
	cooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dex_rate_limit_cooldowns_total",
		Help: "Total number of cool-down windows opened or extended by upstream throttling",
	})

	waitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dex_rate_limit_waits_total",
		Help: "Total number of requests that waited for a cool-down window",
	})

	cooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dex_rate_limit_cooldown_seconds",
		Help: "Length of the most recent cool-down window in seconds",
	})
)

// Tracker records upstream throttling and gates requests on it. It
// satisfies client.Limiter.
type Tracker struct {
	mu    sync.Mutex
	state State

	// redis shares the window between processes. Optional.
	redis  *redis.Client
	logger zerolog.Logger

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var _ client.Limiter = (*Tracker)(nil)

// NewTracker creates a tracker. redisClient may be nil for a process-local
// window.
func NewTracker(redisClient *redis.Client, logger *zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logging.OrDefault(logger, logging.ComponentRateLimit),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// GetState returns the later of the local window and the shared one. On a
// Redis failure the local state is returned together with the error.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if t.redis == nil {
		return state, nil
	}

	millis, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if errors.Is(err, redis.Nil) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("get blocked until: %w", err)
	}

	if shared := time.UnixMilli(millis); shared.After(state.BlockedUntil) {
		state.BlockedUntil = shared
	}
	return state, nil
}

// Observe opens or extends the window when a 429 or 503 announces a
// Retry-After. A missing or unparseable Retry-After opens nothing.
func (t *Tracker) Observe(ctx context.Context, statusCode int, header http.Header) {
	if statusCode != http.StatusTooManyRequests && statusCode != http.StatusServiceUnavailable {
		return
	}

	now := t.now()
	window, ok := client.ParseRetryAfter(header.Get("Retry-After"), now)
	if !ok {
		return
	}
	window = min(window, MaxCooldown)
	if window <= 0 {
		return
	}
	until := now.Add(window)

	t.mu.Lock()
	extended := until.After(t.state.BlockedUntil)
	if extended {
		t.state = State{BlockedUntil: until, LastStatus: statusCode, LastUpdate: now}
	}
	t.mu.Unlock()

	if !extended {
		return
	}

	cooldownsTotal.Inc()
	cooldownSeconds.Set(window.Seconds())

	t.logger.Warn().
		Int("status", statusCode).
		Dur("window", window).
		Time("blocked_until", until).
		Msg("Upstream throttling - pausing requests")

	if t.redis != nil {
		// the key expires with the window
		err := t.redis.Set(ctx, RedisKeyBlockedUntil, strconv.FormatInt(until.UnixMilli(), 10), window).Err()
		if err != nil {
			t.logger.Warn().Err(err).Msg("Failed to share cool-down window")
		}
	}
}

// Wait blocks until the current window has passed or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Cool-down state unavailable, using local state")
	}

	wait := state.TimeUntilReset(t.now())
	if wait <= 0 {
		return ctx.Err()
	}

	waitsTotal.Inc()
	t.logger.Debug().
		Dur("wait", wait).
		Msg("Waiting for upstream cool-down")

	return t.sleep(ctx, wait)
}

// Reset clears the window locally and in Redis.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.state = State{}
	t.mu.Unlock()

	if t.redis == nil {
		return nil
	}
	if err := t.redis.Del(ctx, RedisKeyBlockedUntil).Err(); err != nil {
		return fmt.Errorf("delete blocked until: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
