// Package client provides the retrying upstream executor used by every
// catalog fetch: bounded attempts, exponential backoff with jitter, and
// Retry-After compliance.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pokedex-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public catalog API root.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

// Prometheus metrics for upstream operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_upstream_requests_total",
		Help: "Total upstream requests by resource and status",
	}, []string{"resource", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dex_upstream_request_duration_seconds",
		Help:    "Upstream call duration in seconds by resource, retries included",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dex_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection-level failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents attempts that ran out of time without the
	// caller cancelling.
	ErrorClassTimeout ErrorClass = "timeout"
)

// Doer is the transport capability the executor is built on.
// *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Limiter gates attempts on an upstream-wide cool-down.
type Limiter interface {
	// Wait blocks while the upstream asked clients to back off.
	Wait(ctx context.Context) error

	// Observe feeds every response to the limiter.
	Observe(ctx context.Context, statusCode int, header http.Header)
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Attempts is the number of upstream calls made to obtain this response.
	Attempts int
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NotFound reports a definitive absence signal.
func (r *Response) NotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Client is the retrying upstream executor.
type Client struct {
	httpClient Doer
	config     Config
	baseURL    *url.URL
	logger     zerolog.Logger

	// test seams
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
	now    func() time.Time
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the catalog API root (e.g. "https://pokeapi.co/api/v2").
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// AttemptTimeout bounds a single attempt, body read included.
	// Expiry is retried; it is not a caller cancellation.
	AttemptTimeout time.Duration

	// Retry controls attempts and backoff.
	Retry RetryConfig

	// HTTPClient is the transport. Defaults to an *http.Client.
	HTTPClient Doer

	// Limiter shares throttling across requests. Optional.
	Limiter Limiter

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      userAgent,
		AttemptTimeout: 15 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient: httpClient,
		config:     cfg,
		baseURL:    base,
		logger:     logging.OrDefault(cfg.Logger, logging.ComponentClient),
		sleep:      sleepContext,
		now:        time.Now,
	}
	c.jitter = cfg.Retry.jitter

	return c, nil
}

// Get is a convenience alias for FetchWithRetry.
func (c *Client) Get(ctx context.Context, resource string) (*Response, error) {
	return c.FetchWithRetry(ctx, resource)
}

// FetchWithRetry performs a GET for resource (a path relative to BaseURL or
// an absolute URL) with bounded retries.
//
// 429, 5xx, connection failures and attempt timeouts are retried. Any other
// status is returned as-is. When attempts run out, the last response is
// returned without error even if it looks retriable; a transport failure on
// the final attempt is returned as an *UpstreamError wrapping
// ErrRetryExhausted. Caller cancellation aborts with ErrCanceled.
func (c *Client) FetchWithRetry(ctx context.Context, resource string) (*Response, error) {
	target, err := c.resolve(resource)
	if err != nil {
		return nil, err
	}
	label := resourceLabel(target, c.baseURL)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	maxAttempts := c.config.Retry.MaxAttempts
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, c.canceled(target, attempt, err)
		}

		if c.config.Limiter != nil {
			if err := c.config.Limiter.Wait(ctx); err != nil {
				return nil, c.canceled(target, attempt, err)
			}
		}

		c.logger.Debug().
			Str("path", target).
			Int("attempt", attempt).
			Msg("Executing upstream request")

		resp, err := c.do(ctx, target)
		final := attempt >= maxAttempts

		var (
			errClass ErrorClass
			header   http.Header
		)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, c.canceled(target, attempt, ctxErr)
			}

			errClass = classifyTransportError(err)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(label, string(errClass)).Inc()

			if final {
				retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
				c.logger.Error().
					Err(err).
					Str("path", target).
					Str("error_class", string(errClass)).
					Int("attempts", attempt).
					Msg("Retry attempts exhausted")
				return nil, &UpstreamError{
					ErrorClass: errClass,
					Message:    fmt.Sprintf("GET %s failed after %d attempts", target, attempt),
					Err:        fmt.Errorf("%w: %v", ErrRetryExhausted, err),
				}
			}
		} else {
			resp.Attempts = attempt
			if c.config.Limiter != nil {
				c.config.Limiter.Observe(ctx, resp.StatusCode, resp.Header)
			}
			requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

			errClass = ClassifyStatus(resp.StatusCode)
			if errClass == "" || !shouldRetry(errClass) {
				if attempt > 1 {
					c.logger.Info().
						Str("path", target).
						Int("status", resp.StatusCode).
						Int("attempt", attempt).
						Msg("Request settled after retry")
				}
				return resp, nil
			}

			errorsTotal.WithLabelValues(string(errClass)).Inc()

			if final {
				retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
				c.logger.Warn().
					Str("path", target).
					Int("status", resp.StatusCode).
					Int("attempts", attempt).
					Msg("Retry attempts exhausted, returning last response")
				return resp, nil
			}
			header = resp.Header
		}

		wait, fromHeader := c.backoffFor(attempt, header)
		retriesTotal.WithLabelValues(string(errClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(wait.Seconds())

		event := c.logger.Warn().
			Str("path", target).
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Bool("retry_after", fromHeader)
		if err != nil {
			event = event.Err(err)
		} else {
			event = event.Int("status", resp.StatusCode)
		}
		event.Msg("Retrying upstream request after backoff")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, c.canceled(target, attempt, err)
		}
	}
}

// do executes a single attempt and reads the whole body.
func (c *Client) do(ctx context.Context, target string) (*Response, error) {
	attemptCtx := ctx
	if c.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.config.AttemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// canceled builds the error returned when the caller's context ended.
func (c *Client) canceled(target string, attempt int, cause error) error {
	c.logger.Debug().
		Str("path", target).
		Int("attempt", attempt).
		Msg("Request canceled by caller")
	return fmt.Errorf("%w: %v", ErrCanceled, cause)
}

// resolve turns a resource path or absolute URL into the request URL.
func (c *Client) resolve(resource string) (string, error) {
	if resource == "" {
		return "", fmt.Errorf("resource is required")
	}
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		return resource, nil
	}
	ref, err := url.Parse(resource)
	if err != nil {
		return "", fmt.Errorf("parse resource %q: %w", resource, err)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

// ClassifyStatus categorizes an HTTP status. Success and redirect statuses
// have no class.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// classifyTransportError separates attempt timeouts from other transport
// failures.
func classifyTransportError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}

// resourceLabel reduces a URL to its first path segment below the base URL
// (e.g. "pokemon") to keep metric cardinality bounded.
func resourceLabel(target string, base *url.URL) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	path := strings.TrimPrefix(u.Path, base.Path)
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[:i]
	}
	return path
}
