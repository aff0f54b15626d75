// Package testutil provides testing utilities for the catalog client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path prefix the mock serves resources under, matching
// the upstream's /api/v2 layout.
const APIPrefix = "/api/v2"

// MockResponse defines the behavior for a mock catalog endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatalog is a configurable mock catalog upstream for testing.
//
// Resources are registered by their path relative to APIPrefix without
// leading or trailing slashes, e.g. "pokemon/25" or "type".
// Unregistered resources answer 404.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCount     int
	conditionalCount int
	perResource      map[string]int
	lastHeader       http.Header
}

// NewMockCatalog creates and starts a new mock catalog server.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers:    make(map[string]http.HandlerFunc),
		perResource: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resource := ResourceOf(r.URL.Path)

		mock.mu.Lock()
		mock.requestCount++
		mock.perResource[resource]++
		mock.lastHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[resource]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not found."}`))
	}))

	return mock
}

// ResourceOf strips APIPrefix and surrounding slashes from a request path.
func ResourceOf(path string) string {
	return strings.Trim(strings.TrimPrefix(path, APIPrefix), "/")
}

// URL returns the mock server root URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// BaseURL returns the URL a client should use as its catalog base.
func (m *MockCatalog) BaseURL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.perResource = make(map[string]int)
	m.lastHeader = nil
}

// SetHandler sets a custom handler for a resource.
func (m *MockCatalog) SetHandler(resource string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[strings.Trim(resource, "/")] = handler
}

// SetResponse configures a fixed response for a resource.
func (m *MockCatalog) SetResponse(resource string, resp MockResponse) {
	m.SetHandler(resource, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON serves v encoded as JSON with a 200 status.
func (m *MockCatalog) SetJSON(resource string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic("testutil: marshal fixture: " + err.Error())
	}
	m.SetResponse(resource, NewHealthyResponse(string(body)))
}

// SetStatus makes a resource answer with a bare status code.
func (m *MockCatalog) SetStatus(resource string, status int) {
	m.SetResponse(resource, MockResponse{StatusCode: status})
}

// RequestCount returns the number of requests made to the server.
func (m *MockCatalog) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestsFor returns the number of requests made for one resource.
func (m *MockCatalog) RequestsFor(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perResource[strings.Trim(resource, "/")]
}

// ConditionalCount returns the number of conditional requests.
func (m *MockCatalog) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockCatalog) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type":  "application/json; charset=utf-8",
			"Cache-Control": "public, max-age=86400",
			"ETag":          `"test-etag-123"`,
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail":"Request was throttled."}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request carries the given ETag.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=1")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
