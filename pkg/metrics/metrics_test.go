package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	// registers the always-present metrics
	_ "github.com/Sternrassler/pokedex-client/pkg/cache"
	_ "github.com/Sternrassler/pokedex-client/pkg/httpcache"
	_ "github.com/Sternrassler/pokedex-client/pkg/pagination"
	_ "github.com/Sternrassler/pokedex-client/pkg/ratelimit"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler(t *testing.T) {
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	text := string(body)
	for _, name := range []string{
		"dex_cache_entries",
		"dex_http_cache_hits_total",
		"dex_http_304_responses_total",
		"dex_pagination_batch_duration_seconds",
		"dex_rate_limit_waits_total",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}
