//go:build integration

package dex

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/pokedex-client/internal/testutil"
)

// setupRedis starts a Redis container and returns its address.
func setupRedis(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port()
}

func newRedisService(t *testing.T, mock *testutil.MockCatalog, addr string) *Service {
	t.Helper()

	cfg := DefaultConfig("dex-test/1.0")
	cfg.Client.BaseURL = mock.BaseURL()
	cfg.Client.Retry.MaxAttempts = 1
	cfg.RedisAddr = addr

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	return svc
}

// TestRedisResponseCache_SharedAcrossProcesses checks that a second service
// with an empty in-process cache is served from Redis.
func TestRedisResponseCache_SharedAcrossProcesses(t *testing.T) {
	addr := setupRedis(t)

	mock := testutil.NewMockCatalog()
	defer mock.Close()

	body, _ := json.Marshal(testutil.TypeListFixture("fire", "water"))
	mock.SetResponse("type", testutil.NewHealthyResponse(string(body)))

	ctx := context.Background()

	first := newRedisService(t, mock, addr)
	if _, err := first.GetCategoryList(ctx); err != nil {
		t.Fatalf("first GetCategoryList() error = %v", err)
	}
	if n := mock.RequestsFor("type"); n != 1 {
		t.Fatalf("upstream requests = %d, want 1", n)
	}

	second := newRedisService(t, mock, addr)
	got, err := second.GetCategoryList(ctx)
	if err != nil {
		t.Fatalf("second GetCategoryList() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetCategoryList() = %v", got)
	}
	if n := mock.RequestsFor("type"); n != 1 {
		t.Errorf("upstream requests = %d, want 1 (served from Redis)", n)
	}
}

// TestRedisResponseCache_Revalidates checks that a stale Redis entry is
// refreshed with a conditional request answered by 304.
func TestRedisResponseCache_Revalidates(t *testing.T) {
	addr := setupRedis(t)

	mock := testutil.NewMockCatalog()
	defer mock.Close()

	body, _ := json.Marshal(testutil.TypeMembersFixture("fire", testutil.NamedID{ID: 4, Name: "charmander"}))
	mock.SetHandler("type/fire", testutil.NewConditionalHandler(`"fire-v1"`, string(body)))

	ctx := context.Background()

	first := newRedisService(t, mock, addr)
	if _, err := first.LookupByType(ctx, "fire"); err != nil {
		t.Fatalf("first LookupByType() error = %v", err)
	}

	// max-age=1
	time.Sleep(1100 * time.Millisecond)

	second := newRedisService(t, mock, addr)
	refs, err := second.LookupByType(ctx, "fire")
	if err != nil {
		t.Fatalf("second LookupByType() error = %v", err)
	}
	if len(refs) != 1 || refs[0].Name != "charmander" {
		t.Errorf("LookupByType() = %v", refs)
	}

	if n := mock.ConditionalCount(); n != 1 {
		t.Errorf("conditional requests = %d, want 1", n)
	}
	if got := mock.LastRequestHeader().Get("If-None-Match"); got != `"fire-v1"` {
		t.Errorf("If-None-Match = %q", got)
	}
}
