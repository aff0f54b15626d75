package dex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/pokedex-client/internal/testutil"
	"github.com/Sternrassler/pokedex-client/pkg/aggregate"
)

var roster = []testutil.NamedID{
	{ID: 1, Name: "bulbasaur"},
	{ID: 2, Name: "ivysaur"},
	{ID: 3, Name: "venusaur"},
	{ID: 4, Name: "charmander"},
	{ID: 5, Name: "charmeleon"},
	{ID: 6, Name: "charizard"},
	{ID: 25, Name: "pikachu"},
}

func newTestService(t *testing.T, mock *testutil.MockCatalog) *Service {
	t.Helper()

	cfg := DefaultConfig("dex-test/1.0")
	cfg.Client.BaseURL = mock.BaseURL()
	cfg.Client.Retry.MaxAttempts = 1
	cfg.PageSize = 3

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func seed(mock *testutil.MockCatalog) {
	mock.SetHandler("pokemon", testutil.ListingHandler(roster))
	for _, r := range roster {
		mock.RegisterPokemon(testutil.PokemonFixture{
			ID:    r.ID,
			Name:  r.Name,
			Types: []string{"normal"},
		})
	}
}

func TestNew_InvalidClientConfig(t *testing.T) {
	if _, err := New(DefaultConfig("")); err == nil {
		t.Error("New() without user agent should fail")
	}

	cfg := DefaultConfig("dex-test/1.0")
	cfg.Policy.Detail = time.Second
	if _, err := New(cfg); err == nil {
		t.Error("New() with inverted policy should fail")
	}
}

func TestLookupByName(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	mock.RegisterPokemon(testutil.PokemonFixture{
		ID:        4,
		Name:      "charmander",
		Types:     []string{"fire"},
		Abilities: []string{"blaze"},
		Moves:     []testutil.MoveFixture{{Name: "ember", Method: "level-up", Level: 4, VersionGroup: "red-blue"}},
		Artwork:   "https://img.example/4.png",
	})
	mock.SetJSON("ability/blaze", testutil.AbilityFixture("blaze", "Powers up fire moves.", "Long effect."))
	mock.SetJSON("move/ember", testutil.MoveFixtureBody("ember", "fire"))
	mock.SetJSON("pokemon-species/4", testutil.SpeciesFixture(4, "charmander", 2,
		testutil.FlavorFixture{Language: "en", Version: "red", Text: "Obviously prefers\nhot places."}))
	mock.SetJSON("evolution-chain/2", testutil.ChainFixture(2, testutil.ChainNode{
		ID: 4, Name: "charmander",
		EvolvesTo: []testutil.ChainNode{{ID: 5, Name: "charmeleon",
			EvolvesTo: []testutil.ChainNode{{ID: 6, Name: "charizard"}}}},
	}))

	svc := newTestService(t, mock)

	c, err := svc.LookupByName(context.Background(), "Charmander")
	if err != nil {
		t.Fatalf("LookupByName() error = %v", err)
	}

	if c.ID != 4 || c.Variant != aggregate.VariantFull {
		t.Errorf("composite = %d/%s", c.ID, c.Variant)
	}
	if c.ImageURL != "https://img.example/4.png" {
		t.Errorf("ImageURL = %q", c.ImageURL)
	}
	if len(c.Moves) != 1 || c.Moves[0].Type != "fire" {
		t.Errorf("Moves = %+v, want ember typed fire", c.Moves)
	}
	if len(c.FlavorTexts) != 1 || c.FlavorTexts[0].Text != "Obviously prefers hot places." {
		t.Errorf("FlavorTexts = %+v", c.FlavorTexts)
	}
	var lineage []string
	for _, s := range c.Evolution {
		lineage = append(lineage, s.Name)
	}
	if !reflect.DeepEqual(lineage, []string{"charmander", "charmeleon", "charizard"}) {
		t.Errorf("Evolution = %v", lineage)
	}

	before := mock.RequestCount()
	if _, err := svc.LookupByName(context.Background(), "4"); err != nil {
		t.Fatalf("LookupByName() by id error = %v", err)
	}
	// base record by id is new; the composite itself comes from cache
	if got := mock.RequestCount() - before; got != 1 {
		t.Errorf("second lookup made %d requests, want 1", got)
	}
}

func TestLookupByName_NotFound(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	svc := newTestService(t, mock)

	_, err := svc.LookupByName(context.Background(), "missingno")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestLookupByType(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetJSON("type/fire", testutil.TypeMembersFixture("fire",
		testutil.NamedID{ID: 6, Name: "charizard"},
		testutil.NamedID{ID: 4, Name: "charmander"},
		testutil.NamedID{ID: 5, Name: "charmeleon"},
	))

	svc := newTestService(t, mock)

	refs, err := svc.LookupByType(context.Background(), "fire")
	if err != nil {
		t.Fatalf("LookupByType() error = %v", err)
	}

	var names []string
	for _, r := range refs {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, []string{"charmander", "charmeleon", "charizard"}) {
		t.Errorf("names = %v", names)
	}

	if _, err := svc.LookupByType(context.Background(), "cosmic"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown type error = %v, want ErrNotFound", err)
	}
}

func TestGetPage(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	seed(mock)

	svc := newTestService(t, mock)
	ctx := context.Background()

	total, err := svc.GetTotalCount(ctx)
	if err != nil || total != len(roster) {
		t.Fatalf("GetTotalCount() = %d, %v", total, err)
	}

	page, err := svc.GetPage(ctx, 2, 0)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if page.Number != 2 || page.Size != 3 || page.TotalPages != 3 {
		t.Errorf("page meta = %+v", page)
	}

	var ids []int
	for _, c := range page.Items {
		ids = append(ids, c.ID)
		if c.Variant != aggregate.VariantLite {
			t.Errorf("item %d variant = %s, want lite", c.ID, c.Variant)
		}
	}
	if !reflect.DeepEqual(ids, []int{4, 5, 6}) {
		t.Errorf("ids = %v, want [4 5 6]", ids)
	}

	last, err := svc.GetPage(ctx, 50, 0)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if last.Number != 3 || len(last.Items) != 1 || last.Items[0].Name != "pikachu" {
		t.Errorf("last page = %+v", last)
	}
}

func TestGetPageByCategory(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	seed(mock)
	mock.SetJSON("type/grass", testutil.TypeMembersFixture("grass",
		testutil.NamedID{ID: 3, Name: "venusaur"},
		testutil.NamedID{ID: 1, Name: "bulbasaur"},
		testutil.NamedID{ID: 2, Name: "ivysaur"},
		testutil.NamedID{ID: 999, Name: "ghost-entry"},
	))

	svc := newTestService(t, mock)

	page, err := svc.GetPageByCategory(context.Background(), "grass", 1, 10)
	if err != nil {
		t.Fatalf("GetPageByCategory() error = %v", err)
	}
	if page.TotalCount != 4 {
		t.Errorf("TotalCount = %d, want 4", page.TotalCount)
	}

	var ids []int
	for _, c := range page.Items {
		ids = append(ids, c.ID)
	}
	// 999 is listed but absent upstream
	if !reflect.DeepEqual(ids, []int{1, 2, 3}) {
		t.Errorf("ids = %v, want [1 2 3]", ids)
	}
}

func TestGetCategoryList(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetJSON("type", testutil.TypeListFixture("water", "unknown", "fire", "shadow", "grass", "stellar"))

	svc := newTestService(t, mock)

	got, err := svc.GetCategoryList(context.Background())
	if err != nil {
		t.Fatalf("GetCategoryList() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"fire", "grass", "water"}) {
		t.Errorf("GetCategoryList() = %v", got)
	}
}

func TestSuggestNames(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	seed(mock)

	svc := newTestService(t, mock)
	ctx := context.Background()

	tests := []struct {
		prefix string
		limit  int
		want   []string
	}{
		{"char", 10, []string{"charizard", "charmander", "charmeleon"}},
		{"CHAR", 2, []string{"charizard", "charmander"}},
		{"  pik", 0, []string{"pikachu"}},
		{"zzz", 5, []string{}},
		{"", 5, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := svc.SuggestNames(ctx, tt.prefix, tt.limit)
			if err != nil {
				t.Fatalf("SuggestNames() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SuggestNames(%q, %d) = %v, want %v", tt.prefix, tt.limit, got, tt.want)
			}
		})
	}

	// the name index is fetched once
	if n := mock.RequestsFor("pokemon"); n != 2 {
		t.Errorf("listing requests = %d, want 2 (count + index)", n)
	}
}

func TestPingAndClose_WithoutRedis(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	svc := newTestService(t, mock)
	if err := svc.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestThrottledUpstreamPausesLaterRequests(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	mock.SetResponse("pokemon/7", testutil.NewRateLimitResponse("1"))
	mock.SetJSON("type", testutil.TypeListFixture("fire"))

	svc := newTestService(t, mock)
	ctx := context.Background()

	if _, err := svc.GetComposite(ctx, "7", aggregate.VariantLite); err == nil {
		t.Fatal("GetComposite() on a throttled resource should fail")
	}

	start := time.Now()
	if _, err := svc.GetCategoryList(ctx); err != nil {
		t.Fatalf("GetCategoryList() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 800*time.Millisecond {
		t.Errorf("request after 429 took %v, want it to wait out Retry-After", elapsed)
	}
}

func TestThrottledWithoutRetryAfterKeepsBackoffSchedule(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	body, err := json.Marshal(testutil.PokemonFixture{ID: 9, Name: "blastoise", Types: []string{"water"}}.Body())
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu       sync.Mutex
		arrivals []time.Time
	)
	mock.SetHandler("pokemon/9", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		first := len(arrivals) == 1
		mu.Unlock()

		if first {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	cfg := DefaultConfig("dex-test/1.0")
	cfg.Client.BaseURL = mock.BaseURL()
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.Close()

	c, err := svc.GetComposite(context.Background(), "9", aggregate.VariantLite)
	if err != nil {
		t.Fatalf("GetComposite() error = %v", err)
	}
	if c.ID != 9 {
		t.Errorf("ID = %d, want 9", c.ID)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(arrivals) != 2 {
		t.Fatalf("requests = %d, want 2", len(arrivals))
	}
	// first backoff is 250ms plus jitter in [50ms, 200ms)
	gap := arrivals[1].Sub(arrivals[0])
	if gap < 250*time.Millisecond || gap >= 700*time.Millisecond {
		t.Errorf("retry gap = %v, want the executor's first backoff", gap)
	}
}

func TestPurgeCache(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	seed(mock)

	svc := newTestService(t, mock)
	ctx := context.Background()

	if _, err := svc.GetComposite(ctx, "1", aggregate.VariantLite); err != nil {
		t.Fatalf("GetComposite() error = %v", err)
	}
	held := svc.CacheLen()
	if held == 0 {
		t.Fatal("CacheLen() = 0 after a lookup")
	}

	if got := svc.PurgeCache(); got != held {
		t.Errorf("PurgeCache() = %d, want %d", got, held)
	}
	if svc.CacheLen() != 0 {
		t.Errorf("CacheLen() after purge = %d", svc.CacheLen())
	}

	before := mock.RequestsFor("pokemon/1")
	svc.GetComposite(ctx, "1", aggregate.VariantLite)
	if mock.RequestsFor("pokemon/1") != before+1 {
		t.Error("lookup after purge should reach the upstream")
	}
}
