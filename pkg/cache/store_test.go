package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(opts ...Option) *Store {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewStore(opts...)
}

func TestGetOrCompute_HitSkipsFactory(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	calls := 0

	factory := func(context.Context) (string, error) {
		calls++
		return "overgrow", nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetOrCompute(ctx, store, "dex:ability:overgrow", time.Hour, factory)
		if err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
		if got != "overgrow" {
			t.Errorf("GetOrCompute() = %q, want %q", got, "overgrow")
		}
	}

	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
}

func TestGetOrCompute_Coalescing(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	const callers = 50
	var calls atomic.Int32
	release := make(chan struct{})

	factory := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = GetOrCompute(ctx, store, "dex:entity:25", time.Hour, factory)
		}(i)
	}

	// Give every goroutine a chance to attach before the factory returns.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
		}
		if results[i] != 42 {
			t.Errorf("caller %d got %d, want 42", i, results[i])
		}
	}
}

func TestGetOrCompute_UnrelatedKeysIndependent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	blocked := make(chan struct{})
	defer close(blocked)

	// A slow computation on one key must not hold up another key.
	go func() {
		_, _ = GetOrCompute(ctx, store, "dex:entity:slow", time.Hour, func(context.Context) (int, error) {
			<-blocked
			return 1, nil
		})
	}()

	done := make(chan int, 1)
	go func() {
		v, _ := GetOrCompute(ctx, store, "dex:entity:fast", time.Hour, func(context.Context) (int, error) {
			return 2, nil
		})
		done <- v
	}()

	select {
	case v := <-done:
		if v != 2 {
			t.Errorf("fast key = %d, want 2", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated key was serialized behind an in-flight computation")
	}
}

func TestGetOrCompute_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(WithClock(clock.Now))
	ctx := context.Background()

	const ttl = 10 * time.Minute
	calls := 0
	factory := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	if v, _ := GetOrCompute(ctx, store, "dex:count", ttl, factory); v != 1 {
		t.Fatalf("first value = %d, want 1", v)
	}

	clock.Advance(ttl - time.Second)
	if v, _ := GetOrCompute(ctx, store, "dex:count", ttl, factory); v != 1 {
		t.Errorf("value before expiry = %d, want cached 1", v)
	}
	if calls != 1 {
		t.Errorf("factory calls before expiry = %d, want 1", calls)
	}

	clock.Advance(2 * time.Second)
	if v, _ := GetOrCompute(ctx, store, "dex:count", ttl, factory); v != 2 {
		t.Errorf("value after expiry = %d, want fresh 2", v)
	}
	if calls != 2 {
		t.Errorf("factory calls after expiry = %d, want 2", calls)
	}
}

func TestGetOrCompute_FailureNotCached(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	errUpstream := errors.New("upstream unavailable")

	calls := 0
	factory := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errUpstream
		}
		return "ok", nil
	}

	if _, err := GetOrCompute(ctx, store, "dex:species:1", time.Hour, factory); !errors.Is(err, errUpstream) {
		t.Fatalf("first call error = %v, want %v", err, errUpstream)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d entries after failure, want 0", store.Len())
	}

	got, err := GetOrCompute(ctx, store, "dex:species:1", time.Hour, factory)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("second call = %q after %d calls, want %q after 2", got, calls, "ok")
	}
}

func TestGetOrCompute_FailureSharedByWaiters(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	errUpstream := errors.New("boom")
	release := make(chan struct{})

	var calls atomic.Int32
	factory := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 0, errUpstream
	}

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = GetOrCompute(ctx, store, "dex:move:tackle", time.Hour, factory)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
	for i, err := range errs {
		if !errors.Is(err, errUpstream) {
			t.Errorf("caller %d error = %v, want %v", i, err, errUpstream)
		}
	}
}

func TestGetOrCompute_CancelDetachesWaiterOnly(t *testing.T) {
	store := newTestStore()
	release := make(chan struct{})
	factoryCtxErr := make(chan error, 1)

	factory := func(ctx context.Context) (string, error) {
		<-release
		factoryCtxErr <- ctx.Err()
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := GetOrCompute(ctx, store, "dex:lineage:1", time.Hour, factory)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled waiter error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	close(release)
	if err := <-factoryCtxErr; err != nil {
		t.Errorf("factory context was cancelled: %v", err)
	}

	// The computation completed and populated the cache.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, ok := store.Get("dex:lineage:1"); ok {
			if v != "done" {
				t.Errorf("cached value = %v, want done", v)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("shared computation did not populate the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetOrCompute_TypeMismatch(t *testing.T) {
	store := newTestStore()
	store.Set("dex:entity:1", "a string", time.Hour)

	_, err := GetOrCompute(context.Background(), store, "dex:entity:1", time.Hour, func(context.Context) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("error = %v, want ErrTypeMismatch", err)
	}
}

func TestGetOrComputeTTL_FactoryPicksTTL(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(WithClock(clock.Now))
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(ttl time.Duration) func(context.Context) (int, time.Duration, error) {
		return func(context.Context) (int, time.Duration, error) {
			return int(calls.Add(1)), ttl, nil
		}
	}

	// short ttl
	if v, _ := GetOrComputeTTL(ctx, store, "short", compute(time.Minute)); v != 1 {
		t.Fatalf("first value = %d, want 1", v)
	}
	if v, _ := GetOrComputeTTL(ctx, store, "short", compute(time.Minute)); v != 1 {
		t.Errorf("value within ttl = %d, want cached 1", v)
	}
	clock.Advance(2 * time.Minute)
	if v, _ := GetOrComputeTTL(ctx, store, "short", compute(time.Minute)); v != 2 {
		t.Errorf("value after ttl = %d, want recomputed 2", v)
	}

	// zero ttl returns the value without storing it
	if v, err := GetOrComputeTTL(ctx, store, "uncached", compute(0)); err != nil || v != 3 {
		t.Fatalf("GetOrComputeTTL() = %d, %v, want 3", v, err)
	}
	if _, ok := store.Get("uncached"); ok {
		t.Error("zero ttl value should not be stored")
	}
}

func TestStore_SetReplacesAndPurge(t *testing.T) {
	store := newTestStore()

	store.Set("k", 1, time.Hour)
	store.Set("k", 2, time.Hour)
	if v, ok := store.Get("k"); !ok || v != 2 {
		t.Errorf("Get() = %v, %v, want 2, true", v, ok)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	store.Set("zero-ttl", 1, 0)
	if _, ok := store.Get("zero-ttl"); ok {
		t.Error("non-positive ttl should not store an entry")
	}

	store.Set("a", 1, time.Hour)
	store.Set("b", 2, time.Hour)
	store.Purge()
	if store.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", store.Len())
	}
}
