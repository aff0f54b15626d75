package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(func(ctx context.Context, k int) (int, error) { return k, nil }, Config{})

	if bf.config.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", bf.config.MaxConcurrency)
	}
	if bf.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", bf.config.Timeout)
	}
}

func TestNewBatchFetcher_NilFetch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewBatchFetcher should panic with nil fetch func")
		}
	}()
	NewBatchFetcher[int, int](nil, DefaultConfig())
}

func TestFetchAll(t *testing.T) {
	var calls atomic.Int32
	bf := NewBatchFetcher(func(ctx context.Context, id int) (string, error) {
		calls.Add(1)
		return fmt.Sprintf("item-%d", id), nil
	}, DefaultConfig())

	got, err := bf.FetchAll(context.Background(), []int{3, 1, 2, 1, 3})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, id := range []int{1, 2, 3} {
		if got[id] != fmt.Sprintf("item-%d", id) {
			t.Errorf("got[%d] = %q", id, got[id])
		}
	}
	if calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want 3 (duplicates fetched once)", calls.Load())
	}
}

func TestFetchAll_Empty(t *testing.T) {
	bf := NewBatchFetcher(func(ctx context.Context, id int) (int, error) { return id, nil }, DefaultConfig())

	got, err := bf.FetchAll(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("FetchAll(nil) = %v, %v, want empty", got, err)
	}
}

func TestFetchAll_DropsFailures(t *testing.T) {
	bf := NewBatchFetcher(func(ctx context.Context, id int) (int, error) {
		if id%2 == 0 {
			return 0, errors.New("boom")
		}
		return id * 10, nil
	}, DefaultConfig())

	got, err := bf.FetchAll(context.Background(), []int{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 3 || got[5] != 50 {
		t.Errorf("FetchAll() = %v, want odd ids only", got)
	}
	if _, ok := got[2]; ok {
		t.Error("failed item should be omitted")
	}
}

func TestFetchAll_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	bf := NewBatchFetcher(func(ctx context.Context, id int) (int, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return id, nil
	}, Config{MaxConcurrency: 3})

	keys := make([]int, 20)
	for i := range keys {
		keys[i] = i
	}

	got, err := bf.FetchAll(context.Background(), keys)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 20 {
		t.Errorf("len = %d, want 20", len(got))
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
}

func TestFetchAll_PerItemTimeout(t *testing.T) {
	bf := NewBatchFetcher(func(ctx context.Context, id int) (int, error) {
		if id == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return id, nil
	}, Config{MaxConcurrency: 2, Timeout: 20 * time.Millisecond})

	got, err := bf.FetchAll(context.Background(), []int{1, 2})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 1 || got[2] != 2 {
		t.Errorf("FetchAll() = %v, want only id 2", got)
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bf := NewBatchFetcher(func(ctx context.Context, id int) (int, error) { return id, nil }, Config{MaxConcurrency: 2})

	got, err := bf.FetchAll(ctx, []int{1, 2, 3})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAll() error = %v, want context.Canceled", err)
	}
	if len(got) != 0 {
		t.Errorf("FetchAll() = %v, want no results", got)
	}
}
