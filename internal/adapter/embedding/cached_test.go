package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"jomra/internal/domain"
)

// countingEmbedder tracks how many times Encode is called.
type countingEmbedder struct {
	calls atomic.Int64
	dims  int
	err   error
}

func (e *countingEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float32, e.dims)
	for j := range v {
		v[j] = float32(len(text)+j) / 100.0
	}
	return v, nil
}

func (e *countingEmbedder) Dimensions() int { return e.dims }
func (e *countingEmbedder) Name() string    { return "counting" }

func TestCachedEmbedderHitMiss(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	r1, err := cached.Encode(ctx, "hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r2, err := cached.Encode(ctx, "hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (second call cached)", inner.calls.Load())
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Errorf("r1[%d]=%f != r2[%d]=%f", i, r1[i], i, r2[i])
		}
	}
}

func TestCachedEmbedderErrorNotCached(t *testing.T) {
	inner := &countingEmbedder{dims: 3, err: errors.New("down")}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	if _, err := cached.Encode(ctx, "x"); err == nil {
		t.Fatal("expected error")
	}
	cached.Encode(ctx, "x")
	if inner.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (errors are not cached)", inner.calls.Load())
	}
}

func TestCachedEmbedderLRUPromotion(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	cached := NewCachedEmbedder(inner, 3).(*CachedEmbedder)
	ctx := context.Background()

	cached.Encode(ctx, "a")
	cached.Encode(ctx, "b")
	cached.Encode(ctx, "c")
	// Promote "a": order is now [b, c, a].
	cached.Encode(ctx, "a")
	// "d" evicts "b".
	cached.Encode(ctx, "d")
	before := inner.calls.Load()

	cached.Encode(ctx, "a")
	if inner.calls.Load() != before {
		t.Error("'a' should still be cached after promotion")
	}
	cached.Encode(ctx, "b")
	if inner.calls.Load() != before+1 {
		t.Error("'b' should have been evicted")
	}
	if cached.Len() != 3 {
		t.Errorf("Len = %d, want 3", cached.Len())
	}

	cached.Purge()
	if cached.Len() != 0 {
		t.Errorf("Len after Purge = %d", cached.Len())
	}
}

func TestCachedEmbedderConcurrency(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			text := fmt.Sprintf("concurrent-%d", n%10)
			for j := 0; j < 20; j++ {
				v, err := cached.Encode(ctx, text)
				if err != nil || len(v) != 3 {
					t.Errorf("Encode = %v, %v", v, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if calls := inner.calls.Load(); calls >= 1000 {
		t.Errorf("expected cache hits to reduce calls, got %d", calls)
	}
}

func TestNewCachedEmbedderZeroSize(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	if got := NewCachedEmbedder(inner, 0); got != domain.Embedder(inner) {
		t.Error("expected inner to be returned directly when maxSize=0")
	}
}

func TestCachedEmbedderDelegation(t *testing.T) {
	cached := NewCachedEmbedder(&countingEmbedder{dims: 384}, 10)
	if cached.Dimensions() != 384 {
		t.Errorf("Dimensions() = %d, want 384", cached.Dimensions())
	}
	if cached.Name() != "counting" {
		t.Errorf("Name() = %q", cached.Name())
	}
}
