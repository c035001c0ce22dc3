package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestEmbeddingCache_GetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a")
	c.Set("c", []float32{3}) // evicts b, not a
	if _, ok := c.Get("a"); !ok {
		t.Error("recently read entry was evicted")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
}

func TestEmbeddingCache_Concurrent(t *testing.T) {
	c := NewEmbeddingCache(16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := string(rune('a' + (i+j)%26))
				c.Set(key, []float32{float32(j)})
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}

// countingEmbedder counts calls to the wrapped mock.
type countingEmbedder struct {
	*MockEmbedder
	embeds  int
	batches int
	err     error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embeds++
	if c.err != nil {
		return nil, c.err
	}
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches++
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	c := NewCachedEmbedder(inner, 10, counter)
	ctx := context.Background()

	first, err := c.Embed(ctx, "masks")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Embed(ctx, "masks")
	if err != nil {
		t.Fatal(err)
	}
	if inner.embeds != 1 {
		t.Errorf("inner Embed called %d times, want 1", inner.embeds)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached vector differs")
		}
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}

	if _, err := c.EmbedBatch(ctx, []string{"masks", "vaccines"}); err != nil {
		t.Fatal(err)
	}
	if inner.batches != 1 || c.cache.Len() != 1 {
		t.Errorf("batch should bypass the cache: batches=%d cached=%d", inner.batches, c.cache.Len())
	}
	if c.Dimensions() != 4 {
		t.Errorf("Dimensions = %d", c.Dimensions())
	}
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	boom := errors.New("boom")
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4), err: boom}
	c := NewCachedEmbedder(inner, 10, nil)
	for i := 0; i < 2; i++ {
		if _, err := c.Embed(context.Background(), "q"); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
	if inner.embeds != 2 {
		t.Errorf("failed embeddings were cached")
	}
}
