package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, err := e.Embed(ctx, "smoking raises risk")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 16 || e.Dimensions() != 16 {
		t.Fatalf("len=%d dims=%d", len(a), e.Dimensions())
	}
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("embedding not unit length: %v", sum)
	}

	b, _ := e.Embed(ctx, "smoking raises risk")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding not deterministic")
		}
	}

	batch, err := e.EmbedBatch(ctx, []string{"smoking raises risk", "other"})
	if err != nil || len(batch) != 2 {
		t.Fatalf("EmbedBatch: %v, %d", err, len(batch))
	}
	if batch[0][0] != a[0] {
		t.Error("batch and single embeddings differ")
	}

	if NewMockEmbedder(0).Dimensions() != 384 {
		t.Error("default dimensions should be 384")
	}
}

func TestMockEmbedder_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(4).Embed(ctx, "q"); err == nil {
		t.Error("expected error for canceled context")
	}
}
