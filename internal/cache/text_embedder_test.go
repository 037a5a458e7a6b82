package cache

import (
	"context"
	"testing"
)

type countingEmbedder struct {
	calls int
	vec   []float32
}

func (c *countingEmbedder) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = c.vec
	}
	return out, nil
}

func TestCachingTextEmbedder_CachesRepeatedSingleQuery(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	c := NewCachingTextEmbedder(inner)
	defer c.Stop()

	ctx := context.Background()
	if _, err := c.EmbedText(ctx, []string{"Mumbai floods"}); err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if _, err := c.EmbedText(ctx, []string{"Mumbai floods"}); err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner.calls = %d, want 1 (second call should hit cache)", inner.calls)
	}
}

func TestCachingTextEmbedder_BypassesCacheForBatches(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	c := NewCachingTextEmbedder(inner)
	defer c.Stop()

	ctx := context.Background()
	if _, err := c.EmbedText(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if _, err := c.EmbedText(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner.calls = %d, want 2 (batches are never cached)", inner.calls)
	}
}
