package cache

import (
	"context"

	"github.com/chronofact/chronofact/internal/embedder"
)

// CachingTextEmbedder wraps an embedder.TextEmbedder with the query→vector
// cache above, so repeated requests for an identical refined query (from C3's
// retriever.go, and from C6's reinforcement enqueue in pipeline.go, which
// embeds the same refined text) skip the Vertex AI round trip entirely. Only
// single-text calls are cached — EmbedTextsForIngestion-style batches always
// go straight to the inner embedder, since ingestion text is rarely repeated
// and batch-partial cache hits would complicate the interface for no gain.
type CachingTextEmbedder struct {
	inner embedder.TextEmbedder
	cache *EmbeddingCache
}

// NewCachingTextEmbedder wraps inner with a cache using DefaultEmbeddingTTL.
func NewCachingTextEmbedder(inner embedder.TextEmbedder) *CachingTextEmbedder {
	return &CachingTextEmbedder{inner: inner, cache: NewEmbeddingCache(DefaultEmbeddingTTL())}
}

func (c *CachingTextEmbedder) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.inner.EmbedText(ctx, texts)
	}
	key := EmbeddingQueryHash(texts[0])
	if vec, ok := c.cache.Get(key); ok {
		return [][]float32{vec}, nil
	}
	vecs, err := c.inner.EmbedText(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 1 {
		c.cache.Set(key, vecs[0])
	}
	return vecs, nil
}

// Stop releases the cache's background cleanup goroutine.
func (c *CachingTextEmbedder) Stop() { c.cache.Stop() }
