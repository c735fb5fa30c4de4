package embed

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/go-tutor/src/cache"
)

// CachedEmbedder memoizes embeddings by text hash. Re-ingesting a document
// or repeating a query hits the cache instead of the model server.
type CachedEmbedder struct {
	Embedder Embedder
	Cache    *cache.LRU
}

// NewCachedEmbedder wraps inner with an LRU of the given size and TTL.
func NewCachedEmbedder(inner Embedder, size int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{Embedder: inner, Cache: cache.NewLRU(size, ttl)}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.HashKey(text)
	if v, ok := c.Cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.Cache.Set(key, vec)
	return vec, nil
}
