package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/pkg/logger"
	"meeting-rag-api/pkg/metrics"
)

const cacheKeyPrefix = "emb:"

// Store is the slice of the Redis cache used for vectors.
type Store interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, bool, error)
}

// CachedEmbedder memoizes query embeddings keyed by model and text.
type CachedEmbedder struct {
	next  retrieval.Embedder
	store Store
	model string
	ttl   time.Duration
}

var _ retrieval.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(next retrieval.Embedder, store Store, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, store: store, model: model, ttl: ttl}
}

// CacheKey is the cache key for text embedded with model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	data, hit, err := c.store.GetOrLoadSafe(ctx, CacheKey(c.model, text), c.ttl, func(loadCtx context.Context) (any, error) {
		return c.next.Embed(loadCtx, text)
	})
	if err != nil {
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		logger.Warn(ctx, "discarding undecodable cached embedding", "error", err.Error())
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		return c.next.Embed(ctx, text)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("cached embedding is empty")
	}

	if hit {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}
	return vec, nil
}
