package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"meeting-rag-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache is a JSON read-through cache.
type Cache struct {
	client *Client
	group  singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{
		client: client,
	}
}

// GetOrLoadSafe reads key, or runs loader once per key across concurrent callers and caches its JSON.
// loader gets a context detached from the caller's cancellation, since other callers may share its result.
// hit reports whether the value came from Redis. A Redis read error falls through to the loader.
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) (data []byte, hit bool, err error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, true, nil
	}
	if !IsNil(err) {
		span.RecordError(err)
		logger.Warn(ctx, "cache read failed, loading directly", "key", key, "error", err.Error())
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		loaded, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}

		b, err := json.Marshal(loaded)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}

		if err := c.client.rdb.Set(loadCtx, key, b, ttl).Err(); err != nil {
			logger.Warn(loadCtx, "cache write failed", "key", key, "error", err.Error())
		}
		return b, nil
	})

	select {
	case res := <-ch:
		span.SetAttributes(attribute.Bool("cache.shared", res.Shared))
		if res.Err != nil {
			span.RecordError(res.Err)
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return nil, false, ctx.Err()
	}
}
