package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"meeting-rag-api/pkg/logger"
)

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// RateLimiter is satisfied by the Redis sliding-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// KeyFunc derives the limiter key for a request.
type KeyFunc func(c *gin.Context) string

// RateLimit rejects requests over cfg.Requests per cfg.Window with 429.
// Limiter failures let the request through.
func RateLimit(cfg RateLimitConfig, limiter RateLimiter, key KeyFunc) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Requests <= 0 {
		cfg.Requests = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), key(c), cfg.Requests, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", formatSeconds(cfg.Window))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":    "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}
		c.Next()
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.Itoa(max(int(d.Seconds()), 1))
}
