package middleware

import (
	"github.com/gin-gonic/gin"

	"meeting-rag-api/internal/infrastructure/persistence/redis"
)

// ClientIPKey keys the limiter by route and client IP.
func ClientIPKey(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return redis.BuildRateLimitKey(route, c.ClientIP())
}
