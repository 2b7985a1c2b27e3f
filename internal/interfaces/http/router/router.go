// Package router assembles the gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meeting-rag-api/internal/config"
	"meeting-rag-api/internal/interfaces/http/handler"
	"meeting-rag-api/internal/interfaces/http/middleware"
)

// Handlers are the endpoint handlers mounted by the router. A nil Meeting
// handler leaves the enqueue endpoint unmounted.
type Handlers struct {
	Health  *handler.HealthHandler
	Query   *handler.QueryHandler
	Meeting *handler.MeetingHandler
}

type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()
	return r
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

func (r *Router) setupRoutes() {
	if h := r.handlers.Health; h != nil {
		r.engine.GET("/health", h.Health)
		r.engine.GET("/ready", h.Ready)
		r.engine.GET("/live", h.Live)
	}

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	if h := r.handlers.Query; h != nil {
		rl := r.cfg.Security.RateLimit
		limit := middleware.RateLimit(middleware.RateLimitConfig{
			Enabled:  rl.Enabled,
			Requests: rl.Requests,
			Window:   rl.Window,
		}, r.limiter, middleware.ClientIPKey)

		r.engine.POST("/query", limit, h.Query)
		r.engine.GET("/query", limit, h.Query)
	}

	v1 := r.engine.Group("/v1")
	if h := r.handlers.Meeting; h != nil {
		meetings := v1.Group("/meetings")
		meetings.POST("/index", h.IndexMeeting)
	}
}
