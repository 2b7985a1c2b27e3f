package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/config"
	"meeting-rag-api/internal/interfaces/http/handler"
)

type countingLimiter struct {
	limit int
	seen  map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

type echoAnswerer struct{}

func (echoAnswerer) Answer(_ context.Context, q retrieval.Query) (*retrieval.Answer, error) {
	return &retrieval.Answer{Text: "echo: " + q.Text}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "meeting-rag-api"
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"
	cfg.Security.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	return cfg
}

func newTestRouter(limiter *countingLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(testConfig(), Handlers{
		Health: handler.NewHealthHandler("test", nil),
		Query:  handler.NewQueryHandler(echoAnswerer{}),
	}, limiter).Engine()
}

func do(e *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestRouter_QueryIsRateLimitedPerClient(t *testing.T) {
	limiter := &countingLimiter{limit: 2, seen: map[string]int{}}
	e := newTestRouter(limiter)

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = ip + ":12345"
		return do(e, req).Code
	}

	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1"))
	assert.Equal(t, http.StatusOK, post("10.0.0.2"))
}

func TestRouter_HealthIsNotRateLimited(t *testing.T) {
	limiter := &countingLimiter{limit: 0, seen: map[string]int{}}
	e := newTestRouter(limiter)

	w := do(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, limiter.seen)
}

func TestRouter_RequestIDAndCORS(t *testing.T) {
	e := newTestRouter(&countingLimiter{limit: 10, seen: map[string]int{}})

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := do(e, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = do(e, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	e := newTestRouter(&countingLimiter{limit: 10, seen: map[string]int{}})

	do(e, httptest.NewRequest(http.MethodGet, "/live", nil))
	w := do(e, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "meeting_rag_http_requests_total")
}

func TestRouter_EnqueueUnmountedWithoutHandler(t *testing.T) {
	e := newTestRouter(&countingLimiter{limit: 10, seen: map[string]int{}})

	w := do(e, httptest.NewRequest(http.MethodPost, "/v1/meetings/index", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
