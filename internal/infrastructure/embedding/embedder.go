package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/time/rate"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/config"
	"meeting-rag-api/pkg/metrics"
	"meeting-rag-api/pkg/retry"
)

const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
)

// Embedder adapts an eino embedder to retrieval.Embedder, adding
// client-side throttling, transient retries and metrics.
type Embedder struct {
	inner    embedding.Embedder
	provider string
	limiter  *rate.Limiter
	policy   retry.Policy
}

var _ retrieval.Embedder = (*Embedder)(nil)

// Option configures an Embedder.
type Option func(*Embedder)

// WithRateLimit caps calls per second; rps <= 0 disables throttling.
func WithRateLimit(rps float64) Option {
	return func(e *Embedder) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		burst := max(int(rps), 1)
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Embedder) { e.policy = p }
}

func NewEmbedder(inner embedding.Embedder, provider string, opts ...Option) *Embedder {
	e := &Embedder{
		inner:    inner,
		provider: provider,
		policy:   retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// New builds the configured provider's embedder.
func New(ctx context.Context, cfg *config.EmbeddingConfig) (*Embedder, error) {
	var (
		inner embedding.Embedder
		err   error
	)
	switch cfg.Provider {
	case "", ProviderOpenAI:
		inner, err = NewEinoEmbedder(ctx, cfg)
	case ProviderHTTP:
		inner, err = NewHTTPClient(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	return NewEmbedder(inner, provider,
		WithRateLimit(cfg.RequestsPerSecond),
		WithRetryPolicy(policy),
	), nil
}

// Embed returns the vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.EmbeddingCallDuration.WithLabelValues(e.provider).Observe(time.Since(start).Seconds())
		metrics.EmbeddingCallTotal.WithLabelValues(e.provider, status).Inc()
	}()

	vec, err := retry.Do(ctx, e.policy, func(ctx context.Context) ([]float32, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		out, err := e.inner.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("expected 1 embedding, got %d", len(out))
		}
		return toFloat32(out[0]), nil
	})
	if err != nil {
		status = "error"
		return nil, err
	}
	return vec, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
