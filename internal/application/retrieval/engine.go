package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"meeting-rag-api/pkg/logger"
	"meeting-rag-api/pkg/metrics"
)

const (
	DefaultK           = 5
	DefaultMaxK        = 50
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.3

	// candidateFactor is how many candidates are fetched per requested hit.
	candidateFactor = 2
)

type EngineConfig struct {
	Collection string
	DefaultK   int
	MaxK       int
	MaxTokens  int
	// Temperature 0 is passed through; a negative value selects the default.
	Temperature float32
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.DefaultK <= 0 {
		c.DefaultK = DefaultK
	}
	if c.MaxK <= 0 {
		c.MaxK = DefaultMaxK
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature < 0 {
		c.Temperature = DefaultTemperature
	}
	return c
}

// Engine answers questions over indexed meetings.
type Engine struct {
	embedder  Embedder
	store     VectorStore
	generator Generator
	cfg       EngineConfig
}

func NewEngine(embedder Embedder, store VectorStore, generator Generator, cfg EngineConfig) *Engine {
	return &Engine{
		embedder:  embedder,
		store:     store,
		generator: generator,
		cfg:       cfg.withDefaults(),
	}
}

// Answer retrieves the closest passages for q and asks the generator to answer from them.
func (e *Engine) Answer(ctx context.Context, q Query) (ans *Answer, err error) {
	start := time.Now()
	status := "ok"
	defer func() {
		if err != nil {
			status = "error"
		}
		metrics.QueryTotal.WithLabelValues(status).Inc()
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	k := q.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}
	if k > e.cfg.MaxK {
		k = e.cfg.MaxK
	}
	meetingID := strings.TrimSpace(q.MeetingID)
	if meetingID != "" {
		ctx = logger.WithContext(ctx, logger.MeetingIDKey, meetingID)
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, wrap(ErrNoEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, wrap(ErrNoEmbedding, fmt.Errorf("empty vector"))
	}

	hits, err := e.search(ctx, vec, k, meetingID)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		status = "no_hits"
		return &Answer{Text: NoHitAnswer, Citations: []Citation{}}, nil
	}

	prompt := BuildPrompt(text, hits)
	out, err := e.generator.Generate(ctx, prompt, e.cfg.MaxTokens, e.cfg.Temperature)
	if err != nil {
		return nil, wrap(ErrGeneration, err)
	}

	logger.Debug(ctx, "query answered", "k", k, "hits", len(hits))
	return &Answer{
		Text:      out,
		Citations: BuildCitations(hits),
	}, nil
}

func (e *Engine) search(ctx context.Context, vec []float32, k int, meetingID string) ([]SearchHit, error) {
	exists, err := e.store.Exists(ctx, e.cfg.Collection)
	if err != nil {
		return nil, wrap(ErrSearch, err)
	}
	if !exists {
		logger.Warn(ctx, "vector collection missing, answering without context", "collection", e.cfg.Collection)
		return nil, nil
	}
	dim, err := e.store.Dimension(ctx, e.cfg.Collection)
	if err != nil {
		return nil, wrap(ErrSearch, err)
	}
	if dim != len(vec) {
		return nil, wrap(ErrSearch, fmt.Errorf("collection dimension %d, query vector %d", dim, len(vec)))
	}

	hits, err := e.store.Search(ctx, SearchRequest{
		Collection: e.cfg.Collection,
		Vector:     vec,
		TopK:       candidateFactor * k,
		MeetingID:  meetingID,
	})
	if err != nil {
		return nil, wrap(ErrSearch, err)
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
