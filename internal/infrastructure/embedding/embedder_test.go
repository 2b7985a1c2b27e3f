package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-rag-api/pkg/retry"
)

type scriptedEmbedder struct {
	mu    sync.Mutex
	calls int
	errs  []error
	vec   []float64
}

func (s *scriptedEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

var fastRetry = retry.Policy{MaxRetries: 2, Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 2}

func TestEmbedder_ConvertsToFloat32(t *testing.T) {
	inner := &scriptedEmbedder{vec: []float64{0.5, -0.25}}
	e := NewEmbedder(inner, "test", WithRetryPolicy(fastRetry))

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, vec)
}

func TestEmbedder_RetriesTransient(t *testing.T) {
	inner := &scriptedEmbedder{
		vec:  []float64{1},
		errs: []error{&retry.StatusError{Code: 429}, &retry.StatusError{Code: 500}},
	}
	e := NewEmbedder(inner, "test", WithRetryPolicy(fastRetry))

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 1)
	assert.Equal(t, 3, inner.calls)
}

func TestEmbedder_DoesNotRetryPermanent(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{errors.New("invalid api key")}}
	e := NewEmbedder(inner, "test", WithRetryPolicy(fastRetry))

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestEmbedder_RateLimitHonorsContext(t *testing.T) {
	inner := &scriptedEmbedder{vec: []float64{1}}
	e := NewEmbedder(inner, "test", WithRateLimit(0.001), WithRetryPolicy(retry.Policy{}))

	_, err := e.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Embed(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

type memoryStore struct {
	data map[string][]byte
}

func (m *memoryStore) GetOrLoadSafe(ctx context.Context, key string, _ time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, bool, error) {
	if b, ok := m.data[key]; ok {
		return b, true, nil
	}
	v, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	m.data[key] = b
	return b, false, nil
}

func TestCachedEmbedder(t *testing.T) {
	inner := &scriptedEmbedder{vec: []float64{0.25, 0.75}}
	store := &memoryStore{data: map[string][]byte{}}
	c := NewCachedEmbedder(NewEmbedder(inner, "test"), store, "text-embedding-3-small", time.Hour)

	first, err := c.Embed(context.Background(), "what did we decide?")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "what did we decide?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	_, err = c.Embed(context.Background(), "another question")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_LoaderError(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{errors.New("boom")}}
	store := &memoryStore{data: map[string][]byte{}}
	c := NewCachedEmbedder(NewEmbedder(inner, "test", WithRetryPolicy(retry.Policy{})), store, "m", time.Hour)

	_, err := c.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Empty(t, store.data)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("m1", "hello")
	assert.Equal(t, a, CacheKey("m1", "hello"))
	assert.NotEqual(t, a, CacheKey("m2", "hello"))
	assert.NotEqual(t, a, CacheKey("m1", "hello!"))
	assert.Len(t, a, len(cacheKeyPrefix)+64)
}
