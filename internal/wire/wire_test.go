package wire

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/config"
	"meeting-rag-api/internal/infrastructure/embedding"
	"meeting-rag-api/internal/infrastructure/llm"
	"meeting-rag-api/internal/infrastructure/persistence/redis"
)

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Vector:    config.VectorConfig{Milvus: config.MilvusConfig{Collection: "meeting_documents"}},
		Embedding: config.EmbeddingConfig{Model: "text-embedding-3-small", Dimension: 2},
		LLM: config.LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]config.ProviderConfig{
				"openai": {Kind: llm.KindResponses, APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1/", Model: "gpt-4o-mini"},
			},
		},
	}
}

func TestProvideQueryEmbedder(t *testing.T) {
	cfg := testConfig()
	base := constEmbedder{}

	assert.Equal(t, base, ProvideQueryEmbedder(cfg, base, nil))
	assert.Equal(t, base, ProvideQueryEmbedder(cfg, base, redis.NewCache(nil)), "zero TTL disables the cache")

	cfg.Embedding.CacheTTL = time.Hour
	_, ok := ProvideQueryEmbedder(cfg, base, redis.NewCache(nil)).(*embedding.CachedEmbedder)
	assert.True(t, ok)
}

func TestProvideEngine(t *testing.T) {
	cfg := testConfig()
	engine, err := ProvideEngine(context.Background(), cfg, constEmbedder{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, engine)

	cfg.LLM.DefaultProvider = "missing"
	_, err = ProvideEngine(context.Background(), cfg, constEmbedder{}, nil)
	assert.Error(t, err)
}

func TestProvideIndexer(t *testing.T) {
	var store retrieval.VectorStore
	indexer := ProvideIndexer(testConfig(), constEmbedder{}, store, retrieval.NewIndexManager(store))
	assert.NotNil(t, indexer)
}

func TestHostnameConsumerName(t *testing.T) {
	name := hostnameConsumerName()
	assert.True(t, strings.HasSuffix(name, fmt.Sprintf("-%d", os.Getpid())))
}

func TestCleanupsRunInReverse(t *testing.T) {
	var order []int
	var cs cleanups
	cs.add(func() { order = append(order, 1) })
	cs.add(func() { order = append(order, 2) })
	cs.run()
	assert.Equal(t, []int{2, 1}, order)
}
