// Package wire assembles the service graph for each binary.
package wire

import (
	"context"
	"fmt"
	"os"

	"meeting-rag-api/internal/application/ingestion"
	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/config"
	"meeting-rag-api/internal/infrastructure/embedding"
	"meeting-rag-api/internal/infrastructure/llm"
	"meeting-rag-api/internal/infrastructure/messaging"
	"meeting-rag-api/internal/infrastructure/objectstore"
	"meeting-rag-api/internal/infrastructure/persistence/milvus"
	"meeting-rag-api/internal/infrastructure/persistence/redis"
	"meeting-rag-api/internal/interfaces/http/handler"
	"meeting-rag-api/internal/interfaces/http/router"
)

// cleanups runs registered closers in reverse order.
type cleanups []func()

func (c *cleanups) add(f func()) { *c = append(*c, f) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// DataLayer holds the connected storage clients.
type DataLayer struct {
	RedisClient *redis.Client
	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
	Producer    *messaging.Producer

	MilvusClient *milvus.Client
	VectorStore  *milvus.VectorStore
}

// InitializeVectorStore connects to Milvus only.
func InitializeVectorStore(ctx context.Context, cfg *config.Config) (*milvus.Client, *milvus.VectorStore, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		return nil, nil, nil, err
	}
	store := milvus.NewVectorStore(milvus.NewRepository(client))
	return client, store, func() { _ = client.Close() }, nil
}

// InitializeDataLayer connects to Redis and Milvus.
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	var cs cleanups

	redisClient, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	cs.add(func() { _ = redisClient.Close() })

	milvusClient, store, closeMilvus, err := InitializeVectorStore(ctx, cfg)
	if err != nil {
		cs.run()
		return nil, nil, err
	}
	cs.add(closeMilvus)

	return &DataLayer{
		RedisClient:  redisClient,
		Cache:        redis.NewCache(redisClient),
		RateLimiter:  redis.NewRateLimiter(redisClient),
		Producer:     ProvideMessagingProducer(redisClient, cfg),
		MilvusClient: milvusClient,
		VectorStore:  store,
	}, cs.run, nil
}

func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	return redis.NewClient(&cfg.Cache.Redis)
}

func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideEmbedder builds the document embedder.
func ProvideEmbedder(ctx context.Context, cfg *config.Config) (*embedding.Embedder, error) {
	return embedding.New(ctx, &cfg.Embedding)
}

// ProvideQueryEmbedder wraps base with the Redis query cache when a TTL is configured.
func ProvideQueryEmbedder(cfg *config.Config, base retrieval.Embedder, cache *redis.Cache) retrieval.Embedder {
	if cache == nil || cfg.Embedding.CacheTTL <= 0 {
		return base
	}
	return embedding.NewCachedEmbedder(base, cache, cfg.Embedding.Model, cfg.Embedding.CacheTTL)
}

func ProvideIndexer(cfg *config.Config, embedder retrieval.Embedder, store retrieval.VectorStore, manager *retrieval.IndexManager) *retrieval.Indexer {
	return retrieval.NewIndexer(embedder, store, manager, retrieval.IndexerConfig{
		Collection:       cfg.Vector.Milvus.Collection,
		Dimension:        cfg.Embedding.Dimension,
		ChunkMaxLength:   cfg.Indexing.ChunkMaxLength,
		ChunkOverlap:     cfg.Indexing.ChunkOverlap,
		EmbedMaxChars:    cfg.Indexing.EmbedMaxChars,
		Concurrency:      cfg.Indexing.Concurrency,
		PruneStaleChunks: cfg.Indexing.PruneStaleChunks,
	})
}

// ProvideEngine builds the query engine with the default LLM provider.
func ProvideEngine(ctx context.Context, cfg *config.Config, embedder retrieval.Embedder, store retrieval.VectorStore) (*retrieval.Engine, error) {
	generator, err := llm.NewGenerator(ctx, &cfg.LLM, "")
	if err != nil {
		return nil, fmt.Errorf("failed to build generator: %w", err)
	}
	return retrieval.NewEngine(embedder, store, generator, retrieval.EngineConfig{
		Collection:  cfg.Vector.Milvus.Collection,
		DefaultK:    cfg.Query.DefaultK,
		MaxK:        cfg.Query.MaxK,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
	}), nil
}

// InitializeApp builds the HTTP router for the api-gateway.
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	data, cleanup, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := ProvideEmbedder(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	engine, err := ProvideEngine(ctx, cfg, ProvideQueryEmbedder(cfg, embedder, data.Cache), data.VectorStore)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	handlers := router.Handlers{
		Health: handler.NewHealthHandler(cfg.App.Version, map[string]handler.Pinger{
			"milvus": data.MilvusClient,
			"redis":  data.RedisClient,
		}),
		Query:   handler.NewQueryHandler(engine),
		Meeting: handler.NewMeetingHandler(data.Producer),
	}
	return router.New(cfg, handlers, data.RateLimiter), cleanup, nil
}

// InitializeQueryEngine builds an engine without the Redis embedding cache.
func InitializeQueryEngine(ctx context.Context, cfg *config.Config) (*retrieval.Engine, func(), error) {
	_, store, cleanup, err := InitializeVectorStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := ProvideEmbedder(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	engine, err := ProvideEngine(ctx, cfg, embedder, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}

// Indexing is the write path: lifecycle manager plus the source-loading handler.
type Indexing struct {
	Manager *retrieval.IndexManager
	Handler *ingestion.Handler
	Objects *objectstore.MinioStore
}

// InitializeIndexing connects Milvus and object storage and builds the indexer.
func InitializeIndexing(ctx context.Context, cfg *config.Config) (*Indexing, func(), error) {
	_, store, cleanup, err := InitializeVectorStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	idx, err := buildIndexing(ctx, cfg, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return idx, cleanup, nil
}

func buildIndexing(ctx context.Context, cfg *config.Config, store retrieval.VectorStore) (*Indexing, error) {
	objects, err := objectstore.NewMinioStore(&cfg.Storage.Object)
	if err != nil {
		return nil, err
	}
	embedder, err := ProvideEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	manager := retrieval.NewIndexManager(store)
	indexer := ProvideIndexer(cfg, embedder, store, manager)
	return &Indexing{
		Manager: manager,
		Handler: ingestion.NewHandler(indexer, objects),
		Objects: objects,
	}, nil
}

// Worker is the index-worker's consumer over the indexing pipeline.
type Worker struct {
	*Indexing
	Consumer *messaging.Consumer
}

// InitializeWorker builds the stream consumer that indexes meetings.
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	data, cleanup, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	idx, err := buildIndexing(ctx, cfg, data.VectorStore)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	rs := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(data.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamMeetingIndex,
		Group:         messaging.ConsumerGroupIndexer.WithPrefix(rs.ConsumerGroupPrefix),
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler(messaging.TypeIndexMeeting, idx.Handler.HandleIndexMessage)

	return &Worker{Indexing: idx, Consumer: consumer}, cleanup, nil
}

// InitializeProducer connects to Redis for publishing index triggers.
func InitializeProducer(cfg *config.Config) (*messaging.Producer, func(), error) {
	redisClient, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return ProvideMessagingProducer(redisClient, cfg), func() { _ = redisClient.Close() }, nil
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
