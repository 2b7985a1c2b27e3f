package retrieval

import "context"

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces free text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

type Metric string

const (
	MetricCosine Metric = "cosine"
)

type Algorithm string

const (
	AlgorithmHNSW Algorithm = "hnsw"
)

// CollectionSpec describes a vector collection to create.
type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    Metric
	Algorithm Algorithm
}

// SearchRequest is a k-nearest-neighbour query. An empty MeetingID means no filter.
type SearchRequest struct {
	Collection string
	Vector     []float32
	TopK       int
	MeetingID  string
}

// VectorStore is the application's view of the vector search service.
// Implementations live in infrastructure (Milvus).
type VectorStore interface {
	Exists(ctx context.Context, collection string) (bool, error)
	// Dimension returns the vector dimension recorded on an existing collection.
	Dimension(ctx context.Context, collection string) (int, error)
	Create(ctx context.Context, spec CollectionSpec) error
	Drop(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, docs []IndexedDocument) error
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)
	// DeleteChunksFrom removes documents of one meeting and content type whose chunk index is >= fromIndex.
	DeleteChunksFrom(ctx context.Context, collection, meetingID string, contentType ContentType, fromIndex int) error
}
