package milvus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"meeting-rag-api/pkg/logger"
	"meeting-rag-api/pkg/metrics"
)

const defaultSearchEf = 128

// Repository performs collection and document operations on Milvus.
type Repository struct {
	client *Client
}

func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams is a vector search over one collection.
type SearchParams struct {
	Collection  string
	QueryVector []float32
	TopK        int
	MeetingID   string
}

// SearchResult is one hit; Score is the cosine similarity.
type SearchResult struct {
	ID          string
	Score       float32
	MeetingID   string
	ContentType string
	Content     string
	ChunkIndex  int64
	Timestamp   string
	Origin      string
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

func (r *Repository) HasCollection(ctx context.Context, collection string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	return r.client.HasCollection(ctx, collection)
}

// CollectionDimension returns the dim recorded on the collection's vector field.
func (r *Repository) CollectionDimension(ctx context.Context, collection string) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "milvus.DescribeCollection",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	coll, err := r.client.milvus.DescribeCollection(ctx, r.client.CollectionName(collection))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to describe collection: %w", err)
	}
	dim, err := vectorDimension(coll.Schema)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("dim", dim))
	return dim, nil
}

// CreateCollection creates the collection, its HNSW/COSINE index, and loads it.
func (r *Repository) CreateCollection(ctx context.Context, collection string, dim int) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", collection), attribute.Int("dim", dim)))
	defer span.End()

	schema := MeetingDocumentsSchema(r.client.CollectionName(collection), dim)
	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if err := r.CreateIndex(ctx, collection); err != nil {
		return err
	}
	return r.client.LoadCollection(ctx, collection)
}

// CreateIndex builds the HNSW index on the vector field.
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), FieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (r *Repository) DropCollection(ctx context.Context, collection string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.DropCollection",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	if err := r.client.milvus.DropCollection(ctx, r.client.CollectionName(collection)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// UpsertDocuments inserts or overwrites rows by primary key.
func (r *Repository) UpsertDocuments(ctx context.Context, collection string, docs []*MeetingDocument) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.UpsertDocuments",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(docs)),
		))
	defer span.End()

	if len(docs) == 0 {
		return nil
	}

	n := len(docs)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	meetingIDs := make([]string, n)
	contentTypes := make([]string, n)
	contents := make([]string, n)
	chunkIndexes := make([]int64, n)
	timestamps := make([]string, n)
	origins := make([]string, n)
	buckets := make([]string, n)
	objectKeys := make([]string, n)

	dim := 0
	for i, d := range docs {
		if i == 0 {
			dim = len(d.Vector)
		} else if len(d.Vector) != dim {
			return fmt.Errorf("inconsistent vector length in batch: %d vs %d", len(d.Vector), dim)
		}
		ids[i] = d.ID
		vectors[i] = d.Vector
		meetingIDs[i] = d.MeetingID
		contentTypes[i] = d.ContentType
		content, cut := storedContent(d.Content)
		if cut {
			logger.Warn(ctx, "chunk content exceeds VarChar limit, storing prefix",
				"id", d.ID, "bytes", len(d.Content), "stored_bytes", len(content))
		}
		contents[i] = content
		chunkIndexes[i] = d.ChunkIndex
		timestamps[i] = d.Timestamp
		origins[i] = truncateUTF8(d.Origin, maxLocatorBytes)
		buckets[i] = d.Bucket
		objectKeys[i] = truncateUTF8(d.ObjectKey, maxLocatorBytes)
	}

	_, err := r.client.milvus.Upsert(ctx, r.client.CollectionName(collection), "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldVector, dim, vectors),
		entity.NewColumnVarChar(FieldMeetingID, meetingIDs),
		entity.NewColumnVarChar(FieldContentType, contentTypes),
		entity.NewColumnVarChar(FieldContent, contents),
		entity.NewColumnInt64(FieldChunkIndex, chunkIndexes),
		entity.NewColumnVarChar(FieldTimestamp, timestamps),
		entity.NewColumnVarChar(FieldOrigin, origins),
		entity.NewColumnVarChar(FieldBucket, buckets),
		entity.NewColumnVarChar(FieldObjectKey, objectKeys),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

// SearchDocuments runs a top-k cosine search, optionally filtered to one meeting.
func (r *Repository) SearchDocuments(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchDocuments",
		trace.WithAttributes(
			attribute.String("collection", params.Collection),
			attribute.String("meeting_id", params.MeetingID),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	start := time.Now()
	status := "ok"
	defer func() {
		metrics.MilvusSearchDuration.WithLabelValues(params.Collection).Observe(time.Since(start).Seconds())
		metrics.MilvusSearchTotal.WithLabelValues(params.Collection, status).Inc()
	}()

	ef := r.client.config.SearchEf
	if ef <= 0 {
		ef = defaultSearchEf
	}
	if ef < params.TopK {
		ef = params.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		r.client.CollectionName(params.Collection),
		nil,
		meetingFilter(params.MeetingID),
		outputFields,
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		FieldVector,
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score:       result.Scores[i],
				ID:          varCharAt(result.Fields, FieldID, i),
				MeetingID:   varCharAt(result.Fields, FieldMeetingID, i),
				ContentType: varCharAt(result.Fields, FieldContentType, i),
				Content:     varCharAt(result.Fields, FieldContent, i),
				Timestamp:   varCharAt(result.Fields, FieldTimestamp, i),
				Origin:      varCharAt(result.Fields, FieldOrigin, i),
			}
			if col, ok := result.Fields.GetColumn(FieldChunkIndex).(*entity.ColumnInt64); ok {
				sr.ChunkIndex = col.Data()[i]
			}
			out = append(out, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// DeleteChunksFrom removes one meeting's rows of contentType with chunk_index >= fromIndex.
func (r *Repository) DeleteChunksFrom(ctx context.Context, collection, meetingID, contentType string, fromIndex int) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteChunksFrom",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("meeting_id", meetingID),
			attribute.Int("from_index", fromIndex),
		))
	defer span.End()

	expr := staleChunkFilter(meetingID, contentType, fromIndex)
	if err := r.client.milvus.Delete(ctx, r.client.CollectionName(collection), "", expr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// columnGetter is satisfied by client.ResultSet.
type columnGetter interface {
	GetColumn(fieldName string) entity.Column
}

// storedContent returns the prefix of content that fits the content field and whether it was cut.
func storedContent(content string) (string, bool) {
	out := truncateUTF8(content, maxContentBytes)
	return out, len(out) < len(content)
}

func varCharAt(fields columnGetter, name string, i int) string {
	col, ok := fields.GetColumn(name).(*entity.ColumnVarChar)
	if !ok || i >= col.Len() {
		return ""
	}
	return col.Data()[i]
}

// meetingFilter returns a boolean expression restricting to meetingID, or "" for no filter.
func meetingFilter(meetingID string) string {
	if meetingID == "" {
		return ""
	}
	return fmt.Sprintf("%s == %s", FieldMeetingID, strconv.Quote(meetingID))
}

func staleChunkFilter(meetingID, contentType string, fromIndex int) string {
	return fmt.Sprintf("%s == %s && %s == %s && %s >= %d",
		FieldMeetingID, strconv.Quote(meetingID),
		FieldContentType, strconv.Quote(contentType),
		FieldChunkIndex, fromIndex)
}
