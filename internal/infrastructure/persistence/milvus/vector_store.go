package milvus

import (
	"context"
	"fmt"
	"strings"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/infrastructure/objectstore"
)

// VectorStore adapts Repository to retrieval.VectorStore.
type VectorStore struct {
	repo *Repository
}

func NewVectorStore(repo *Repository) *VectorStore {
	return &VectorStore{repo: repo}
}

var _ retrieval.VectorStore = (*VectorStore)(nil)

func (s *VectorStore) Exists(ctx context.Context, collection string) (bool, error) {
	return s.repo.HasCollection(ctx, collection)
}

func (s *VectorStore) Dimension(ctx context.Context, collection string) (int, error) {
	return s.repo.CollectionDimension(ctx, collection)
}

func (s *VectorStore) Create(ctx context.Context, spec retrieval.CollectionSpec) error {
	if spec.Metric != "" && spec.Metric != retrieval.MetricCosine {
		return fmt.Errorf("unsupported metric %q", spec.Metric)
	}
	if spec.Algorithm != "" && spec.Algorithm != retrieval.AlgorithmHNSW {
		return fmt.Errorf("unsupported index algorithm %q", spec.Algorithm)
	}
	return s.repo.CreateCollection(ctx, spec.Name, spec.Dimension)
}

func (s *VectorStore) Drop(ctx context.Context, collection string) error {
	return s.repo.DropCollection(ctx, collection)
}

func (s *VectorStore) Upsert(ctx context.Context, collection string, docs []retrieval.IndexedDocument) error {
	rows := make([]*MeetingDocument, 0, len(docs))
	for i := range docs {
		rows = append(rows, toRow(&docs[i]))
	}
	return s.repo.UpsertDocuments(ctx, collection, rows)
}

func (s *VectorStore) Search(ctx context.Context, req retrieval.SearchRequest) ([]retrieval.SearchHit, error) {
	results, err := s.repo.SearchDocuments(ctx, &SearchParams{
		Collection:  req.Collection,
		QueryVector: req.Vector,
		TopK:        req.TopK,
		MeetingID:   req.MeetingID,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]retrieval.SearchHit, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		hits = append(hits, retrieval.SearchHit{
			Document: retrieval.IndexedDocument{
				ID:          r.ID,
				MeetingID:   r.MeetingID,
				ContentType: retrieval.ContentType(r.ContentType),
				Content:     r.Content,
				ChunkIndex:  int(r.ChunkIndex),
				Timestamp:   r.Timestamp,
				Origin:      r.Origin,
			},
			Score: r.Score,
		})
	}
	return hits, nil
}

func (s *VectorStore) DeleteChunksFrom(ctx context.Context, collection, meetingID string, contentType retrieval.ContentType, fromIndex int) error {
	return s.repo.DeleteChunksFrom(ctx, collection, meetingID, string(contentType), fromIndex)
}

// toRow maps a document to a row; s3:// origins also fill bucket and object_key.
func toRow(d *retrieval.IndexedDocument) *MeetingDocument {
	row := &MeetingDocument{
		ID:          d.ID,
		Vector:      d.Embedding,
		MeetingID:   d.MeetingID,
		ContentType: string(d.ContentType),
		Content:     d.Content,
		ChunkIndex:  int64(d.ChunkIndex),
		Timestamp:   d.Timestamp,
		Origin:      d.Origin,
	}
	if strings.HasPrefix(d.Origin, "s3://") {
		if loc, err := objectstore.ParseLocator(d.Origin, ""); err == nil {
			row.Bucket = loc.Bucket
			row.ObjectKey = loc.Key
		}
	}
	return row
}
