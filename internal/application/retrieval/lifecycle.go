package retrieval

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"meeting-rag-api/pkg/logger"
	"meeting-rag-api/pkg/metrics"
)

// IndexManager keeps a collection's recorded dimension in line with the configured one.
type IndexManager struct {
	store VectorStore
	group singleflight.Group
}

func NewIndexManager(store VectorStore) *IndexManager {
	return &IndexManager{store: store}
}

// EnsureReady makes sure collection exists with the given dimension.
// A collection with a different (or unreadable) dimension is dropped and recreated,
// which discards every document stored in it.
func (m *IndexManager) EnsureReady(ctx context.Context, collection string, dimension int) error {
	collection = strings.TrimSpace(collection)
	if collection == "" || dimension <= 0 {
		return wrap(ErrIndexUnavailable, fmt.Errorf("invalid collection %q or dimension %d", collection, dimension))
	}
	if m == nil || m.store == nil {
		return wrap(ErrIndexUnavailable, fmt.Errorf("vector store not configured"))
	}

	// reconcile is shared by concurrent callers, so it must not inherit one caller's cancellation
	key := fmt.Sprintf("%s/%d", collection, dimension)
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return nil, m.reconcile(shared, collection, dimension)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return wrap(ErrIndexUnavailable, ctx.Err())
	}
}

func (m *IndexManager) reconcile(ctx context.Context, collection string, dimension int) error {
	exists, err := m.store.Exists(ctx, collection)
	if err != nil {
		return wrap(ErrIndexUnavailable, err)
	}
	if !exists {
		logger.Info(ctx, "creating vector collection", "collection", collection, "dimension", dimension)
		return m.create(ctx, collection, dimension, "missing")
	}

	current, err := m.store.Dimension(ctx, collection)
	switch {
	case err != nil:
		logger.Warn(ctx, "collection dimension lookup failed, recreating",
			"collection", collection, "error", err.Error())
		return m.rebuild(ctx, collection, dimension, "describe_failed")
	case current != dimension:
		logger.Warn(ctx, "collection dimension mismatch, recreating",
			"collection", collection, "current", current, "expected", dimension)
		return m.rebuild(ctx, collection, dimension, "dimension_mismatch")
	default:
		return nil
	}
}

// Recreate unconditionally drops and recreates collection.
func (m *IndexManager) Recreate(ctx context.Context, collection string, dimension int) error {
	if m == nil || m.store == nil {
		return wrap(ErrIndexUnavailable, fmt.Errorf("vector store not configured"))
	}
	exists, err := m.store.Exists(ctx, collection)
	if err != nil {
		return wrap(ErrIndexUnavailable, err)
	}
	if !exists {
		return m.create(ctx, collection, dimension, "forced")
	}
	return m.rebuild(ctx, collection, dimension, "forced")
}

func (m *IndexManager) rebuild(ctx context.Context, collection string, dimension int, reason string) error {
	if err := m.store.Drop(ctx, collection); err != nil {
		return wrap(ErrIndexUnavailable, fmt.Errorf("drop %s: %w", collection, err))
	}
	return m.create(ctx, collection, dimension, reason)
}

func (m *IndexManager) create(ctx context.Context, collection string, dimension int, reason string) error {
	spec := CollectionSpec{
		Name:      collection,
		Dimension: dimension,
		Metric:    MetricCosine,
		Algorithm: AlgorithmHNSW,
	}
	if err := m.store.Create(ctx, spec); err != nil {
		return wrap(ErrIndexUnavailable, fmt.Errorf("create %s: %w", collection, err))
	}
	metrics.IndexRebuildTotal.WithLabelValues(collection, reason).Inc()
	return nil
}
