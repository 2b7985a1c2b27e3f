package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureReady_CreatesMissingCollection(t *testing.T) {
	store := newFakeStore()
	m := NewIndexManager(store)

	require.NoError(t, m.EnsureReady(context.Background(), "meetings", 1024))

	require.Len(t, store.creates, 1)
	assert.Equal(t, CollectionSpec{Name: "meetings", Dimension: 1024, Metric: MetricCosine, Algorithm: AlgorithmHNSW}, store.creates[0])
	assert.Zero(t, store.drops)
}

func TestEnsureReady_MatchingDimensionIsNoop(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", 1024)
	m := NewIndexManager(store)

	require.NoError(t, m.EnsureReady(context.Background(), "meetings", 1024))

	assert.Empty(t, store.creates)
	assert.Zero(t, store.drops)
}

func TestEnsureReady_RecreatesOnDimensionMismatch(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", 1536)
	require.NoError(t, store.Upsert(context.Background(), "meetings", []IndexedDocument{{ID: "old"}}))
	m := NewIndexManager(store)

	require.NoError(t, m.EnsureReady(context.Background(), "meetings", 1024))

	dim, err := store.Dimension(context.Background(), "meetings")
	require.NoError(t, err)
	assert.Equal(t, 1024, dim)
	assert.Equal(t, 1, store.drops)
	assert.Empty(t, store.docs("meetings"), "rebuild discards existing documents")
}

func TestEnsureReady_ProbeFailureRecreates(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", 1024)
	store.dimErr = errors.New("describe failed")
	m := NewIndexManager(store)

	require.NoError(t, m.EnsureReady(context.Background(), "meetings", 1024))

	assert.Equal(t, 1, store.drops)
	require.Len(t, store.creates, 1)
	assert.Equal(t, 1024, store.creates[0].Dimension)
}

func TestEnsureReady_ExistsFailure(t *testing.T) {
	store := newFakeStore()
	store.existsErr = errors.New("connection refused")
	m := NewIndexManager(store)

	err := m.EnsureReady(context.Background(), "meetings", 1024)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorContains(t, err, "connection refused")
}

func TestEnsureReady_InvalidArguments(t *testing.T) {
	m := NewIndexManager(newFakeStore())

	assert.ErrorIs(t, m.EnsureReady(context.Background(), "", 1024), ErrIndexUnavailable)
	assert.ErrorIs(t, m.EnsureReady(context.Background(), "meetings", 0), ErrIndexUnavailable)
}

func TestEnsureReady_ConcurrentCallersConverge(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", 1536)
	m := NewIndexManager(store)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.EnsureReady(context.Background(), "meetings", 1024))
		}()
	}
	wg.Wait()

	dim, err := store.Dimension(context.Background(), "meetings")
	require.NoError(t, err)
	assert.Equal(t, 1024, dim)
}

func TestRecreate_ForcesRebuild(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", 1024)
	m := NewIndexManager(store)

	require.NoError(t, m.Recreate(context.Background(), "meetings", 1024))

	assert.Equal(t, 1, store.drops)
	require.Len(t, store.creates, 1)
}

func TestRecreate_MissingCollection(t *testing.T) {
	store := newFakeStore()
	m := NewIndexManager(store)

	require.NoError(t, m.Recreate(context.Background(), "meetings", 768))

	assert.Zero(t, store.drops)
	require.Len(t, store.creates, 1)
	assert.Equal(t, 768, store.creates[0].Dimension)
}

func TestEnsureReady_CancelledCallerDoesNotAbortSharedReconcile(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	var sharedErr error
	store.onExists = func(ctx context.Context) {
		first.Do(func() {
			close(entered)
			<-release
			sharedErr = ctx.Err()
		})
	}
	m := NewIndexManager(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.EnsureReady(ctx, "meetings", 8) }()

	<-entered
	cancel()
	err := <-done
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, m.EnsureReady(context.Background(), "meetings", 8))
	assert.NoError(t, sharedErr)
	assert.Len(t, store.creates, 1)
}
