package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"meeting-rag-api/pkg/logger"
	"meeting-rag-api/pkg/metrics"
)

const (
	DefaultEmbedMaxChars = 25000
	DefaultConcurrency   = 4
)

// IndexerConfig controls segmentation and write behaviour of the Indexer.
type IndexerConfig struct {
	Collection string
	Dimension  int

	ChunkMaxLength int
	// ChunkOverlap of 0 means adjacent windows; a negative value selects the default.
	ChunkOverlap int
	// EmbedMaxChars caps the runes sent to the embedder; stored content is not cut.
	EmbedMaxChars int
	Concurrency   int

	// PruneStaleChunks deletes transcript chunks beyond the new chunk count
	// after a fully successful transcript run.
	PruneStaleChunks bool
}

func (c IndexerConfig) withDefaults() IndexerConfig {
	if c.ChunkMaxLength == 0 {
		c.ChunkMaxLength = DefaultChunkMaxLength
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.EmbedMaxChars <= 0 {
		c.EmbedMaxChars = DefaultEmbedMaxChars
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Indexer segments, embeds and upserts meeting text.
type Indexer struct {
	embedder Embedder
	store    VectorStore
	manager  *IndexManager
	cfg      IndexerConfig

	now func() time.Time
}

func NewIndexer(embedder Embedder, store VectorStore, manager *IndexManager, cfg IndexerConfig) *Indexer {
	if manager == nil {
		manager = NewIndexManager(store)
	}
	return &Indexer{
		embedder: embedder,
		store:    store,
		manager:  manager,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

type pendingDoc struct {
	contentType ContentType
	chunkIndex  int
	text        string
	origin      string
}

// IndexMeeting writes the transcript chunks and the summary of one meeting.
// Either source may be nil. A failing document is recorded in the result and
// never prevents or undoes the other writes; only an unavailable index aborts the call.
func (i *Indexer) IndexMeeting(ctx context.Context, transcript, summary *SourceText) (*IndexResult, error) {
	meetingID, err := resolveMeetingID(transcript, summary)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithContext(ctx, logger.MeetingIDKey, meetingID)

	if err := i.manager.EnsureReady(ctx, i.cfg.Collection, i.cfg.Dimension); err != nil {
		return nil, err
	}

	result := &IndexResult{MeetingID: meetingID}
	var docs []pendingDoc

	transcriptChunks := -1
	if transcript != nil && strings.TrimSpace(transcript.Text) != "" {
		chunks := SplitChunks(transcript.Text, i.cfg.ChunkMaxLength, i.cfg.ChunkOverlap)
		if len(chunks) == 0 {
			result.Failures = append(result.Failures, ChunkFailure{
				ContentType: ContentTranscript,
				Err:         wrap(ErrSegmentation, fmt.Errorf("no chunks from %d runes", len([]rune(transcript.Text)))),
			})
		}
		for _, c := range chunks {
			docs = append(docs, pendingDoc{
				contentType: ContentTranscript,
				chunkIndex:  c.SequenceIndex,
				text:        c.Text,
				origin:      transcript.Origin,
			})
		}
		transcriptChunks = len(chunks)
	}

	if summary != nil {
		if text := strings.TrimSpace(summary.Text); text != "" {
			docs = append(docs, pendingDoc{
				contentType: ContentSummary,
				chunkIndex:  0,
				text:        text,
				origin:      summary.Origin,
			})
		}
	}

	timestamp := i.now().UTC().Format(time.RFC3339)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(i.cfg.Concurrency)
	for _, d := range docs {
		g.Go(func() error {
			err := i.writeOne(ctx, meetingID, timestamp, d)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.IndexDocumentsTotal.WithLabelValues(string(d.contentType), "error").Inc()
				logger.Error(ctx, "failed to index document", err,
					"content_type", string(d.contentType), "chunk_index", d.chunkIndex)
				result.Failures = append(result.Failures, ChunkFailure{
					ContentType: d.contentType,
					ChunkIndex:  d.chunkIndex,
					Err:         err,
				})
				return nil
			}
			metrics.IndexDocumentsTotal.WithLabelValues(string(d.contentType), "ok").Inc()
			result.Written++
			return nil
		})
	}
	_ = g.Wait()
	slices.SortFunc(result.Failures, func(a, b ChunkFailure) int {
		if c := cmp.Compare(a.ContentType, b.ContentType); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})

	if i.cfg.PruneStaleChunks && transcriptChunks > 0 && !hasFailures(result, ContentTranscript) {
		if err := i.store.DeleteChunksFrom(ctx, i.cfg.Collection, meetingID, ContentTranscript, transcriptChunks); err != nil {
			logger.Error(ctx, "failed to prune stale transcript chunks", err, "from_index", transcriptChunks)
			result.Failures = append(result.Failures, ChunkFailure{
				ContentType: ContentTranscript,
				ChunkIndex:  transcriptChunks,
				Err:         wrap(ErrWrite, err),
			})
		}
	}

	logger.Info(ctx, "meeting indexed", "written", result.Written, "failed", len(result.Failures))
	return result, nil
}

func (i *Indexer) writeOne(ctx context.Context, meetingID, timestamp string, d pendingDoc) error {
	vec, err := i.embedder.Embed(ctx, truncateRunes(d.text, i.cfg.EmbedMaxChars))
	if err != nil {
		return wrap(ErrEmbedding, err)
	}
	if len(vec) != i.cfg.Dimension {
		return wrap(ErrEmbedding, fmt.Errorf("vector length %d, expected %d", len(vec), i.cfg.Dimension))
	}

	doc := IndexedDocument{
		ID:          DocumentID(meetingID, d.contentType, d.chunkIndex),
		MeetingID:   meetingID,
		ContentType: d.contentType,
		Content:     d.text,
		Embedding:   vec,
		ChunkIndex:  d.chunkIndex,
		Timestamp:   timestamp,
		Origin:      d.origin,
	}
	if err := i.store.Upsert(ctx, i.cfg.Collection, []IndexedDocument{doc}); err != nil {
		return wrap(ErrWrite, err)
	}
	return nil
}

func resolveMeetingID(sources ...*SourceText) (string, error) {
	id := ""
	for _, s := range sources {
		if s == nil {
			continue
		}
		sid := strings.TrimSpace(s.MeetingID)
		if sid == "" {
			return "", wrap(ErrInvalidSource, fmt.Errorf("meeting id is required"))
		}
		if id != "" && sid != id {
			return "", wrap(ErrInvalidSource, fmt.Errorf("meeting ids differ: %q and %q", id, sid))
		}
		id = sid
	}
	return id, nil
}

func hasFailures(r *IndexResult, ct ContentType) bool {
	for _, f := range r.Failures {
		if f.ContentType == ct {
			return true
		}
	}
	return false
}
