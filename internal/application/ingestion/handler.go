// Package ingestion turns queued index triggers into indexed meeting documents.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/infrastructure/messaging"
	"meeting-rag-api/pkg/logger"
)

// TextReader fetches the text behind a locator.
type TextReader interface {
	ReadText(ctx context.Context, locator string) (string, error)
}

// Indexer is satisfied by *retrieval.Indexer.
type Indexer interface {
	IndexMeeting(ctx context.Context, transcript, summary *retrieval.SourceText) (*retrieval.IndexResult, error)
}

type Handler struct {
	indexer Indexer
	reader  TextReader
}

func NewHandler(indexer Indexer, reader TextReader) *Handler {
	return &Handler{indexer: indexer, reader: reader}
}

// HandleIndexMessage is the messaging.MessageHandler for index triggers.
// Partial failures are returned as errors so the message is redelivered;
// rewriting already stored chunks is harmless because ids are deterministic.
func (h *Handler) HandleIndexMessage(ctx context.Context, msg *messaging.Message) error {
	var trigger messaging.IndexTrigger
	if err := msg.UnmarshalPayload(&trigger); err != nil {
		return fmt.Errorf("failed to decode index trigger: %w", err)
	}
	if trigger.MeetingID == "" {
		trigger.MeetingID = msg.MeetingID
	}

	_, err := h.Index(ctx, &trigger)
	return err
}

// Index reads the trigger's texts and indexes them.
func (h *Handler) Index(ctx context.Context, trigger *messaging.IndexTrigger) (*retrieval.IndexResult, error) {
	if err := trigger.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", retrieval.ErrInvalidSource, err)
	}
	ctx = logger.WithContext(ctx, logger.MeetingIDKey, trigger.MeetingID)
	start := time.Now()

	transcript, err := h.load(ctx, trigger.MeetingID, retrieval.ContentTranscript, trigger.TranscriptLocator)
	if err != nil {
		return nil, err
	}
	summary, err := h.load(ctx, trigger.MeetingID, retrieval.ContentSummary, trigger.SummaryLocator)
	if err != nil {
		return nil, err
	}

	result, err := h.indexer.IndexMeeting(ctx, transcript, summary)
	if err != nil {
		logger.Error(ctx, "meeting indexing failed", err)
		return nil, err
	}

	if failErr := result.Err(); failErr != nil {
		logger.Warn(ctx, "meeting indexed with failures",
			"written", result.Written,
			"failed", len(result.Failures),
			"error", failErr.Error(),
		)
		return result, fmt.Errorf("%d of %d documents failed: %w",
			len(result.Failures), result.Written+len(result.Failures), failErr)
	}

	logger.Info(ctx, "meeting indexed",
		"written", result.Written,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (h *Handler) load(ctx context.Context, meetingID string, ct retrieval.ContentType, locator string) (*retrieval.SourceText, error) {
	if locator == "" {
		return nil, nil
	}
	text, err := h.reader.ReadText(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", ct, locator, err)
	}
	return &retrieval.SourceText{
		MeetingID:   meetingID,
		ContentType: ct,
		Text:        text,
		Origin:      locator,
	}, nil
}
