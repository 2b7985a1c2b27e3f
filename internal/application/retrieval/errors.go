package retrieval

import (
	"errors"
	"fmt"
)

var (
	ErrSegmentation     = errors.New("segmentation failed")
	ErrEmbedding        = errors.New("embedding failed")
	ErrNoEmbedding      = errors.New("query embedding unavailable")
	ErrIndexUnavailable = errors.New("vector index unavailable")
	ErrWrite            = errors.New("vector write failed")
	ErrSearch           = errors.New("vector search failed")
	ErrGeneration       = errors.New("answer generation failed")
	ErrEmptyQuery       = errors.New("query is empty")
	ErrInvalidSource    = errors.New("invalid source text")
)

// wrap tags cause with kind so that errors.Is matches both.
func wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// Err joins the per-chunk failures, or returns nil when every write succeeded.
func (r *IndexResult) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s chunk %d: %w", f.ContentType, f.ChunkIndex, f.Err))
	}
	return errors.Join(errs...)
}
