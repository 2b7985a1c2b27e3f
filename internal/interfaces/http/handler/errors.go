// Package handler implements the HTTP endpoints.
package handler

import (
	"errors"

	"meeting-rag-api/internal/application/retrieval"
	apperrors "meeting-rag-api/pkg/errors"
)

// toAppError maps retrieval failures onto client-visible codes.
func toAppError(err error) *apperrors.AppError {
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err)
	}
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery), errors.Is(err, retrieval.ErrInvalidSource):
		return apperrors.Wrap(err, apperrors.CodeInvalidParam, "invalid parameter")
	case errors.Is(err, retrieval.ErrNoEmbedding), errors.Is(err, retrieval.ErrEmbedding):
		return apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "embedding failed")
	case errors.Is(err, retrieval.ErrSearch):
		return apperrors.Wrap(err, apperrors.CodeRetrievalFailed, "retrieval failed")
	case errors.Is(err, retrieval.ErrGeneration):
		return apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "answer generation failed")
	case errors.Is(err, retrieval.ErrIndexUnavailable):
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "vector index unavailable")
	default:
		return apperrors.Wrap(err, apperrors.CodeInternalError, "internal server error")
	}
}
