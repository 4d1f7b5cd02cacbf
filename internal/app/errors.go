package app

import (
	"errors"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	apperrors "github.com/roberjo/AuraStream-sub000/internal/platform/errors"
	"github.com/roberjo/AuraStream-sub000/internal/resilience"
)

// Job error codes recorded on FAILED jobs.
const (
	CodeCircuitOpen      = "circuit_open"
	CodeRejected         = "analysis_rejected"
	CodeUnavailable      = "analysis_unavailable"
	CodeDocumentNotFound = "document_not_found"
	CodeInvalidDocument  = "invalid_document"
	CodeEnqueueFailed    = "enqueue_failed"
	CodeStorageError     = "storage_error"
)

// toServiceError maps an analysis failure onto the service taxonomy. A breaker
// rejection stays recognisable through errors.Is(err, domain.ErrCircuitOpen).
func toServiceError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrInputTooLarge):
		return apperrors.ValidationError("text exceeds maximum length", err)
	case errors.Is(err, domain.ErrCircuitOpen):
		return apperrors.UnavailableError("analysis service temporarily disabled", err)
	case resilience.IsPermanent(err):
		return apperrors.ProcessingError("analysis service rejected the text", err)
	default:
		return apperrors.UnavailableError("analysis service unavailable", err)
	}
}

func jobErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInputTooLarge):
		return CodeInvalidDocument
	case errors.Is(err, domain.ErrCircuitOpen):
		return CodeCircuitOpen
	case resilience.IsPermanent(err):
		return CodeRejected
	default:
		return CodeUnavailable
	}
}
