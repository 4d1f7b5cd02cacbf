package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyText           = errors.New("text is empty")
	ErrInputTooLarge       = errors.New("text exceeds maximum length")
	ErrUnsupportedLanguage = errors.New("language not supported")
	ErrCircuitOpen         = errors.New("circuit breaker open")
	ErrDuplicateJob        = errors.New("job already exists")
	ErrJobNotFound         = errors.New("job not found")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrTransitionConflict  = errors.New("job modified concurrently")
	ErrDocumentNotFound    = errors.New("job document not found")
	ErrQueueFull           = errors.New("job queue full")
)

// AnalyzerErrorKind classifies a failed call to the external analysis capability.
type AnalyzerErrorKind int

const (
	KindTimeout AnalyzerErrorKind = iota
	KindThrottled
	KindUnavailable
	KindInvalidInput
	KindUnsupportedLanguage
)

func (k AnalyzerErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindThrottled:
		return "throttled"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnsupportedLanguage:
		return "unsupported_language"
	default:
		return "unknown"
	}
}

// AnalyzerError is returned by Analyzer implementations. Timeout, Throttled and
// Unavailable are transient; the rest are permanent.
type AnalyzerError struct {
	Kind AnalyzerErrorKind
	Op   string
	Err  error
}

func (e *AnalyzerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AnalyzerError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call may succeed.
func (e *AnalyzerError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindThrottled, KindUnavailable:
		return true
	default:
		return false
	}
}

func NewAnalyzerError(kind AnalyzerErrorKind, op string, err error) *AnalyzerError {
	return &AnalyzerError{Kind: kind, Op: op, Err: err}
}

// IsTransient reports whether err carries a transient AnalyzerError.
func IsTransient(err error) bool {
	var ae *AnalyzerError
	if errors.As(err, &ae) {
		return ae.Transient()
	}
	return false
}
