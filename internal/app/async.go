package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/roberjo/AuraStream-sub000/internal/cache"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/jobs"
	"github.com/roberjo/AuraStream-sub000/internal/platform/correlation"
	apperrors "github.com/roberjo/AuraStream-sub000/internal/platform/errors"
	"github.com/roberjo/AuraStream-sub000/internal/textnorm"
)

// SubmitAsync validates req against the asynchronous bound, records a PENDING job and
// queues it. The returned job carries the id to poll with GetJobStatus.
func (s *Service) SubmitAsync(ctx context.Context, req domain.AnalysisRequest) (*domain.Job, error) {
	if _, err := s.validator.check(req, domain.ModeAsync); err != nil {
		s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), "invalid").Inc()
		return nil, err
	}

	id := uuid.NewString()
	if _, ok := correlation.ID(ctx); !ok {
		ctx = correlation.WithID(ctx, id)
	}

	if err := s.jobs.SaveDocument(ctx, id, req.Text); err != nil {
		s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), string(apperrors.TypeUnavailable)).Inc()
		return nil, apperrors.UnavailableError("job store unavailable", err)
	}

	job, err := s.jobs.Create(ctx, domain.Job{
		ID:           id,
		SourceID:     req.SourceID,
		LanguageHint: req.LanguageHint,
		TextLength:   utf8.RuneCountInString(req.Text),
		Options:      req.Options,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			return nil, apperrors.ConflictError("job already exists", err).WithContext("job_id", id)
		}
		s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), string(apperrors.TypeUnavailable)).Inc()
		return nil, apperrors.UnavailableError("job store unavailable", err)
	}
	s.jobsM.Submitted.Inc()

	if err := s.queue.Enqueue(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue job", "job_id", id, "error", err)
		s.fail(ctx, id, CodeEnqueueFailed, "job could not be queued for processing")
		s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), string(apperrors.TypeUnavailable)).Inc()
		return nil, apperrors.UnavailableError("job could not be queued", err).WithContext("job_id", id)
	}

	slog.InfoContext(ctx, "Job submitted", "job_id", id, "text_length", job.TextLength)
	s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), "submitted").Inc()
	return job, nil
}

// ProcessJob performs the out-of-band work for a submitted job. Jobs that are not
// PENDING, or that another worker claims first, are skipped. Analysis failures are
// recorded on the job; the returned error only reports jobs left unfinished.
func (s *Service) ProcessJob(ctx context.Context, id string) error {
	ctx = correlation.WithID(ctx, id)
	ctx, cancel := detach(ctx, s.policy.JobDeadline)
	defer cancel()

	job, ok, err := s.jobs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if job.Status != domain.JobPending {
		slog.InfoContext(ctx, "Skipping job that is no longer pending", "job_id", id, "status", job.Status)
		return nil
	}

	job, err = s.jobs.Transition(ctx, id, domain.JobProcessing, jobs.Update{})
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrTransitionConflict) {
		slog.InfoContext(ctx, "Job claimed by another worker", "job_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}

	text, err := s.jobs.LoadDocument(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			s.fail(ctx, id, CodeDocumentNotFound, "submitted document is no longer available")
			return nil
		}
		s.fail(ctx, id, CodeStorageError, "submitted document could not be loaded")
		return fmt.Errorf("load document: %w", err)
	}

	result, err := s.resultFor(ctx, job, text)
	if err != nil {
		svcErr := toServiceError(err)
		slog.WarnContext(ctx, "Job analysis failed", "job_id", id, "error", err)
		s.fail(ctx, id, jobErrorCode(err), svcErr.Message)
		return nil
	}

	if _, err := s.jobs.Transition(ctx, id, domain.JobCompleted, jobs.Update{Result: &result}); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if err := s.jobs.DeleteDocument(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to delete processed document", "job_id", id, "error", err)
	}

	slog.InfoContext(ctx, "Job completed", "job_id", id, "sentiment", result.Sentiment)
	return nil
}

// resultFor serves the job from the shared result cache or analyses the text.
func (s *Service) resultFor(ctx context.Context, job *domain.Job, text string) (domain.AnalysisResult, error) {
	fingerprint, err := textnorm.Fingerprint(text)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	key := cache.Key(fingerprint, job.Options.IncludePIIDetection)
	if cached, ok := s.cache.Get(ctx, key); ok {
		s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), "cache_hit").Inc()
		return shape(cached, job.Options), nil
	}

	result, err := s.analyze(ctx, text, job.LanguageHint, job.Options)
	if err != nil {
		s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), string(toServiceError(err).Type)).Inc()
		return domain.AnalysisResult{}, err
	}
	s.cache.Put(ctx, key, result, s.policy.TTLFor(text))
	s.metrics.Requests.WithLabelValues(string(domain.ModeAsync), "analyzed").Inc()
	return shape(result, job.Options), nil
}

func (s *Service) fail(ctx context.Context, id, code, message string) {
	_, err := s.jobs.Transition(ctx, id, domain.JobFailed, jobs.Update{Error: &domain.JobError{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mark job as failed", "job_id", id, "code", code, "error", err)
	}
}

// GetJobStatus returns the job with the given id, or a not-found error.
func (s *Service) GetJobStatus(ctx context.Context, id string) (*domain.Job, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, apperrors.ValidationError("job id must be a UUID", err).WithContext("job_id", id)
	}

	job, ok, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, apperrors.UnavailableError("job store unavailable", err)
	}
	if !ok {
		return nil, apperrors.NotFoundError("job not found").
			WithCause(domain.ErrJobNotFound).
			WithContext("job_id", id)
	}
	return job, nil
}
