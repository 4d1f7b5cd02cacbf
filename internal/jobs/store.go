// Package jobs persists asynchronous analysis jobs and enforces their lifecycle.
//
// Every status change is a read, a check against domain.CanTransition, and a
// compare-and-swap against the record that was read. Losing the swap means another
// writer moved the job first; the transition is re-validated against the fresh record,
// so two workers can never both move a job out of PENDING.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

const (
	jobKeyPrefix = "job:"
	docKeyPrefix = "job-doc:"

	maxCASAttempts = 5
)

var (
	errMissingResult = errors.New("completed job requires a result")
	errMissingError  = errors.New("failed job requires an error")
)

// Update carries the payload of a terminal transition.
type Update struct {
	Result *domain.AnalysisResult
	Error  *domain.JobError
}

type Store struct {
	kv        domain.KeyValueStore
	clock     clockwork.Clock
	retention time.Duration
	metrics   *metrics.JobMetrics
}

// NewStore keeps records for retention; 0 keeps them until removed externally.
func NewStore(kv domain.KeyValueStore, clock clockwork.Clock, retention time.Duration, m *metrics.JobMetrics) *Store {
	return &Store{
		kv:        kv,
		clock:     clock,
		retention: retention,
		metrics:   m,
	}
}

func jobKey(id string) string { return jobKeyPrefix + id }
func docKey(id string) string { return docKeyPrefix + id }

// Create stores a new PENDING job. An existing record under the same id is never
// overwritten.
func (s *Store) Create(ctx context.Context, job domain.Job) (*domain.Job, error) {
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if job.Status != domain.JobPending {
		return nil, fmt.Errorf("%w: new jobs start as %s, got %s", domain.ErrInvalidTransition, domain.JobPending, job.Status)
	}

	now := s.clock.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	encoded, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	created, err := s.kv.SetIfAbsent(ctx, jobKey(job.ID), encoded, s.retention)
	if err != nil {
		return nil, fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	if !created {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateJob, job.ID)
	}

	s.metrics.Transitions.WithLabelValues(string(domain.JobPending)).Inc()
	return &job, nil
}

// Get returns (nil, false, nil) for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, bool, error) {
	job, _, ok, err := s.read(ctx, id)
	return job, ok, err
}

func (s *Store) read(ctx context.Context, id string) (*domain.Job, []byte, bool, error) {
	raw, ok, err := s.kv.Get(ctx, jobKey(id))
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if !ok {
		return nil, nil, false, nil
	}

	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, nil, false, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, raw, true, nil
}

// Transition moves job id to status to. It fails with domain.ErrJobNotFound,
// domain.ErrInvalidTransition, or domain.ErrTransitionConflict when concurrent
// writers keep winning.
func (s *Store) Transition(ctx context.Context, id string, to domain.JobStatus, upd Update) (*domain.Job, error) {
	switch {
	case to == domain.JobCompleted && upd.Result == nil:
		return nil, errMissingResult
	case to == domain.JobFailed && upd.Error == nil:
		return nil, errMissingError
	}

	for range maxCASAttempts {
		job, raw, ok, err := s.read(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		if !domain.CanTransition(job.Status, to) {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, job.Status, to)
		}

		from := job.Status
		s.apply(job, to, upd)

		encoded, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job: %w", err)
		}

		swapped, err := s.kv.CompareAndSwap(ctx, jobKey(id), raw, encoded, s.retention)
		if err != nil {
			return nil, fmt.Errorf("failed to update job %s: %w", id, err)
		}
		if swapped {
			s.observe(job, from)
			return job, nil
		}

		s.metrics.Conflicts.Inc()
		slog.DebugContext(ctx, "Job changed during transition, re-reading", "job_id", id, "to", to)
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrTransitionConflict, id)
}

func (s *Store) apply(job *domain.Job, to domain.JobStatus, upd Update) {
	now := s.clock.Now().UTC()
	job.Status = to
	job.UpdatedAt = now

	switch to {
	case domain.JobProcessing:
		job.StartedAt = &now
	case domain.JobCompleted:
		job.CompletedAt = &now
		job.Result = upd.Result
		job.Error = nil
	case domain.JobFailed:
		job.FailedAt = &now
		job.Error = upd.Error
	}
}

func (s *Store) observe(job *domain.Job, from domain.JobStatus) {
	s.metrics.Transitions.WithLabelValues(string(job.Status)).Inc()
	if job.Status.Terminal() && from == domain.JobProcessing && job.StartedAt != nil {
		s.metrics.Duration.WithLabelValues(string(job.Status)).Observe(job.UpdatedAt.Sub(*job.StartedAt).Seconds())
	}
}

// SaveDocument stores the submitted text alongside the job record.
func (s *Store) SaveDocument(ctx context.Context, id, text string) error {
	if err := s.kv.Set(ctx, docKey(id), []byte(text), s.retention); err != nil {
		return fmt.Errorf("failed to store document for job %s: %w", id, err)
	}
	return nil
}

func (s *Store) LoadDocument(ctx context.Context, id string) (string, error) {
	raw, ok, err := s.kv.Get(ctx, docKey(id))
	if err != nil {
		return "", fmt.Errorf("failed to load document for job %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return string(raw), nil
}

// DeleteDocument removes the stored text once a job no longer needs it.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, docKey(id)); err != nil {
		return fmt.Errorf("failed to delete document for job %s: %w", id, err)
	}
	return nil
}
