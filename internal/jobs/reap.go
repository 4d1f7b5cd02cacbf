package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// CodeWorkerLost marks a job left in PROCESSING by a worker that never finished it.
const CodeWorkerLost = "worker_lost"

// KeyPrefix starts every job record key of a store.
const KeyPrefix = jobKeyPrefix

// IDFromKey extracts the job id from a record key.
func IDFromKey(key string) (string, bool) {
	return strings.CutPrefix(key, jobKeyPrefix)
}

// Stuck reports whether job has been PROCESSING for at least maxAge at now.
func Stuck(job *domain.Job, now time.Time, maxAge time.Duration) bool {
	return job.Status == domain.JobProcessing && job.StartedAt != nil && now.Sub(*job.StartedAt) >= maxAge
}

// FailStuck fails the job when it is Stuck and reports whether it did. A job
// that finishes concurrently is left alone.
func (s *Store) FailStuck(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	if !ok || !Stuck(job, now, maxAge) {
		return false, nil
	}

	age := now.Sub(*job.StartedAt)

	_, err = s.Transition(ctx, id, domain.JobFailed, Update{Error: &domain.JobError{
		Code:    CodeWorkerLost,
		Message: fmt.Sprintf("no progress for %s", age.Round(time.Second)),
	}})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
