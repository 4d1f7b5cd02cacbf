package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/memory"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock, *metrics.JobMetrics) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	m := metrics.NewJobMetrics(prometheus.NewRegistry())
	return NewStore(memory.NewStore(clock), clock, 24*time.Hour, m), clock, m
}

func sampleResult() *domain.AnalysisResult {
	return &domain.AnalysisResult{Sentiment: domain.SentimentNeutral, Score: 0.7, Confidence: 0.7, Language: "en"}
}

func TestCreate_StoresPendingJob(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.Create(ctx, domain.Job{ID: "job-1", TextLength: 42})
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, clock.Now().UTC(), job.CreatedAt)

	got, ok, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobPending, got.Status)
	assert.Equal(t, 42, got.TextLength)
}

func TestCreate_DuplicateIsDistinguishable(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, domain.Job{ID: "job-1"})
	require.NoError(t, err)

	_, err = s.Create(ctx, domain.Job{ID: "job-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateJob)
	assert.NotErrorIs(t, err, domain.ErrJobNotFound)
}

func TestCreate_RejectsNonPendingStatus(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Create(context.Background(), domain.Job{ID: "job-1", Status: domain.JobCompleted})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestGet_UnknownJob(t *testing.T) {
	s, _, _ := newTestStore(t)

	job, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, job)
}

func TestTransition_HappyPath(t *testing.T) {
	s, clock, m := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, domain.Job{ID: "job-1"})
	require.NoError(t, err)

	clock.Advance(time.Second)
	job, err := s.Transition(ctx, "job-1", domain.JobProcessing, Update{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobProcessing, job.Status)
	require.NotNil(t, job.StartedAt)

	clock.Advance(2 * time.Second)
	job, err = s.Transition(ctx, "job-1", domain.JobCompleted, Update{Result: sampleResult()})
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, 2*time.Second, job.CompletedAt.Sub(*job.StartedAt))
	assert.Equal(t, domain.SentimentNeutral, job.Result.Sentiment)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues(string(domain.JobCompleted))))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestTransition_PendingToFailed(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, domain.Job{ID: "job-1"})
	require.NoError(t, err)

	job, err := s.Transition(ctx, "job-1", domain.JobFailed, Update{Error: &domain.JobError{Code: "enqueue_failed", Message: "queue full"}})
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.NotNil(t, job.FailedAt)
	assert.Equal(t, "enqueue_failed", job.Error.Code)
}

func TestTransition_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		steps   []domain.JobStatus
		to      domain.JobStatus
		upd     Update
		wantErr error
	}{
		{name: "pending to completed", to: domain.JobCompleted, upd: Update{Result: sampleResult()}, wantErr: domain.ErrInvalidTransition},
		{name: "pending to pending", to: domain.JobPending, wantErr: domain.ErrInvalidTransition},
		{name: "processing to processing", steps: []domain.JobStatus{domain.JobProcessing}, to: domain.JobProcessing, wantErr: domain.ErrInvalidTransition},
		{name: "completed is terminal", steps: []domain.JobStatus{domain.JobProcessing, domain.JobCompleted}, to: domain.JobFailed, upd: Update{Error: &domain.JobError{Code: "x"}}, wantErr: domain.ErrInvalidTransition},
		{name: "failed is terminal", steps: []domain.JobStatus{domain.JobFailed}, to: domain.JobProcessing, wantErr: domain.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestStore(t)
			ctx := context.Background()
			_, err := s.Create(ctx, domain.Job{ID: "job-1"})
			require.NoError(t, err)

			for _, step := range tt.steps {
				_, err := s.Transition(ctx, "job-1", step, Update{Result: sampleResult(), Error: &domain.JobError{Code: "x"}})
				require.NoError(t, err)
			}

			before, _, err := s.Get(ctx, "job-1")
			require.NoError(t, err)

			_, err = s.Transition(ctx, "job-1", tt.to, tt.upd)
			assert.ErrorIs(t, err, tt.wantErr)

			after, _, err := s.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, before, after, "rejected transition must not modify the record")
		})
	}
}

func TestTransition_UnknownJob(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Transition(context.Background(), "nope", domain.JobProcessing, Update{})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestTransition_TerminalPayloadRequired(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, domain.Job{ID: "job-1"})
	require.NoError(t, err)
	_, err = s.Transition(ctx, "job-1", domain.JobProcessing, Update{})
	require.NoError(t, err)

	_, err = s.Transition(ctx, "job-1", domain.JobCompleted, Update{})
	assert.Error(t, err)
	_, err = s.Transition(ctx, "job-1", domain.JobFailed, Update{})
	assert.Error(t, err)
}

func TestTransition_ConcurrentClaimHasOneWinner(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, domain.Job{ID: "job-1"})
	require.NoError(t, err)

	const workers = 16
	var (
		wg      sync.WaitGroup
		won     atomic.Int32
		invalid atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, "job-1", domain.JobProcessing, Update{})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrTransitionConflict):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(workers-1), invalid.Load())
}

// racingStore loses every compare-and-swap, as if another writer always got there first.
type racingStore struct {
	domain.KeyValueStore
	swaps atomic.Int32
}

func (r *racingStore) CompareAndSwap(context.Context, string, []byte, []byte, time.Duration) (bool, error) {
	r.swaps.Add(1)
	return false, nil
}

func TestTransition_GivesUpAfterRepeatedConflicts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := metrics.NewJobMetrics(prometheus.NewRegistry())
	kv := &racingStore{KeyValueStore: memory.NewStore(clock)}
	s := NewStore(kv, clock, time.Hour, m)
	ctx := context.Background()

	_, err := s.Create(ctx, domain.Job{ID: "job-1"})
	require.NoError(t, err)

	_, err = s.Transition(ctx, "job-1", domain.JobProcessing, Update{})
	assert.ErrorIs(t, err, domain.ErrTransitionConflict)
	assert.Equal(t, int32(maxCASAttempts), kv.swaps.Load())
	assert.Equal(t, float64(maxCASAttempts), testutil.ToFloat64(m.Conflicts))
}

func TestDocuments(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadDocument(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	require.NoError(t, s.SaveDocument(ctx, "job-1", "some long text"))
	text, err := s.LoadDocument(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "some long text", text)

	clock.Advance(25 * time.Hour)
	_, err = s.LoadDocument(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	require.NoError(t, s.SaveDocument(ctx, "job-2", "x"))
	require.NoError(t, s.DeleteDocument(ctx, "job-2"))
	_, err = s.LoadDocument(ctx, "job-2")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
