package memory

import (
	"context"
	"fmt"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// Queue is a bounded in-process job queue. Enqueue never blocks: a full queue is
// reported so the submitter can fail the job instead of stalling the request.
type Queue struct {
	ch chan string
}

var _ domain.JobQueue = (*Queue)(nil)

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan string, size)}
}

func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", jobID, ctx.Err())
	default:
		return fmt.Errorf("enqueue %s: %w", jobID, domain.ErrQueueFull)
	}
}

func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.ch) }
