// Package worker consumes the job queue and hands each job id to the processor.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/platform/correlation"
	"golang.org/x/sync/errgroup"
)

// Handler processes one job. Returned errors are logged; they do not stop the pool.
type Handler func(ctx context.Context, jobID string) error

const dequeueErrorBackoff = time.Second

type Pool struct {
	queue       domain.JobQueue
	handler     Handler
	concurrency int
	clock       clockwork.Clock
	metrics     *metrics.WorkerMetrics
}

func NewPool(queue domain.JobQueue, handler Handler, concurrency int, clock clockwork.Clock, m *metrics.WorkerMetrics) *Pool {
	return &Pool{
		queue:       queue,
		handler:     handler,
		concurrency: max(concurrency, 1),
		clock:       clock,
		metrics:     m,
	}
}

// Run starts the consumers and blocks until ctx is cancelled. A job being handled
// when ctx is cancelled is allowed to finish.
func (p *Pool) Run(ctx context.Context) error {
	slog.Info("Worker pool started", "concurrency", p.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.concurrency {
		g.Go(func() error {
			p.consume(gctx, i)
			return nil
		})
	}

	err := g.Wait()
	slog.Info("Worker pool stopped")
	return err
}

func (p *Pool) consume(ctx context.Context, worker int) {
	for {
		id, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Dequeue failed", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-p.clock.After(dequeueErrorBackoff):
			}
			continue
		}

		p.handle(context.WithoutCancel(ctx), worker, id)
	}
}

func (p *Pool) handle(ctx context.Context, worker int, id string) {
	ctx = correlation.WithID(ctx, id)
	p.metrics.Busy.Inc()
	defer p.metrics.Busy.Dec()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Job handler panic recovered", "worker", worker, "job_id", id, "panic", r)
			p.metrics.Panics.Inc()
			p.metrics.Handled.WithLabelValues("panic").Inc()
		}
	}()

	if err := p.handler(ctx, id); err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrJobNotFound) {
			outcome = "not_found"
		}
		slog.ErrorContext(ctx, "Job handler failed", "worker", worker, "job_id", id, "error", err)
		p.metrics.Handled.WithLabelValues(outcome).Inc()
		return
	}
	p.metrics.Handled.WithLabelValues("ok").Inc()
}
