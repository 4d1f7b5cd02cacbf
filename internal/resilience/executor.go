// Package resilience wraps calls to external targets with a per-attempt timeout,
// bounded retries with jittered backoff, and a per-target circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/platform/retry"
)

const (
	AttemptSuccess          = "success"
	AttemptTransientFailure = "transient_failure"
	AttemptPermanentFailure = "permanent_failure"
	AttemptCircuitOpen      = "circuit_open"
)

// Observer receives every attempt outcome and breaker transition.
// Implementations must not call back into the executor.
type Observer interface {
	ObserveAttempt(target, outcome string, duration time.Duration)
	ObserveStateChange(target string, from, to State)
}

// Settings configure every target of an Executor. DefaultDeadline bounds the whole
// retry sequence when the caller's context carries no deadline.
type Settings struct {
	Breaker         BreakerSettings
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	RateLimitDelay  time.Duration
	Jitter          float64
	CallTimeout     time.Duration
	DefaultDeadline time.Duration
}

type Executor struct {
	settings Settings
	clock    clockwork.Clock
	observer Observer

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewExecutor(settings Settings, clock clockwork.Clock, observer Observer) *Executor {
	return &Executor{
		settings: settings,
		clock:    clock,
		observer: observer,
		breakers: make(map[string]*Breaker),
	}
}

// Breaker returns the breaker for target, creating it on first use.
func (e *Executor) Breaker(target string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[target]
	if !ok {
		b = NewBreaker(target, e.settings.Breaker, e.clock, e.stateChanged)
		e.breakers[target] = b
	}
	return b
}

func (e *Executor) stateChanged(target string, from, to State) {
	slog.Warn("Circuit breaker state changed", "component", target, "from", from.String(), "to", to.String())
	if e.observer != nil {
		e.observer.ObserveStateChange(target, from, to)
	}
}

func (e *Executor) observe(target, outcome string, d time.Duration) {
	if e.observer != nil {
		e.observer.ObserveAttempt(target, outcome, d)
	}
}

// Call runs op against target. The retry sequence ignores caller cancellation but
// not the caller's deadline, so a request that gives up early still lets in-flight
// work finish and be reused. Breaker rejections are returned without retrying.
func Call[T any](ctx context.Context, e *Executor, target string, op func(ctx context.Context) (T, error)) (T, error) {
	loopCtx, cancel := e.detach(ctx)
	defer cancel()

	breaker := e.Breaker(target)
	policy := retry.Policy{
		MaxAttempts:      e.settings.MaxAttempts,
		InitialBackoff:   e.settings.BaseDelay,
		MaxBackoff:       e.settings.MaxDelay,
		RateLimitBackoff: e.settings.RateLimitDelay,
		Jitter:           e.settings.Jitter,
		Clock:            e.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(ctx, "Retrying external call", "target", target, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	return retry.Do(loopCtx, policy, classify, func() (T, error) {
		var zero T

		permit, err := breaker.Allow()
		if err != nil {
			e.observe(target, AttemptCircuitOpen, 0)
			return zero, err
		}

		start := e.clock.Now()
		attemptCtx, cancelAttempt := context.WithTimeout(loopCtx, e.settings.CallTimeout)
		val, err := op(attemptCtx)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancelAttempt()
		elapsed := e.clock.Since(start)

		if err == nil {
			breaker.Record(permit, OutcomeSuccess)
			e.observe(target, AttemptSuccess, elapsed)
			return val, nil
		}

		var ae *domain.AnalyzerError
		if timedOut && !errors.As(err, &ae) {
			err = domain.NewAnalyzerError(domain.KindTimeout, target, err)
		}

		if IsPermanent(err) {
			breaker.Record(permit, OutcomeIgnored)
			e.observe(target, AttemptPermanentFailure, elapsed)
			return zero, err
		}

		breaker.Record(permit, OutcomeFailure)
		e.observe(target, AttemptTransientFailure, elapsed)
		return zero, fmt.Errorf("%s attempt: %w", target, err)
	})
}

// detach drops ctx's cancellation but keeps its deadline, or DefaultDeadline when
// it has none.
func (e *Executor) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithTimeout(detached, e.settings.DefaultDeadline)
}

// IsPermanent reports whether err will fail the same way on every retry.
// Unclassified errors are treated as transient.
func IsPermanent(err error) bool {
	var ae *domain.AnalyzerError
	if errors.As(err, &ae) {
		return !ae.Transient()
	}
	return false
}

func classify(err error) retry.Action {
	if errors.Is(err, domain.ErrCircuitOpen) || IsPermanent(err) {
		return retry.Stop
	}
	var ae *domain.AnalyzerError
	if errors.As(err, &ae) && ae.Kind == domain.KindThrottled {
		return retry.After
	}
	return retry.Retry
}
