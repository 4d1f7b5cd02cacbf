package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/roberjo/AuraStream-sub000/internal/cache"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/platform/correlation"
	apperrors "github.com/roberjo/AuraStream-sub000/internal/platform/errors"
)

type analysisOutcome struct {
	result domain.AnalysisResult
	err    error
}

// AnalyzeSync analyses a request of at most domain.MaxSyncChars characters.
//
// Results are served from the cache when possible. On a miss the external work runs
// detached from the caller: if the caller gives up first it gets an unavailable error
// while the analysis finishes within its own deadline and still fills the cache.
// Failures are returned as *apperrors.Error, never as a default sentiment.
func (s *Service) AnalyzeSync(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	ctx, requestID := correlation.Ensure(ctx)
	start := s.clock.Now()

	fingerprint, err := s.validator.check(req, domain.ModeSync)
	if err != nil {
		s.metrics.Requests.WithLabelValues(string(domain.ModeSync), "invalid").Inc()
		return nil, err
	}

	key := cache.Key(fingerprint, req.Options.IncludePIIDetection)
	if cached, ok := s.cache.Get(ctx, key); ok {
		elapsed := s.clock.Since(start)
		s.metrics.Requests.WithLabelValues(string(domain.ModeSync), "cache_hit").Inc()
		s.metrics.Duration.WithLabelValues("hit").Observe(elapsed.Seconds())
		return s.respond(cached, req.Options, true, elapsed, requestID), nil
	}

	done := make(chan analysisOutcome, 1)
	workCtx, cancel := detach(ctx, s.policy.SyncDeadline)
	go func() {
		defer cancel()
		result, err := s.analyze(workCtx, req.Text, req.LanguageHint, req.Options)
		done <- analysisOutcome{result: result, err: err}
		if err == nil {
			s.cache.Put(workCtx, key, result, s.policy.TTLFor(req.Text))
		}
	}()

	select {
	case out := <-done:
		elapsed := s.clock.Since(start)
		s.metrics.Duration.WithLabelValues("miss").Observe(elapsed.Seconds())
		if out.err != nil {
			svcErr := toServiceError(out.err)
			s.metrics.Requests.WithLabelValues(string(domain.ModeSync), string(svcErr.Type)).Inc()
			slog.WarnContext(ctx, "Sync analysis failed", "fingerprint", fingerprint[:12], "text_length", len(req.Text), "error", out.err)
			return nil, svcErr
		}
		s.metrics.Requests.WithLabelValues(string(domain.ModeSync), "analyzed").Inc()
		return s.respond(out.result, req.Options, false, elapsed, requestID), nil

	case <-ctx.Done():
		s.metrics.Requests.WithLabelValues(string(domain.ModeSync), "abandoned").Inc()
		slog.InfoContext(ctx, "Caller gave up before analysis finished", "fingerprint", fingerprint[:12], "error", ctx.Err())
		return nil, apperrors.UnavailableError("analysis did not finish before the request deadline", ctx.Err())
	}
}

func (s *Service) respond(result domain.AnalysisResult, opts domain.AnalysisOptions, hit bool, elapsed time.Duration, requestID string) *domain.AnalysisResponse {
	return &domain.AnalysisResponse{
		AnalysisResult: shape(result, opts),
		CacheHit:       hit,
		Elapsed:        elapsed,
		RequestID:      requestID,
	}
}
