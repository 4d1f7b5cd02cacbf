package app

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/analysis"
	"github.com/roberjo/AuraStream-sub000/internal/cache"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/jobs"
	"github.com/roberjo/AuraStream-sub000/internal/pii"
)

// Policy holds the tunables of the orchestrators.
type Policy struct {
	CacheTTLShort        time.Duration
	CacheTTLLong         time.Duration
	LongTextThreshold    int
	RedactBeforeAnalysis bool
	SyncDeadline         time.Duration
	JobDeadline          time.Duration
}

// TTLFor returns how long the result for text stays cached. Long texts are
// costlier to analyse and less likely to be resubmitted with edits.
func (p Policy) TTLFor(text string) time.Duration {
	if utf8.RuneCountInString(text) >= p.LongTextThreshold {
		return p.CacheTTLLong
	}
	return p.CacheTTLShort
}

// Service is the application layer. It is the only component that references the
// cache, the analysis pipeline and the job store together.
type Service struct {
	cache     *cache.ResultCache
	pipeline  *analysis.Pipeline
	jobs      *jobs.Store
	queue     domain.JobQueue
	validator *requestValidator
	policy    Policy
	clock     clockwork.Clock
	metrics   *metrics.AnalysisMetrics
	jobsM     *metrics.JobMetrics
}

func NewService(
	resultCache *cache.ResultCache,
	pipeline *analysis.Pipeline,
	jobStore *jobs.Store,
	queue domain.JobQueue,
	policy Policy,
	clock clockwork.Clock,
	m *metrics.AnalysisMetrics,
	jm *metrics.JobMetrics,
) *Service {
	return &Service{
		cache:     resultCache,
		pipeline:  pipeline,
		jobs:      jobStore,
		queue:     queue,
		validator: newRequestValidator(),
		policy:    policy,
		clock:     clock,
		metrics:   m,
		jobsM:     jm,
	}
}

// analyze runs PII detection (when requested) and sentiment analysis for text.
func (s *Service) analyze(ctx context.Context, text, language string, opts domain.AnalysisOptions) (domain.AnalysisResult, error) {
	var result domain.AnalysisResult

	analysisText := text
	if opts.IncludePIIDetection {
		entities, err := s.pipeline.DetectPII(ctx, text, language)
		if err != nil {
			return domain.AnalysisResult{}, err
		}
		result.PIIEntities = entities
		result.PIIDetected = len(entities) > 0
		result.RedactedText = pii.Redact(text, entities)
		for _, e := range entities {
			s.metrics.PIIDetections.WithLabelValues(e.Type).Inc()
		}
		if s.policy.RedactBeforeAnalysis {
			analysisText = result.RedactedText
		}
	}

	sentiment, err := s.pipeline.Sentiment(ctx, analysisText, language)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result.Sentiment = sentiment.Sentiment
	result.Score = sentiment.Score
	result.Confidence = sentiment.Confidence
	result.Language = sentiment.Language
	result.AnalyzedAt = s.clock.Now().UTC()

	s.metrics.Sentiments.WithLabelValues(string(result.Sentiment)).Inc()
	s.metrics.Confidence.Observe(result.Confidence)
	return result, nil
}

// shape applies per-request options to a result. Cached values are never shaped.
func shape(result domain.AnalysisResult, opts domain.AnalysisOptions) domain.AnalysisResult {
	if !opts.IncludeConfidence {
		result.Confidence = 0
	}
	return result
}

// detach returns a context that survives caller cancellation but keeps its deadline,
// or fallback from now when the caller set none.
func detach(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(context.WithoutCancel(ctx), deadline)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), fallback)
}
