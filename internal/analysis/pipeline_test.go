package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAnalyzer struct {
	analyzeSentimentFn func(ctx context.Context, text, language string) (domain.SentimentResult, error)
	detectPIIFn        func(ctx context.Context, text, language string) ([]domain.PIIEntity, error)
}

func (m *mockAnalyzer) AnalyzeSentiment(ctx context.Context, text, language string) (domain.SentimentResult, error) {
	return m.analyzeSentimentFn(ctx, text, language)
}

func (m *mockAnalyzer) DetectPII(ctx context.Context, text, language string) ([]domain.PIIEntity, error) {
	return m.detectPIIFn(ctx, text, language)
}

func newExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Settings{
		Breaker:         resilience.BreakerSettings{FailureThreshold: 50, Window: time.Minute, Cooldown: 30 * time.Second},
		MaxAttempts:     2,
		BaseDelay:       time.Millisecond,
		CallTimeout:     time.Second,
		DefaultDeadline: 5 * time.Second,
	}, clockwork.NewRealClock(), nil)
}

func TestSentiment_SingleChunkPassesThrough(t *testing.T) {
	want := domain.SentimentResult{Sentiment: domain.SentimentPositive, Score: 0.91, Confidence: 0.91, Language: "en"}
	analyzer := &mockAnalyzer{
		analyzeSentimentFn: func(_ context.Context, text, language string) (domain.SentimentResult, error) {
			assert.Equal(t, "great product", text)
			assert.Equal(t, "en", language)
			return want, nil
		},
	}
	p := NewPipeline(analyzer, newExecutor(), 100)

	got, err := p.Sentiment(context.Background(), "great product", "en")

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSentiment_AggregatesChunksByLength(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	analyzer := &mockAnalyzer{
		analyzeSentimentFn: func(_ context.Context, text, _ string) (domain.SentimentResult, error) {
			mu.Lock()
			calls = append(calls, text)
			mu.Unlock()
			if strings.HasPrefix(text, "bad") {
				return domain.SentimentResult{Sentiment: domain.SentimentNegative, Score: 0.8, Confidence: 0.8, Language: "en"}, nil
			}
			return domain.SentimentResult{Sentiment: domain.SentimentPositive, Score: 0.6, Confidence: 0.6, Language: "en"}, nil
		},
	}
	p := NewPipeline(analyzer, newExecutor(), 10)

	// chunks: "bad bad b " (10), "good good " (10), "good good " (10)
	got, err := p.Sentiment(context.Background(), "bad bad b good good good good ", "")

	require.NoError(t, err)
	assert.Len(t, calls, 3)
	assert.Equal(t, domain.SentimentPositive, got.Sentiment)
	assert.InDelta(t, 2.0/3.0, got.Score, 1e-9)
	assert.InDelta(t, (0.8+0.6+0.6)/3, got.Confidence, 1e-9)
	assert.Equal(t, "en", got.Language)
}

func TestSentiment_ChunkFailureFailsWholeText(t *testing.T) {
	analyzer := &mockAnalyzer{
		analyzeSentimentFn: func(_ context.Context, text, _ string) (domain.SentimentResult, error) {
			if strings.HasPrefix(text, "bbbb") {
				return domain.SentimentResult{}, domain.NewAnalyzerError(domain.KindInvalidInput, "DetectSentiment", errors.New("bad chunk"))
			}
			return domain.SentimentResult{Sentiment: domain.SentimentNeutral}, nil
		},
	}
	p := NewPipeline(analyzer, newExecutor(), 5)

	_, err := p.Sentiment(context.Background(), "aaaa bbbb cccc", "en")

	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}

func TestSentiment_MultiChunkAfterCooldownClosesCircuit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exec := resilience.NewExecutor(resilience.Settings{
		Breaker:         resilience.BreakerSettings{FailureThreshold: 1, Window: time.Minute, Cooldown: 30 * time.Second},
		MaxAttempts:     1,
		BaseDelay:       time.Millisecond,
		CallTimeout:     time.Second,
		DefaultDeadline: 5 * time.Second,
	}, clock, nil)

	_, err := resilience.Call(context.Background(), exec, SentimentTarget, func(context.Context) (int, error) {
		return 0, domain.NewAnalyzerError(domain.KindUnavailable, "DetectSentiment", errors.New("503"))
	})
	require.Error(t, err)
	clock.Advance(30 * time.Second)
	require.Equal(t, resilience.StateHalfOpen, exec.Breaker(SentimentTarget).State())

	var calls atomic.Int32
	analyzer := &mockAnalyzer{
		analyzeSentimentFn: func(_ context.Context, _, _ string) (domain.SentimentResult, error) {
			if calls.Add(1) == 1 {
				time.Sleep(20 * time.Millisecond)
			}
			return domain.SentimentResult{Sentiment: domain.SentimentPositive, Score: 0.7, Confidence: 0.7}, nil
		},
	}
	p := NewPipeline(analyzer, exec, 10)

	got, err := p.Sentiment(context.Background(), "good good good good good good good good ", "en")

	require.NoError(t, err)
	assert.Equal(t, domain.SentimentPositive, got.Sentiment)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, resilience.StateClosed, exec.Breaker(SentimentTarget).State())
}

func TestSentiment_FailedTrialSkipsRemainingChunks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exec := resilience.NewExecutor(resilience.Settings{
		Breaker:         resilience.BreakerSettings{FailureThreshold: 1, Window: time.Minute, Cooldown: 30 * time.Second},
		MaxAttempts:     1,
		BaseDelay:       time.Millisecond,
		CallTimeout:     time.Second,
		DefaultDeadline: 5 * time.Second,
	}, clock, nil)
	unavailable := domain.NewAnalyzerError(domain.KindUnavailable, "DetectSentiment", errors.New("503"))

	_, _ = resilience.Call(context.Background(), exec, SentimentTarget, func(context.Context) (int, error) {
		return 0, unavailable
	})
	clock.Advance(30 * time.Second)

	var calls atomic.Int32
	analyzer := &mockAnalyzer{
		analyzeSentimentFn: func(_ context.Context, _, _ string) (domain.SentimentResult, error) {
			calls.Add(1)
			return domain.SentimentResult{}, unavailable
		},
	}
	p := NewPipeline(analyzer, exec, 10)

	_, err := p.Sentiment(context.Background(), "good good good good good good ", "en")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, resilience.StateOpen, exec.Breaker(SentimentTarget).State())
}

func TestSentiment_BlankText(t *testing.T) {
	p := NewPipeline(&mockAnalyzer{}, newExecutor(), 10)

	_, err := p.Sentiment(context.Background(), "   ", "en")
	assert.ErrorIs(t, err, errNothingToAnalyze)
}

func TestDetectPII_ShiftsChunkOffsets(t *testing.T) {
	analyzer := &mockAnalyzer{
		detectPIIFn: func(_ context.Context, text, _ string) ([]domain.PIIEntity, error) {
			if i := strings.Index(text, "555-0100"); i >= 0 {
				return []domain.PIIEntity{{Type: "PHONE", Start: i, End: i + 8, Confidence: 0.9}}, nil
			}
			return nil, nil
		},
	}
	p := NewPipeline(analyzer, newExecutor(), 12)

	text := "call me at  555-0100 ok"
	got, err := p.DetectPII(context.Background(), text, "en")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "555-0100", text[got[0].Start:got[0].End])
}

func TestAggregate_TieBreaksTowardNegative(t *testing.T) {
	got := aggregate([]weighted{
		{result: domain.SentimentResult{Sentiment: domain.SentimentPositive, Confidence: 0.5, Language: "en"}, weight: 10},
		{result: domain.SentimentResult{Sentiment: domain.SentimentNegative, Confidence: 0.5, Language: "es"}, weight: 10},
	})

	assert.Equal(t, domain.SentimentNegative, got.Sentiment)
	assert.InDelta(t, 0.5, got.Score, 1e-9)
	assert.Equal(t, "en", got.Language)
}
