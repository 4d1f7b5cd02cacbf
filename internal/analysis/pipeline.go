// Package analysis runs the external analyzer over texts of any accepted size.
//
// Texts longer than the chunk size are split on whitespace, each chunk goes through
// the resilience executor on its own, and the partial results are merged: sentiment
// by length-weighted vote, PII entities by shifting offsets back into the full text.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/pii"
	"github.com/roberjo/AuraStream-sub000/internal/resilience"
	"golang.org/x/sync/errgroup"
)

// SentimentTarget names the sentiment call in the resilience executor.
const SentimentTarget = "sentiment"

const chunkConcurrency = 4

var errNothingToAnalyze = errors.New("text has no analyzable content")

type Pipeline struct {
	analyzer  domain.Analyzer
	detector  *pii.Processor
	exec      *resilience.Executor
	chunkSize int
}

func NewPipeline(analyzer domain.Analyzer, exec *resilience.Executor, chunkSize int) *Pipeline {
	return &Pipeline{
		analyzer:  analyzer,
		detector:  pii.NewProcessor(analyzer, exec),
		exec:      exec,
		chunkSize: chunkSize,
	}
}

// Sentiment analyses text, chunk by chunk when it exceeds the chunk size.
func (p *Pipeline) Sentiment(ctx context.Context, text, language string) (domain.SentimentResult, error) {
	chunks := analyzable(Split(text, p.chunkSize))
	if len(chunks) == 0 {
		return domain.SentimentResult{}, errNothingToAnalyze
	}

	parts := make([]weighted, len(chunks))
	analyze := func(ctx context.Context, i int) error {
		c := chunks[i]
		res, err := resilience.Call(ctx, p.exec, SentimentTarget, func(ctx context.Context) (domain.SentimentResult, error) {
			return p.analyzer.AnalyzeSentiment(ctx, c.Text, language)
		})
		if err != nil {
			return fmt.Errorf("analyze chunk at %d: %w", c.Offset, err)
		}
		parts[i] = weighted{result: res, weight: utf8.RuneCountInString(c.Text)}
		return nil
	}

	// A breaker that is not closed admits a single trial call, so the first chunk
	// goes alone and the rest fan out only once it has closed the circuit again.
	first := 0
	if len(chunks) > 1 && p.exec.Breaker(SentimentTarget).State() != resilience.StateClosed {
		if err := analyze(ctx, 0); err != nil {
			return domain.SentimentResult{}, err
		}
		first = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)
	for i := first; i < len(chunks); i++ {
		g.Go(func() error { return analyze(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return domain.SentimentResult{}, err
	}

	if len(parts) == 1 {
		return parts[0].result, nil
	}
	return aggregate(parts), nil
}

// DetectPII returns entities with offsets into text, in start order.
func (p *Pipeline) DetectPII(ctx context.Context, text, language string) ([]domain.PIIEntity, error) {
	var entities []domain.PIIEntity
	for _, c := range analyzable(Split(text, p.chunkSize)) {
		found, err := p.detector.Detect(ctx, c.Text, language)
		if err != nil {
			return nil, err
		}
		for _, e := range found {
			e.Start += c.Offset
			e.End += c.Offset
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func analyzable(chunks []Chunk) []Chunk {
	out := chunks[:0:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			out = append(out, c)
		}
	}
	return out
}
