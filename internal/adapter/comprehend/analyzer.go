// Package comprehend adapts Amazon Comprehend to domain.Analyzer.
package comprehend

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/aws/smithy-go"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// API is the subset of *comprehend.Client the analyzer calls.
type API interface {
	DetectSentiment(ctx context.Context, in *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
	DetectPiiEntities(ctx context.Context, in *comprehend.DetectPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error)
	DetectDominantLanguage(ctx context.Context, in *comprehend.DetectDominantLanguageInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectDominantLanguageOutput, error)
}

type Analyzer struct {
	api             API
	defaultLanguage string
}

var _ domain.Analyzer = (*Analyzer)(nil)

func New(api API, defaultLanguage string) *Analyzer {
	return &Analyzer{api: api, defaultLanguage: defaultLanguage}
}

// NewFromConfig builds a Comprehend client from the default AWS credential chain.
// The SDK's own retryer is disabled; the resilience executor owns retries.
func NewFromConfig(ctx context.Context, region, defaultLanguage string) (*Analyzer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := comprehend.NewFromConfig(cfg, func(o *comprehend.Options) {
		o.Retryer = aws.NopRetryer{}
	})
	return New(client, defaultLanguage), nil
}

func (a *Analyzer) AnalyzeSentiment(ctx context.Context, text, language string) (domain.SentimentResult, error) {
	lang, err := a.language(ctx, text, language)
	if err != nil {
		return domain.SentimentResult{}, err
	}

	out, err := a.api.DetectSentiment(ctx, &comprehend.DetectSentimentInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(lang),
	})
	if err != nil {
		return domain.SentimentResult{}, classify("DetectSentiment", err)
	}

	label, err := domain.ParseSentiment(string(out.Sentiment))
	if err != nil {
		return domain.SentimentResult{}, domain.NewAnalyzerError(domain.KindUnavailable, "DetectSentiment", err)
	}

	// Comprehend reports one probability per label; the winner's doubles as confidence.
	score := winningScore(label, out.SentimentScore)
	return domain.SentimentResult{
		Sentiment:  label,
		Score:      score,
		Confidence: score,
		Language:   lang,
	}, nil
}

func (a *Analyzer) DetectPII(ctx context.Context, text, language string) ([]domain.PIIEntity, error) {
	lang := language
	if lang == "" {
		lang = a.defaultLanguage
	}

	out, err := a.api.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(lang),
	})
	if err != nil {
		return nil, classify("DetectPiiEntities", err)
	}

	// Offsets are code points, which is what domain.PIIEntity expects.
	n := utf8.RuneCountInString(text)
	entities := make([]domain.PIIEntity, 0, len(out.Entities))
	for _, e := range out.Entities {
		start := clamp(int(aws.ToInt32(e.BeginOffset)), n)
		end := clamp(int(aws.ToInt32(e.EndOffset)), n)
		if end <= start {
			continue
		}
		entities = append(entities, domain.PIIEntity{
			Type:       string(e.Type),
			Start:      start,
			End:        end,
			Confidence: float64(aws.ToFloat32(e.Score)),
		})
	}
	return entities, nil
}

// language resolves the hint, falling back to dominant-language detection and
// then to the default when detection names a language we do not support.
func (a *Analyzer) language(ctx context.Context, text, hint string) (string, error) {
	if hint != "" {
		return hint, nil
	}

	out, err := a.api.DetectDominantLanguage(ctx, &comprehend.DetectDominantLanguageInput{Text: aws.String(text)})
	if err != nil {
		return "", classify("DetectDominantLanguage", err)
	}

	best, bestScore := "", float32(-1)
	for _, l := range out.Languages {
		if s := aws.ToFloat32(l.Score); s > bestScore {
			best, bestScore = aws.ToString(l.LanguageCode), s
		}
	}
	if !domain.IsSupportedLanguage(best) {
		return a.defaultLanguage, nil
	}
	return best, nil
}

func winningScore(label domain.Sentiment, s *types.SentimentScore) float64 {
	if s == nil {
		return 0
	}
	var v *float32
	switch label {
	case domain.SentimentPositive:
		v = s.Positive
	case domain.SentimentNegative:
		v = s.Negative
	case domain.SentimentNeutral:
		v = s.Neutral
	case domain.SentimentMixed:
		v = s.Mixed
	}
	return float64(aws.ToFloat32(v))
}

func clamp(v, n int) int {
	return min(max(v, 0), n)
}

// classify maps SDK failures onto analyzer error kinds.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewAnalyzerError(domain.KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.NewAnalyzerError(domain.KindUnavailable, op, err)
	}

	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		return domain.NewAnalyzerError(domain.KindThrottled, op, err)
	case "UnsupportedLanguageException":
		return domain.NewAnalyzerError(domain.KindUnsupportedLanguage, op, err)
	case "TextSizeLimitExceededException", "InvalidRequestException", "ValidationException":
		return domain.NewAnalyzerError(domain.KindInvalidInput, op, err)
	case "InternalServerException", "ServiceUnavailableException":
		return domain.NewAnalyzerError(domain.KindUnavailable, op, err)
	}

	if apiErr.ErrorFault() == smithy.FaultClient {
		return domain.NewAnalyzerError(domain.KindInvalidInput, op, err)
	}
	return domain.NewAnalyzerError(domain.KindUnavailable, op, err)
}
