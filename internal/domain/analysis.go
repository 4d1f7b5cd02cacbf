package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	MaxSyncChars  = 5000
	MaxAsyncChars = 1 << 20
)

// SupportedLanguages lists the language hints accepted by the analyzers.
var SupportedLanguages = []string{"en", "es", "fr", "de", "it", "pt", "zh", "ja", "ko", "ar"}

func IsSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentMixed    Sentiment = "MIXED"
)

var sentiments = []Sentiment{SentimentPositive, SentimentNegative, SentimentNeutral, SentimentMixed}

// ParseSentiment accepts labels in any case.
func ParseSentiment(s string) (Sentiment, error) {
	upper := Sentiment(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range sentiments {
		if upper == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown sentiment label %q", s)
}

type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// MaxChars returns the size bound for the mode, in Unicode code points.
func (m Mode) MaxChars() int {
	if m == ModeAsync {
		return MaxAsyncChars
	}
	return MaxSyncChars
}

type AnalysisOptions struct {
	IncludeConfidence   bool `json:"include_confidence"`
	IncludePIIDetection bool `json:"include_pii_detection"`
}

func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{IncludeConfidence: true, IncludePIIDetection: true}
}

type AnalysisRequest struct {
	Text         string          `json:"text" validate:"required"`
	LanguageHint string          `json:"language,omitempty" validate:"omitempty,oneof=en es fr de it pt zh ja ko ar"`
	SourceID     string          `json:"source_id,omitempty" validate:"omitempty,max=128,printascii"`
	Options      AnalysisOptions `json:"options"`
}

// PIIEntity is a detected span. Start and End are rune offsets into the text the
// detector was given, End exclusive.
type PIIEntity struct {
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SentimentResult is what the external capability returns for one text.
type SentimentResult struct {
	Sentiment  Sentiment `json:"sentiment"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Language   string    `json:"language"`
}

// AnalysisResult is the cached outcome of analysing one text.
type AnalysisResult struct {
	Sentiment    Sentiment   `json:"sentiment"`
	Score        float64     `json:"score"`
	Confidence   float64     `json:"confidence"`
	Language     string      `json:"language"`
	PIIDetected  bool        `json:"pii_detected"`
	PIIEntities  []PIIEntity `json:"pii_entities,omitempty"`
	RedactedText string      `json:"redacted_text,omitempty"`
	AnalyzedAt   time.Time   `json:"analyzed_at"`
}

// AnalysisResponse decorates a result with per-request facts that are never cached.
type AnalysisResponse struct {
	AnalysisResult
	CacheHit  bool          `json:"cache_hit"`
	Elapsed   time.Duration `json:"processing_time"`
	RequestID string        `json:"request_id"`
}

// Analyzer is the external sentiment/PII capability. Implementations return
// *AnalyzerError so callers can tell transient from permanent failures.
type Analyzer interface {
	AnalyzeSentiment(ctx context.Context, text, language string) (SentimentResult, error)
	DetectPII(ctx context.Context, text, language string) ([]PIIEntity, error)
}
