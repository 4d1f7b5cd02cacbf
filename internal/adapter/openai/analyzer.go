// Package openai adapts an OpenAI chat model to domain.Analyzer by asking for
// JSON answers.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/sashabaranov/go-openai"
)

const (
	sentimentPrompt = `You are a sentiment analysis system. Classify the sentiment of the text below.
Respond with a JSON object containing:
- sentiment: one of POSITIVE, NEGATIVE, NEUTRAL, MIXED
- score: number between 0 and 1 (strength of the chosen sentiment)
- confidence: number between 0 and 1 (how confident you are)
- language: ISO 639-1 code of the text's language

Text:
%s

Respond only with the JSON object and nothing else.`

	piiPrompt = `You are a PII detection system. List every piece of personally identifiable information in the text below.
Respond with a JSON object {"entities": [...]} where each entity has:
- type: one of NAME, EMAIL, PHONE, ADDRESS, SSN, CREDIT_DEBIT_NUMBER, BANK_ACCOUNT_NUMBER, IP_ADDRESS, URL, DATE_TIME, PASSWORD, OTHER
- text: the exact substring as it appears in the text
- confidence: number between 0 and 1
List entities in the order they appear.

Text:
%s

Respond only with the JSON object and nothing else.`
)

// ChatClient is the subset of *openai.Client the analyzer calls.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Analyzer struct {
	client          ChatClient
	model           string
	defaultLanguage string
}

var _ domain.Analyzer = (*Analyzer)(nil)

func New(client ChatClient, model, defaultLanguage string) *Analyzer {
	return &Analyzer{client: client, model: model, defaultLanguage: defaultLanguage}
}

// NewWithAPIKey builds the analyzer on the public API. baseURL overrides the
// endpoint when non-empty.
func NewWithAPIKey(apiKey, baseURL, model, defaultLanguage string) *Analyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return New(openai.NewClientWithConfig(cfg), model, defaultLanguage)
}

type sentimentAnswer struct {
	Sentiment  string  `json:"sentiment"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

type piiAnswer struct {
	Entities []struct {
		Type       string  `json:"type"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
}

func (a *Analyzer) AnalyzeSentiment(ctx context.Context, text, language string) (domain.SentimentResult, error) {
	const op = "sentiment completion"

	var answer sentimentAnswer
	if err := a.complete(ctx, op, fmt.Sprintf(sentimentPrompt, text), &answer); err != nil {
		return domain.SentimentResult{}, err
	}

	label, err := domain.ParseSentiment(answer.Sentiment)
	if err != nil {
		return domain.SentimentResult{}, domain.NewAnalyzerError(domain.KindUnavailable, op, err)
	}

	lang := language
	if lang == "" {
		lang = strings.ToLower(strings.TrimSpace(answer.Language))
	}
	if !domain.IsSupportedLanguage(lang) {
		lang = a.defaultLanguage
	}

	return domain.SentimentResult{
		Sentiment:  label,
		Score:      unit(answer.Score),
		Confidence: unit(answer.Confidence),
		Language:   lang,
	}, nil
}

func (a *Analyzer) DetectPII(ctx context.Context, text, _ string) ([]domain.PIIEntity, error) {
	var answer piiAnswer
	if err := a.complete(ctx, "pii completion", fmt.Sprintf(piiPrompt, text), &answer); err != nil {
		return nil, err
	}

	// The model returns substrings, not offsets. Locate each one after the
	// previous match; anything not found verbatim is dropped.
	var entities []domain.PIIEntity
	cursor := 0
	for _, e := range answer.Entities {
		if e.Text == "" {
			continue
		}
		idx := strings.Index(text[cursor:], e.Text)
		if idx < 0 {
			continue
		}
		startByte := cursor + idx
		start := utf8.RuneCountInString(text[:startByte])
		entities = append(entities, domain.PIIEntity{
			Type:       normalizeType(e.Type),
			Start:      start,
			End:        start + utf8.RuneCountInString(e.Text),
			Confidence: unit(e.Confidence),
		})
		cursor = startByte + len(e.Text)
	}
	return entities, nil
}

func (a *Analyzer) complete(ctx context.Context, op, prompt string, v any) error {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a text analysis system. Respond only with JSON."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return classify(op, err)
	}
	if len(resp.Choices) == 0 {
		return domain.NewAnalyzerError(domain.KindUnavailable, op, errors.New("empty response"))
	}

	if err := decodeJSON(resp.Choices[0].Message.Content, v); err != nil {
		return domain.NewAnalyzerError(domain.KindUnavailable, op, err)
	}
	return nil
}

// decodeJSON parses content, falling back to the outermost {...} when the model
// wrapped its answer in prose.
func decodeJSON(content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return nil
}

func normalizeType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	if t == "" {
		return "OTHER"
	}
	return strings.ReplaceAll(t, " ", "_")
}

func unit(v float64) float64 {
	return min(max(v, 0), 1)
}

// classify maps client failures onto analyzer error kinds by HTTP status.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewAnalyzerError(domain.KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewAnalyzerError(domain.KindThrottled, op, err)
	case status == http.StatusRequestTimeout:
		return domain.NewAnalyzerError(domain.KindTimeout, op, err)
	case status >= 400 && status < 500:
		return domain.NewAnalyzerError(domain.KindInvalidInput, op, err)
	default:
		return domain.NewAnalyzerError(domain.KindUnavailable, op, err)
	}
}
