// Package lexicon is a local, deterministic domain.Analyzer: word-list sentiment
// and pattern-based PII detection. It needs no network and backs development
// setups and tests.
package lexicon

import (
	"context"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// negationWindow is how many following words a negation flips.
const negationWindow = 3

var positiveWords = wordSet(
	"good", "great", "excellent", "amazing", "awesome", "love", "loved", "loves", "like", "liked",
	"happy", "glad", "fantastic", "wonderful", "best", "perfect", "nice", "pleased", "delighted",
	"enjoy", "enjoyed", "recommend", "helpful", "fast", "easy", "reliable", "brilliant", "superb",
	"thanks", "thank", "impressive", "satisfied", "beautiful", "smooth",
)

var negativeWords = wordSet(
	"bad", "terrible", "awful", "horrible", "hate", "hated", "hates", "worst", "poor", "sad",
	"angry", "disappointed", "disappointing", "broken", "slow", "useless", "annoying", "refund",
	"problem", "problems", "issue", "issues", "fail", "failed", "fails", "failure", "crash",
	"crashed", "bug", "bugs", "rude", "expensive", "difficult", "unhappy", "frustrating",
)

var negations = wordSet(
	"not", "no", "never", "neither", "nor", "nothing", "hardly", "barely", "without",
	"don't", "doesn't", "didn't", "isn't", "wasn't", "aren't", "weren't", "can't", "cannot",
	"won't", "wouldn't", "shouldn't", "couldn't",
)

type pattern struct {
	re         *regexp.Regexp
	entityType string
	confidence float64
}

// patterns in priority order; a span claimed by an earlier pattern is not
// reported again by a later one.
var patterns = []pattern{
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "EMAIL", 0.99},
	{regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`), "URL", 0.95},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "SSN", 0.95},
	{regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`), "CREDIT_DEBIT_NUMBER", 0.9},
	{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`), "IP_ADDRESS", 0.9},
	{regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?\(?\b\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`), "PHONE", 0.85},
}

type Analyzer struct {
	defaultLanguage string
}

var _ domain.Analyzer = (*Analyzer)(nil)

func New(defaultLanguage string) *Analyzer {
	return &Analyzer{defaultLanguage: defaultLanguage}
}

func (a *Analyzer) AnalyzeSentiment(ctx context.Context, text, language string) (domain.SentimentResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SentimentResult{}, err
	}

	pos, neg := count(words(text))
	label, score := classify(pos, neg)

	lang := language
	if lang == "" {
		lang = a.defaultLanguage
	}
	return domain.SentimentResult{
		Sentiment:  label,
		Score:      score,
		Confidence: min(0.95, 0.5+0.15*float64(pos+neg)),
		Language:   lang,
	}, nil
}

func (a *Analyzer) DetectPII(ctx context.Context, text, _ string) ([]domain.PIIEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type span struct{ start, end int }
	var claimed []span
	var entities []domain.PIIEntity

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if slices.ContainsFunc(claimed, func(c span) bool { return s.start < c.end && c.start < s.end }) {
				continue
			}
			claimed = append(claimed, s)

			start := utf8.RuneCountInString(text[:s.start])
			entities = append(entities, domain.PIIEntity{
				Type:       p.entityType,
				Start:      start,
				End:        start + utf8.RuneCountInString(text[s.start:s.end]),
				Confidence: p.confidence,
			})
		}
	}

	slices.SortFunc(entities, func(x, y domain.PIIEntity) int { return x.Start - y.Start })
	return entities, nil
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

// count tallies sentiment words; a negation flips the polarity of sentiment
// words within the next negationWindow words.
func count(ws []string) (pos, neg int) {
	flipFor := 0
	for _, w := range ws {
		if negations[w] {
			flipFor = negationWindow
			continue
		}

		polarity := 0
		switch {
		case positiveWords[w]:
			polarity = 1
		case negativeWords[w]:
			polarity = -1
		}
		if flipFor > 0 {
			flipFor--
			polarity = -polarity
		}

		switch polarity {
		case 1:
			pos++
		case -1:
			neg++
		}
	}
	return pos, neg
}

func classify(pos, neg int) (domain.Sentiment, float64) {
	total := pos + neg
	if total == 0 {
		return domain.SentimentNeutral, 0.6
	}

	balance := float64(pos-neg) / float64(total)
	strength := 0.5 + 0.5*math.Abs(balance)
	switch {
	case pos > 0 && neg > 0 && math.Abs(balance) < 0.34:
		return domain.SentimentMixed, 1 - math.Abs(balance)
	case balance > 0:
		return domain.SentimentPositive, strength
	default:
		return domain.SentimentNegative, strength
	}
}

func wordSet(ws ...string) map[string]bool {
	set := make(map[string]bool, len(ws))
	for _, w := range ws {
		set[w] = true
	}
	return set
}
