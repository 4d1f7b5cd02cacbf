package analysis

import "github.com/roberjo/AuraStream-sub000/internal/domain"

type weighted struct {
	result domain.SentimentResult
	weight int
}

// labelOrder breaks ties between equally weighted labels.
var labelOrder = []domain.Sentiment{
	domain.SentimentNegative,
	domain.SentimentPositive,
	domain.SentimentMixed,
	domain.SentimentNeutral,
}

// aggregate merges per-chunk results. The winning label is the one with the largest
// total weight, its score is that weight's share of the whole, confidence is the
// weighted mean and language the one covering most of the text.
func aggregate(parts []weighted) domain.SentimentResult {
	var (
		total      int
		confidence float64
		byLabel    = make(map[domain.Sentiment]int)
		byLanguage = make(map[string]int)
		languages  []string
	)
	for _, p := range parts {
		total += p.weight
		confidence += p.result.Confidence * float64(p.weight)
		byLabel[p.result.Sentiment] += p.weight
		if _, seen := byLanguage[p.result.Language]; !seen {
			languages = append(languages, p.result.Language)
		}
		byLanguage[p.result.Language] += p.weight
	}
	if total == 0 {
		return domain.SentimentResult{Sentiment: domain.SentimentNeutral}
	}

	winner := labelOrder[0]
	for _, label := range labelOrder[1:] {
		if byLabel[label] > byLabel[winner] {
			winner = label
		}
	}

	language := languages[0]
	for _, l := range languages[1:] {
		if byLanguage[l] > byLanguage[language] {
			language = l
		}
	}

	return domain.SentimentResult{
		Sentiment:  winner,
		Score:      float64(byLabel[winner]) / float64(total),
		Confidence: confidence / float64(total),
		Language:   language,
	}
}
