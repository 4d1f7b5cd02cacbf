package pii

import (
	"slices"
	"strings"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

var placeholders = map[string]string{
	"NAME":                "[NAME]",
	"EMAIL":               "[EMAIL]",
	"PHONE":               "[PHONE]",
	"SSN":                 "[SSN]",
	"CREDIT_DEBIT_NUMBER": "[CARD_NUMBER]",
	"ADDRESS":             "[ADDRESS]",
	"DATE_TIME":           "[DATE]",
	"PASSPORT_NUMBER":     "[PASSPORT]",
	"DRIVER_ID":           "[DRIVER_ID]",
	"BANK_ACCOUNT_NUMBER": "[ACCOUNT_NUMBER]",
	"BANK_ROUTING":        "[ROUTING_NUMBER]",
	"IP_ADDRESS":          "[IP_ADDRESS]",
	"MAC_ADDRESS":         "[MAC_ADDRESS]",
	"URL":                 "[URL]",
}

const defaultPlaceholder = "[REDACTED]"

// Placeholder returns the fixed marker substituted for entityType.
func Placeholder(entityType string) string {
	if p, ok := placeholders[entityType]; ok {
		return p
	}
	return defaultPlaceholder
}

// Redact replaces every entity span with its placeholder. Offsets are rune offsets
// into text. Overlaps keep the higher-confidence entity, then the longer span.
//
// Redacting the output again with the same entities returns it unchanged: text in
// which every placeholder sits where an earlier redaction would have put it, and
// which the offsets cannot describe as original text, is returned as is. When both
// readings fit, text is treated as original and every span is replaced.
func Redact(text string, entities []domain.PIIEntity) string {
	if len(entities) == 0 || text == "" {
		return text
	}

	src := []rune(text)
	spans := resolveOverlaps(wellFormed(entities))
	if len(spans) == 0 {
		return text
	}
	if alreadyRedacted(src, spans) {
		return text
	}

	// descending pass: copy unaffected ranges and placeholders into a new buffer
	tail := len(src)
	parts := make([]string, 0, 2*len(spans)+1)
	for i := len(spans) - 1; i >= 0; i-- {
		e := spans[i]
		if e.End > tail {
			continue
		}
		parts = append(parts, string(src[e.End:tail]), Placeholder(e.Type))
		tail = e.Start
	}
	parts = append(parts, string(src[:tail]))
	slices.Reverse(parts)
	return strings.Join(parts, "")
}

// alreadyRedacted reports whether src reads as the output of redacting spans. Every
// placeholder must sit at its span's start shifted by the length change of the
// spans before it, and at least one span must fail to describe src as original
// text: it runs past the end, or it does not start with its own placeholder.
func alreadyRedacted(src []rune, spans []domain.PIIEntity) bool {
	shift := 0
	originalFits := true
	for _, e := range spans {
		ph := []rune(Placeholder(e.Type))
		if !hasPrefixAt(src, e.Start+shift, ph) {
			return false
		}
		shift += len(ph) - (e.End - e.Start)
		if e.End > len(src) || !hasPrefixAt(src[:e.End], e.Start, ph) {
			originalFits = false
		}
	}
	return !originalFits
}

func hasPrefixAt(src []rune, at int, prefix []rune) bool {
	if at < 0 || at+len(prefix) > len(src) {
		return false
	}
	return slices.Equal(src[at:at+len(prefix)], prefix)
}

func wellFormed(entities []domain.PIIEntity) []domain.PIIEntity {
	out := make([]domain.PIIEntity, 0, len(entities))
	for _, e := range entities {
		if e.Start >= 0 && e.Start < e.End {
			out = append(out, e)
		}
	}
	return out
}

// resolveOverlaps returns non-overlapping entities sorted by start.
func resolveOverlaps(entities []domain.PIIEntity) []domain.PIIEntity {
	ranked := slices.Clone(entities)
	slices.SortStableFunc(ranked, func(a, b domain.PIIEntity) int {
		switch {
		case a.Confidence != b.Confidence:
			if a.Confidence > b.Confidence {
				return -1
			}
			return 1
		case a.End-a.Start != b.End-b.Start:
			return (b.End - b.Start) - (a.End - a.Start)
		default:
			return a.Start - b.Start
		}
	})

	kept := make([]domain.PIIEntity, 0, len(ranked))
	for _, candidate := range ranked {
		if !slices.ContainsFunc(kept, func(k domain.PIIEntity) bool {
			return candidate.Start < k.End && k.Start < candidate.End
		}) {
			kept = append(kept, candidate)
		}
	}

	slices.SortFunc(kept, func(a, b domain.PIIEntity) int { return a.Start - b.Start })
	return kept
}
