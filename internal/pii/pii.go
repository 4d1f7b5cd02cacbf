// Package pii detects sensitive spans through the external capability and
// substitutes them with fixed placeholders.
package pii

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/resilience"
)

// Target names the PII detection call in the resilience executor.
const Target = "pii"

type Processor struct {
	analyzer domain.Analyzer
	exec     *resilience.Executor
}

func NewProcessor(analyzer domain.Analyzer, exec *resilience.Executor) *Processor {
	return &Processor{analyzer: analyzer, exec: exec}
}

// Detect returns the entities found in text, in start order, with offsets clamped
// to spans that exist in text.
func (p *Processor) Detect(ctx context.Context, text, language string) ([]domain.PIIEntity, error) {
	if text == "" {
		return nil, nil
	}

	entities, err := resilience.Call(ctx, p.exec, Target, func(ctx context.Context) ([]domain.PIIEntity, error) {
		return p.analyzer.DetectPII(ctx, text, language)
	})
	if err != nil {
		return nil, fmt.Errorf("detect pii: %w", err)
	}

	n := utf8.RuneCountInString(text)
	valid := make([]domain.PIIEntity, 0, len(entities))
	for _, e := range entities {
		if e.Start >= 0 && e.Start < e.End && e.End <= n {
			valid = append(valid, e)
		}
	}
	slices.SortStableFunc(valid, func(a, b domain.PIIEntity) int { return a.Start - b.Start })
	return valid, nil
}

// Categorize counts entities per type.
func Categorize(entities []domain.PIIEntity) map[string]int {
	categories := make(map[string]int, len(entities))
	for _, e := range entities {
		categories[e.Type]++
	}
	return categories
}

var sensitiveTypes = map[string]bool{
	"SSN":                 true,
	"CREDIT_DEBIT_NUMBER": true,
	"BANK_ACCOUNT_NUMBER": true,
	"PASSPORT_NUMBER":     true,
	"DRIVER_ID":           true,
}

func IsSensitive(entityType string) bool {
	return sensitiveTypes[entityType]
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskLevels = map[string]RiskLevel{
	"SSN":                 RiskCritical,
	"CREDIT_DEBIT_NUMBER": RiskCritical,
	"BANK_ACCOUNT_NUMBER": RiskCritical,
	"PASSPORT_NUMBER":     RiskHigh,
	"DRIVER_ID":           RiskHigh,
	"EMAIL":               RiskMedium,
	"PHONE":               RiskMedium,
	"ADDRESS":             RiskMedium,
	"NAME":                RiskLow,
	"DATE_TIME":           RiskLow,
}

// Risk defaults to medium for types without a rating.
func Risk(entityType string) RiskLevel {
	if r, ok := riskLevels[entityType]; ok {
		return r
	}
	return RiskMedium
}
