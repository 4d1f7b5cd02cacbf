package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSentiment(t *testing.T) {
	s, err := ParseSentiment(" positive ")
	require.NoError(t, err)
	assert.Equal(t, SentimentPositive, s)

	s, err = ParseSentiment("MIXED")
	require.NoError(t, err)
	assert.Equal(t, SentimentMixed, s)

	_, err = ParseSentiment("ecstatic")
	assert.Error(t, err)
}

func TestMode_MaxChars(t *testing.T) {
	assert.Equal(t, 5000, ModeSync.MaxChars())
	assert.Equal(t, 1048576, ModeAsync.MaxChars())
}

func TestIsSupportedLanguage(t *testing.T) {
	assert.True(t, IsSupportedLanguage("en"))
	assert.True(t, IsSupportedLanguage("ja"))
	assert.False(t, IsSupportedLanguage("xx"))
	assert.False(t, IsSupportedLanguage(""))
}

func TestAnalyzerError_Transient(t *testing.T) {
	tests := []struct {
		kind AnalyzerErrorKind
		want bool
	}{
		{KindTimeout, true},
		{KindThrottled, true},
		{KindUnavailable, true},
		{KindInvalidInput, false},
		{KindUnsupportedLanguage, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := NewAnalyzerError(tt.kind, "detect_sentiment", errors.New("boom"))
			assert.Equal(t, tt.want, err.Transient())
			assert.Equal(t, tt.want, IsTransient(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	assert.False(t, IsTransient(errors.New("plain")))
}
