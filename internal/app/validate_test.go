package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	apperrors "github.com/roberjo/AuraStream-sub000/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestValidator_RegistersTranslations(t *testing.T) {
	var rv *requestValidator
	require.NotPanics(t, func() { rv = newRequestValidator() })

	_, err := rv.check(domain.AnalysisRequest{Text: "hello", LanguageHint: "xx"}, domain.ModeSync)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "language must be one of [en es fr de it pt zh ja ko ar]", appErr.Message)
	assert.Equal(t, "language", appErr.Context["field"])
	assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
}

func TestRequestValidator_TranslatesLengthRule(t *testing.T) {
	rv := newRequestValidator()

	_, err := rv.check(domain.AnalysisRequest{Text: "hello", SourceID: strings.Repeat("a", 129)}, domain.ModeSync)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "source_id must be a maximum of 128 characters in length", appErr.Message)
}
