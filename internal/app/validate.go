package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	apperrors "github.com/roberjo/AuraStream-sub000/internal/platform/errors"
	"github.com/roberjo/AuraStream-sub000/internal/textnorm"
)

type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// newRequestValidator panics if the english translations cannot be set up.
func newRequestValidator() *requestValidator {
	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	trans, found := uni.GetTranslator("en")
	if !found {
		panic("app: no english translator for request validation")
	}

	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names, as submitters know them
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "-" || tag == "" {
			return fld.Name
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	})

	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		panic(fmt.Sprintf("app: register validation translations: %v", err))
	}

	return &requestValidator{validate: v, trans: trans}
}

// check validates req against the bound of mode and returns its fingerprint.
func (rv *requestValidator) check(req domain.AnalysisRequest, mode domain.Mode) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", apperrors.ValidationError("text is required", domain.ErrEmptyText).
			WithContext("field", "text")
	}

	if n, limit := utf8.RuneCountInString(req.Text), mode.MaxChars(); n > limit {
		return "", apperrors.ValidationError(fmt.Sprintf("text exceeds %d characters", limit), domain.ErrInputTooLarge).
			WithContext("field", "text").
			WithContext("length", n).
			WithContext("limit", limit)
	}

	if err := rv.validate.Struct(req); err != nil {
		return "", rv.toValidationError(err)
	}

	fingerprint, err := textnorm.Fingerprint(req.Text)
	if err != nil {
		return "", apperrors.ValidationError("text cannot be fingerprinted", err)
	}
	return fingerprint, nil
}

func (rv *requestValidator) toValidationError(err error) *apperrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.ValidationError("invalid request", err)
	}

	fe := verrs[0]
	cause := error(verrs)
	if fe.Field() == "language" {
		cause = fmt.Errorf("%w: %v", domain.ErrUnsupportedLanguage, fe.Value())
	}
	return apperrors.ValidationError(fe.Translate(rv.trans), cause).
		WithContext("field", fe.Field())
}
