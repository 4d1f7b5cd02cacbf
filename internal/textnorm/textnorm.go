// Package textnorm canonicalizes text before fingerprinting so trivially different
// submissions (case, spacing, composed vs decomposed accents) share a cache entry.
//
// Pipeline order
// 1 drop invalid UTF-8 bytes
// 2 NFC composition
// 3 strip format characters (zero-width joiners, BOM)
// 4 locale-independent lower-casing
// 5 collapse whitespace runs to single spaces and trim
package textnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxChars is the hard ceiling on fingerprintable input, in code points.
const MaxChars = domain.MaxAsyncChars

var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFC,
			runes.Remove(runes.In(unicode.Cf)),
			cases.Lower(language.Und),
		)
	},
}

// Normalize is pure and safe for concurrent use.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToValidUTF8(text, "")

	tr := chainPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, text)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		// transform.String only fails on malformed input, which ToValidUTF8 already removed
		out = strings.ToLower(text)
	}

	return strings.Join(strings.FieldsFunc(out, unicode.IsSpace), " ")
}

// Fingerprint returns the hex SHA-256 of the normalized text.
func Fingerprint(text string) (string, error) {
	if n := utf8.RuneCountInString(text); n > MaxChars {
		return "", fmt.Errorf("%w: %d characters, limit %d", domain.ErrInputTooLarge, n, MaxChars)
	}
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:]), nil
}
