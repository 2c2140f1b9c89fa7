// Package screening implements name normalization, fuzzy scoring and risk tiers
// used to compare candidate names against a watchlist.
package screening

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Transliterate folds a name to its closest ASCII form. Accents and
// compatibility forms are decomposed first; the remaining non-ASCII runes,
// including Cyrillic, Greek and CJK, are romanized. Runes with no romanization
// are dropped.
func Transliterate(s string) string {
	if isASCII(s) {
		return s
	}
	// Transformers carry state, so a fresh chain is built per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	if isASCII(out) {
		return out
	}
	return unidecode.Unidecode(out)
}

// Normalize returns the canonical comparison form of a name: ASCII-folded,
// lower-cased, with every character outside [a-z0-9] turned into a single
// space and surrounding whitespace trimmed. It never fails and is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(Transliterate(s))

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
