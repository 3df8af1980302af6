// Package textnorm turns free-form person and file names into canonical
// comparison keys. The catalog loader, the resolver and the searcher all
// derive lookup keys through Normalize, so its steps must not be reordered.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combiningMarks is the Combining Diacritical Marks block (U+0300–U+036F).
var combiningMarks = runes.Predicate(func(r rune) bool {
	return r >= 0x0300 && r <= 0x036F
})

var punctuation = strings.NewReplacer(
	"'", "",
	"\"", "",
	"‘", "",
	"’", "",
	"“", "",
	"”", "",
	".", "",
	",", "",
	"(", "",
	")", "",
)

// Normalize lower-cases raw, folds accented letters to their base letter,
// drops quotes, periods, commas and parentheses, spells out "&" as "and" and
// collapses whitespace.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = foldDiacritics(s)
	s = punctuation.Replace(s)
	s = strings.ReplaceAll(s, "&", " and ")
	return strings.Join(strings.Fields(s), " ")
}

// foldDiacritics decomposes s (NFKD) and removes combining marks.
// Compatibility decomposition can surface upper-case letters (U+210C → "H"),
// so the result is lower-cased again to keep Normalize idempotent.
func foldDiacritics(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(combiningMarks)), s)
	if err != nil {
		return s
	}
	return strings.Map(unicode.ToLower, folded)
}

// Tokens returns the distinct whitespace-separated tokens of Normalize(raw)
// in order of first appearance.
func Tokens(raw string) []string {
	parts := strings.Split(Normalize(raw), " ")
	seen := make(map[string]struct{}, len(parts))
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		tokens = append(tokens, p)
	}
	return tokens
}
