package resolver

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/textnorm"
)

// Similarity scores two names by their normalized token sets:
// |A∩B| / max(|A|, |B|). A short alias nested in a longer name still scores
// well while extra unmatched tokens on either side pull the score down.
// It is 0 when either name has no tokens. Separators such as '-' are
// compared as written, so "jane-doe" is one token; Resolver.Similarity scores
// file base names with separator folding.
func Similarity(a, b string) float64 {
	return tokenSimilarity(tokenSet(textnorm.Tokens(a)), tokenSet(textnorm.Tokens(b)))
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func tokenSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(large))
}

var separatorFolder = strings.NewReplacer("-", " ", "_", " ")

// foldSeparators turns file-name word separators into spaces so that
// "jane-doe" and "Jane Doe" compare equal.
func foldSeparators(s string) string {
	return separatorFolder.Replace(s)
}
