package nlu

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s after composing it to NFC, so that precomposed and
// decomposed Arabic letters (أ vs ا + hamza) compare equal.
// A Caser is stateful, hence one per call.
func Fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

func containsAny(s string, needles []keyword) (keyword, bool) {
	for _, n := range needles {
		if strings.Contains(s, n.folded) {
			return n, true
		}
	}
	return keyword{}, false
}
