package extractor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold returns a lowercase, diacritic-stripped copy of s used for matching.
// Display values keep their original casing and accents; only the matching
// copy is folded.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		// Transform failures fall back to plain lowercasing; matching is
		// degraded but extraction still proceeds.
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}
