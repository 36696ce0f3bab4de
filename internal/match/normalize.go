/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize reduces a display name or a guess to the key used for
// comparison: lowercased, accents stripped, one leading "the" and the
// whitespace after it removed, punctuation dropped, whitespace collapsed.
//
// The article goes before punctuation does, so "the... Matrix" keeps its
// "the" while "The Matrix" loses it.
func Normalize(s string) string {
	s = strings.ToLower(s)

	// transform.Chain keeps state, so build one per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

	stripped, _, err := transform.String(t, s)
	if err == nil {
		s = stripped
	}

	s, _ = cutArticle(strings.TrimLeftFunc(s, unicode.IsSpace))

	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false

			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			space = true
		}
	}

	return b.String()
}
