/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package match

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DeriveAliases returns extra spellings players are likely to type for
// name: "Series: Subtitle" yields "Series Subtitle" and "Series", and
// "The X" yields "X". Neither name itself nor duplicates are returned.
func DeriveAliases(name string) []string {
	var out []string

	add := func(s string) {
		if s == "" || s == name {
			return
		}

		for _, seen := range out {
			if seen == s {
				return
			}
		}

		out = append(out, s)
	}

	if before, _, ok := strings.Cut(name, ":"); ok {
		add(strings.ReplaceAll(name, ":", ""))
		add(strings.TrimSpace(before))
	}

	if rest, ok := cutArticle(name); ok {
		add(strings.TrimSpace(rest))
	}

	return out
}

// cutArticle strips a leading "The" followed by whitespace, in any case.
func cutArticle(name string) (string, bool) {
	const the = "the"

	if len(name) <= len(the) || !strings.EqualFold(name[:len(the)], the) {
		return name, false
	}

	r, _ := utf8.DecodeRuneInString(name[len(the):])
	if !unicode.IsSpace(r) {
		return name, false
	}

	return name[len(the):], true
}
