/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package match

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// minFuzzyLength keeps one-letter guesses out of the fuzzy tier.
const minFuzzyLength = 2

// closest returns the entry with the lowest distance to key. Entries are
// walked in rank order and only a strictly better score replaces the
// current best, so ties go to the lower rank.
func (ix *Index) closest(key string) (*entry, float64) {
	if utf8.RuneCountInString(key) < minFuzzyLength {
		return nil, 1
	}

	var (
		best      *entry
		bestScore = 1.0
	)

	for i := range ix.entries {
		e := &ix.entries[i]

		for _, candidate := range e.keys() {
			if candidate == "" {
				continue
			}

			if score := distance(key, candidate); score < bestScore {
				best, bestScore = e, score
			}
		}
	}

	return best, bestScore
}

// distance scores guess against candidate in [0, 1]. Besides the whole
// candidate, every run of consecutive candidate words as long as the guess
// is tried, so a misspelled "avengrs" still lands near "avengers endgame".
func distance(guess, candidate string) float64 {
	score := ratio(guess, candidate)

	guessWords := strings.Fields(guess)
	words := strings.Fields(candidate)

	for i := 0; len(guessWords) < len(words) && i+len(guessWords) <= len(words); i++ {
		window := strings.Join(words[i:i+len(guessWords)], " ")
		score = min(score, ratio(guess, window))
	}

	return score
}

func ratio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}

	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}
