/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package match decides whether a free-text guess names an item of a
// ranked list.
//
// Matching runs through three tiers and the first one that hits wins:
// exact key equality against names and aliases, substring containment,
// and finally an edit-distance search that only accepts candidates scoring
// strictly below the configured threshold.
package match

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Seednode/topdrop/internal/snapshot"
)

// DefaultThreshold is the fuzzy acceptance cut-off. Scores run from 0
// (identical) to 1 (nothing in common).
const DefaultThreshold = 0.30

// Tier records which strategy produced a result.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierContainment
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierContainment:
		return "containment"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Result is the outcome of a single guess.
type Result struct {
	Found      bool           `json:"found"`
	Item       *snapshot.Item `json:"item,omitempty"`
	Points     int            `json:"points"`
	ExactMatch bool           `json:"exactMatch"`
	Tier       Tier           `json:"tier"`
	Score      float64        `json:"score"`
}

type entry struct {
	item    snapshot.Item
	name    string
	aliases []string
}

// keys returns the normalized name followed by every normalized alias.
func (e *entry) keys() []string {
	return append([]string{e.name}, e.aliases...)
}

// Index holds the normalized form of one snapshot's items. It is never
// modified after NewIndex returns, so concurrent Resolve calls need no
// locking.
type Index struct {
	entries   []entry
	threshold float64
}

type Option func(*Index)

// WithThreshold overrides DefaultThreshold. Values outside (0, 1] are ignored.
func WithThreshold(threshold float64) Option {
	return func(ix *Index) {
		if threshold > 0 && threshold <= 1 {
			ix.threshold = threshold
		}
	}
}

// NewIndex normalizes every name, author alias and derived alias once.
// Items are searched in ascending rank order.
func NewIndex(items []snapshot.Item, opts ...Option) *Index {
	ix := &Index{
		entries:   make([]entry, 0, len(items)),
		threshold: DefaultThreshold,
	}

	for _, opt := range opts {
		opt(ix)
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b snapshot.Item) int {
		return cmp.Compare(a.Rank, b.Rank)
	})

	for _, it := range sorted {
		e := entry{
			item: snapshot.Item{
				Rank:    it.Rank,
				Name:    it.Name,
				Aliases: slices.Clone(it.Aliases),
			},
			name: Normalize(it.Name),
		}

		for _, alias := range append(slices.Clone(it.Aliases), DeriveAliases(it.Name)...) {
			key := Normalize(alias)
			if key == "" || slices.Contains(e.aliases, key) {
				continue
			}

			e.aliases = append(e.aliases, key)
		}

		ix.entries = append(ix.entries, e)
	}

	return ix
}

// Threshold reports the fuzzy acceptance cut-off in use.
func (ix *Index) Threshold() float64 {
	return ix.threshold
}

// Resolve matches guess against the indexed items. A blank guess or an
// empty index is simply not found.
func (ix *Index) Resolve(guess string) Result {
	key := Normalize(guess)
	if ix == nil || key == "" || len(ix.entries) == 0 {
		return Result{}
	}

	for i := range ix.entries {
		e := &ix.entries[i]
		if e.name == key || slices.Contains(e.aliases, key) {
			return found(e, TierExact, 0)
		}
	}

	for i := range ix.entries {
		e := &ix.entries[i]
		if strings.Contains(e.name, key) || slices.ContainsFunc(e.aliases, func(a string) bool {
			return strings.Contains(a, key)
		}) {
			return found(e, TierContainment, 0)
		}
	}

	best, score := ix.closest(key)
	if best == nil || score >= ix.threshold {
		return Result{}
	}

	return found(best, TierFuzzy, score)
}

// Resolve is a one-shot match with the default threshold. Callers that
// check many guesses against the same list should keep an Index instead.
func Resolve(guess string, items []snapshot.Item) Result {
	return NewIndex(items).Resolve(guess)
}

func found(e *entry, tier Tier, score float64) Result {
	item := e.item
	item.Aliases = slices.Clone(e.item.Aliases)

	return Result{
		Found:      true,
		Item:       &item,
		Points:     item.Rank,
		ExactMatch: tier == TierExact,
		Tier:       tier,
		Score:      score,
	}
}
