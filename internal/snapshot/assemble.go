/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package snapshot

import (
	"slices"
	"strconv"
	"strings"
)

// Assemble turns whatever a generator produced into exactly size ranked
// items. Items keep their rank when it is in range and not yet taken; the
// rest fill the lowest free ranks in arrival order, and any ranks still
// empty get an "Item N" placeholder.
func Assemble(items []Item, size int) []Item {
	if size <= 0 {
		return []Item{}
	}

	slots := make([]*Item, size)

	var floating []Item

	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}

		if it.Rank >= 1 && it.Rank <= size && slots[it.Rank-1] == nil {
			placed := it
			slots[it.Rank-1] = &placed

			continue
		}

		floating = append(floating, it)
	}

	for i := range slots {
		if slots[i] != nil {
			continue
		}

		if len(floating) > 0 {
			placed := floating[0]
			floating = floating[1:]
			slots[i] = &placed
		} else {
			slots[i] = &Item{Name: "Item " + strconv.Itoa(i+1)}
		}
	}

	out := make([]Item, size)
	for i, it := range slots {
		aliases := slices.Clone(it.Aliases)
		if aliases == nil {
			aliases = []string{}
		}

		out[i] = Item{
			Rank:    i + 1,
			Name:    it.Name,
			Aliases: aliases,
		}
	}

	return out
}
