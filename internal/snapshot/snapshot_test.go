/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package snapshot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			Rank:    i + 1,
			Name:    fmt.Sprintf("Entry %d", i+1),
			Aliases: []string{fmt.Sprintf("e%d", i+1)},
		}
	}

	return items
}

func TestNew(t *testing.T) {
	for _, size := range []int{30, 50, 100} {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			s, err := New("  Best Things  ", rankedItems(size))
			require.NoError(t, err)

			assert.NotEmpty(t, s.ID)
			assert.Equal(t, "Best Things", s.Title)
			assert.Equal(t, size, s.Size())
			assert.True(t, s.Locked)
			assert.Len(t, s.Checksum, 64)
			assert.NoError(t, s.Verify())
		})
	}
}

func TestNewRejectsBadItems(t *testing.T) {
	gap := rankedItems(100)
	gap[41].Rank = 43

	unnamed := rankedItems(100)
	unnamed[9].Name = "   "

	unsorted := rankedItems(30)
	unsorted[0], unsorted[1] = unsorted[1], unsorted[0]

	tests := []struct {
		name  string
		items []Item
	}{
		{"empty", nil},
		{"wrong size", rankedItems(99)},
		{"rank gap", gap},
		{"blank name", unnamed},
		{"unsorted", unsorted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("x", tc.items)
			assert.ErrorIs(t, err, ErrInvalidItems)
		})
	}
}

func TestNewCopiesItems(t *testing.T) {
	items := rankedItems(30)

	s, err := New("copy", items)
	require.NoError(t, err)

	items[0].Name = "changed"
	items[1].Aliases[0] = "changed"

	assert.Equal(t, "Entry 1", s.Items[0].Name)
	assert.Equal(t, "e2", s.Items[1].Aliases[0])
	assert.NoError(t, s.Verify())
}

func TestVerifyDetectsDivergence(t *testing.T) {
	s, err := New("tamper", rankedItems(50))
	require.NoError(t, err)

	s.Items[3].Name = "Something else"

	assert.ErrorIs(t, s.Verify(), ErrChecksumMismatch)
}

func TestChecksumIsContentAddressed(t *testing.T) {
	a, err := Checksum(rankedItems(30))
	require.NoError(t, err)

	b, err := Checksum(rankedItems(30))
	require.NoError(t, err)

	other := rankedItems(30)
	other[29].Aliases = nil

	c, err := Checksum(other)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAssemble(t *testing.T) {
	t.Run("keeps valid ranks and pads gaps", func(t *testing.T) {
		got := Assemble([]Item{
			{Rank: 2, Name: "B"},
			{Rank: 1, Name: "A", Aliases: []string{"a"}},
		}, 30)

		require.Len(t, got, 30)
		assert.Equal(t, Item{Rank: 1, Name: "A", Aliases: []string{"a"}}, got[0])
		assert.Equal(t, "B", got[1].Name)
		assert.Equal(t, "Item 3", got[2].Name)
		assert.Equal(t, "Item 30", got[29].Name)
		assert.Equal(t, []string{}, got[29].Aliases)
	})

	t.Run("duplicate and out of range ranks float into free slots", func(t *testing.T) {
		got := Assemble([]Item{
			{Rank: 1, Name: "First"},
			{Rank: 1, Name: "Second"},
			{Rank: 400, Name: "Far"},
			{Rank: 0, Name: "Unranked"},
			{Rank: 3, Name: "Third"},
		}, 30)

		assert.Equal(t, "First", got[0].Name)
		assert.Equal(t, "Second", got[1].Name)
		assert.Equal(t, "Third", got[2].Name)
		assert.Equal(t, "Far", got[3].Name)
		assert.Equal(t, "Unranked", got[4].Name)
		assert.Equal(t, "Item 6", got[5].Name)
	})

	t.Run("drops blank names and surplus", func(t *testing.T) {
		items := append([]Item{{Rank: 1, Name: " "}}, rankedItems(40)...)

		got := Assemble(items, 30)

		require.Len(t, got, 30)
		assert.Equal(t, "Entry 1", got[0].Name)
		assert.Equal(t, "Entry 30", got[29].Name)
	})

	t.Run("result always builds a snapshot", func(t *testing.T) {
		_, err := New("assembled", Assemble(nil, 50))
		assert.NoError(t, err)
	})
}
