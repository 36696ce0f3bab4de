/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package snapshot holds the locked, checksummed ranked lists that a round
// of Top Drop is played against, and the stores that keep them.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSize is the length of a full list.
const DefaultSize = 100

var (
	ErrNotFound         = errors.New("snapshot not found")
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	ErrInvalidItems     = errors.New("invalid snapshot items")
)

// Item is a single entry of a ranked list. Rank doubles as its point value.
type Item struct {
	Rank    int      `json:"rank"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// Snapshot is an immutable ranked list generated once per round.
type Snapshot struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	Checksum  string    `json:"checksum"`
	Locked    bool      `json:"locked"`
}

// ValidSize reports whether n is one of the supported list lengths.
func ValidSize(n int) bool {
	switch n {
	case 30, 50, 100:
		return true
	}

	return false
}

// New validates items and returns a locked snapshot. The items are copied,
// so later changes to the caller's slice cannot reach the snapshot.
func New(title string, items []Item) (*Snapshot, error) {
	if err := validate(items); err != nil {
		return nil, err
	}

	owned := cloneItems(items)

	sum, err := Checksum(owned)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Items:     owned,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Checksum:  sum,
		Locked:    true,
	}, nil
}

// Checksum returns the hex SHA-256 of the JSON encoding of items.
func Checksum(items []Item) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding items: %w", err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the checksum and compares it with the recorded one.
func (s *Snapshot) Verify() error {
	sum, err := Checksum(s.Items)
	if err != nil {
		return err
	}

	if sum != s.Checksum {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, s.ID)
	}

	return nil
}

// Size is the number of ranked items in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.Items)
}

func validate(items []Item) error {
	if !ValidSize(len(items)) {
		return fmt.Errorf("%w: got %d items, want 30, 50 or 100", ErrInvalidItems, len(items))
	}

	for i, it := range items {
		if it.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrInvalidItems, i+1, it.Rank)
		}

		if strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("%w: rank %d has no name", ErrInvalidItems, it.Rank)
		}
	}

	return nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		aliases := slices.Clone(it.Aliases)
		if aliases == nil {
			aliases = []string{}
		}

		out[i] = Item{
			Rank:    it.Rank,
			Name:    it.Name,
			Aliases: aliases,
		}
	}

	return out
}
