/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/Seednode/topdrop/internal/snapshot"
)

// mockChunkSize roughly matches the size of a model token.
const mockChunkSize = 12

// Mock produces a predictable list without any network access. The prompt
// is ignored; the list is derived from Category and Count.
type Mock struct {
	Category string
	Count    int
	// Delay is slept between streamed chunks.
	Delay time.Duration
}

func NewMock(category string, count int) *Mock {
	return &Mock{Category: category, Count: count}
}

func (m *Mock) String() string {
	return "mock"
}

func mockPrefix(category string) string {
	category = strings.ToLower(category)

	for _, p := range []string{"song", "movie", "game", "country", "food"} {
		if strings.Contains(category, p) {
			return strings.ToUpper(p[:1]) + p[1:]
		}
	}

	return "Item"
}

// Items returns the mock list.
func (m *Mock) Items() []snapshot.Item {
	count := m.Count
	if count <= 0 {
		count = snapshot.DefaultSize
	}

	prefix := mockPrefix(m.Category)
	items := make([]snapshot.Item, count)

	for i := range items {
		n := i + 1

		items[i] = snapshot.Item{
			Rank: n,
			Name: fmt.Sprintf("%s #%d", prefix, n),
			Aliases: []string{
				fmt.Sprintf("%s%d", strings.ToLower(prefix), n),
				fmt.Sprintf("%s Number %d", prefix, n),
			},
		}
	}

	return items
}

func (m *Mock) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b, err := json.Marshal(m.Items())
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func (m *Mock) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := m.Generate(ctx, prompt)
		if err != nil {
			yield("", err)

			return
		}

		for i := 0; i < len(text); i += mockChunkSize {
			if i > 0 && m.Delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())

					return
				case <-time.After(m.Delay):
				}
			}

			if !yield(text[i:min(i+mockChunkSize, len(text))], nil) {
				return
			}
		}
	}
}
