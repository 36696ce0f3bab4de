/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package generate produces the raw text of a ranked list, either all at
// once or as a stream of chunks.
package generate

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

var ErrUpstream = errors.New("upstream generator failed")

// Generator turns a prompt into text. Generate returns the whole response;
// Stream yields it in arbitrary pieces and stops early if the consumer does.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Blob presents a complete response as a stream of one chunk.
func Blob(s string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield(s, nil)
	}
}

// Classic fetches a full response and wraps it as a one-chunk stream, so
// callers can drive the same ingestion path in either mode.
func Classic(ctx context.Context, g Generator, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := g.Generate(ctx, prompt)
		if err != nil {
			yield("", err)

			return
		}

		yield(text, nil)
	}
}

const promptTemplate = `Generate a Top %d list for: %q

Output a JSON array with exactly %d items.
Each item must have this exact structure:
{"rank": number, "name": "string", "aliases": ["array", "of", "strings"]}

Put the best-known items at the top. Keep each name concise and include one or two common aliases.

Output ONLY the JSON array, no other text.`

// Prompt asks for count items of category as a bare JSON array.
func Prompt(category string, count int) string {
	return fmt.Sprintf(promptTemplate, count, category, count)
}
