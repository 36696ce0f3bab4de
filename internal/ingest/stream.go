/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/Seednode/topdrop/internal/snapshot"
)

// Kind distinguishes stream events.
type Kind int

const (
	KindStart Kind = iota
	KindItem
	KindComplete
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindItem:
		return "item"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for _, c := range []Kind{KindStart, KindItem, KindComplete, KindError} {
		if c.String() == string(text) {
			*k = c

			return nil
		}
	}

	return fmt.Errorf("unknown event type %q", text)
}

// Event is one step of an ingestion. Item events carry Item and Progress,
// Complete carries Total and Error carries Message. Total is always
// encoded so an empty Complete still reports zero.
type Event struct {
	Kind     Kind           `json:"type"`
	Item     *snapshot.Item `json:"item,omitempty"`
	Progress int            `json:"progress,omitempty"`
	Total    int            `json:"totalItems"`
	Message  string         `json:"message,omitempty"`
}

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}

// Progress is the rounded percentage of expected items seen so far.
func Progress(emitted, expected int) int {
	if expected <= 0 {
		return 0
	}

	return int(math.Round(float64(emitted) / float64(expected) * 100))
}

// Stream feeds chunks through a Parser and yields Start, one Item per
// completed element, then exactly one Complete or Error.
//
// A chunk error caused by cancellation, or a cancelled ctx, ends the stream
// with Complete and the count so far. Any other chunk error ends it with
// Error. If the consumer stops early, ranging over chunks stops too, which
// lets the producer release its upstream connection.
func Stream(ctx context.Context, chunks iter.Seq2[string, error], expected int) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !yield(Event{Kind: KindStart, Message: "generating list"}) {
			return
		}

		p := NewParser()

		for chunk, err := range chunks {
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break
				}

				p.Close()

				yield(Event{Kind: KindError, Message: err.Error()})

				return
			}

			seen := p.Emitted()

			for i, item := range p.Feed(chunk) {
				if !yield(Event{
					Kind:     KindItem,
					Item:     &item,
					Progress: Progress(seen+i+1, expected),
				}) {
					return
				}
			}

			if ctx.Err() != nil {
				break
			}
		}

		total := p.Close()

		yield(Event{
			Kind:    KindComplete,
			Total:   total,
			Message: fmt.Sprintf("generated %d items", total),
		})
	}
}

// Collect drains a stream and returns its items. The error is non-nil only
// when the stream ended with an Error event.
func Collect(events iter.Seq[Event]) ([]snapshot.Item, error) {
	var items []snapshot.Item

	for ev := range events {
		switch ev.Kind {
		case KindItem:
			items = append(items, *ev.Item)
		case KindError:
			return items, errors.New(ev.Message)
		}
	}

	return items, nil
}
