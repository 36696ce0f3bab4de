/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package ingest assembles ranked list items out of a JSON array that
// arrives a few characters at a time, emitting each item as soon as its
// closing brace is seen.
package ingest

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/Seednode/topdrop/internal/snapshot"
)

// MaxObjectSize caps the raw text kept for a single array element. Larger
// elements are skipped.
const MaxObjectSize = 64 << 10

// State is the parser's position in the input.
type State int

const (
	// Seeking discards input until the opening '['.
	Seeking State = iota
	// Scanning tracks brace depth and collects the current element.
	Scanning
	// ObjectComplete is held while a closed element is decoded.
	ObjectComplete
	// Terminal is reached once, when the input is exhausted.
	Terminal
)

func (s State) String() string {
	switch s {
	case Seeking:
		return "seeking"
	case Scanning:
		return "scanning"
	case ObjectComplete:
		return "object-complete"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Parser is a push-driven state machine over arbitrary text chunks. Chunk
// boundaries need not line up with JSON tokens; state carries over between
// Feed calls. A Parser is not safe for concurrent use.
//
// Depth is tracked over the whole array element, so nested objects belong
// to the item that contains them. Braces inside string literals are not
// counted.
//
// A stray quote would otherwise hide every later element inside one long
// string. While in a string, a '}' followed by ',' and '{', or by ']', with
// only whitespace between them, is taken as the end of the element; the
// broken element fails to decode and scanning restarts at the '{'.
type Parser struct {
	state    State
	depth    int
	inString bool
	escaped  bool
	overflow bool
	buf      []byte
	emitted  int

	// resync tracks a possible element boundary seen inside a string.
	resync resyncState
	cut    int
	replay bool
}

type resyncState int

const (
	resyncNone resyncState = iota
	resyncBrace
	resyncComma
)

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) State() State {
	return p.state
}

// Emitted is the number of items produced so far.
func (p *Parser) Emitted() int {
	return p.emitted
}

// Feed consumes chunk and returns the items it completed, in order.
func (p *Parser) Feed(chunk string) []snapshot.Item {
	var out []snapshot.Item

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		switch p.state {
		case Terminal:
			return out
		case Seeking:
			if c == '[' {
				p.state = Scanning
			}
		case Scanning:
			if !p.scan(c) {
				continue
			}

			p.state = ObjectComplete

			if item, ok := p.decode(); ok {
				out = append(out, item)
			}

			p.reset()
			p.state = Scanning

			if p.replay {
				p.replay = false
				i--
			}
		}
	}

	return out
}

// Close moves the parser to Terminal, drops any unfinished element and
// returns the number of items emitted. Later calls are no-ops.
func (p *Parser) Close() int {
	p.reset()
	p.state = Terminal

	return p.emitted
}

// Parse runs a complete text through a fresh parser.
func Parse(text string) []snapshot.Item {
	p := NewParser()
	items := p.Feed(text)
	p.Close()

	return items
}

// scan advances over one byte while Scanning and reports whether it closed
// an array element. JSON structural characters are all ASCII and never
// appear inside a multi-byte UTF-8 sequence, so bytes suffice.
func (p *Parser) scan(c byte) bool {
	if p.depth == 0 {
		if c == '{' {
			p.depth = 1
			p.write(c)
		}

		return false
	}

	p.write(c)

	if p.inString {
		if p.boundary(c) {
			return true
		}

		switch {
		case p.escaped:
			p.escaped = false
		case c == '\\':
			p.escaped = true
		case c == '"':
			p.inString = false
			p.resync = resyncNone
		}

		return false
	}

	switch c {
	case '"':
		p.inString = true
	case '{':
		p.depth++
	case '}':
		p.depth--

		return p.depth == 0
	}

	return false
}

// boundary watches string content for "}" "," "{" or "}" "]" and, once
// seen, cuts the element back to the '}' and asks Feed to replay c.
func (p *Parser) boundary(c byte) bool {
	if p.escaped {
		p.resync = resyncNone

		return false
	}

	switch {
	case c == '}':
		p.resync = resyncBrace
		p.cut = len(p.buf)
	case c == ' ' || c == '\t' || c == '\n' || c == '\r':
	case c == ',' && p.resync == resyncBrace:
		p.resync = resyncComma
	case (c == '{' && p.resync == resyncComma) || (c == ']' && p.resync == resyncBrace):
		if !p.overflow && p.cut <= len(p.buf) {
			p.buf = p.buf[:p.cut]
		}

		p.replay = true

		return true
	default:
		p.resync = resyncNone
	}

	return false
}

func (p *Parser) write(c byte) {
	if p.overflow {
		return
	}

	if len(p.buf) >= MaxObjectSize {
		p.overflow = true
		p.buf = p.buf[:0]

		return
	}

	p.buf = append(p.buf, c)
}

func (p *Parser) reset() {
	p.depth = 0
	p.inString = false
	p.escaped = false
	p.overflow = false
	p.buf = p.buf[:0]
	p.resync = resyncNone
	p.cut = 0
}

// decode turns the closed element into an item. Anything unusable is
// dropped without complaint.
func (p *Parser) decode() (snapshot.Item, bool) {
	if p.overflow {
		return snapshot.Item{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(p.buf, &fields); err != nil {
		return snapshot.Item{}, false
	}

	var name string
	if err := json.Unmarshal(fields["name"], &name); err != nil || strings.TrimSpace(name) == "" {
		return snapshot.Item{}, false
	}

	rank := p.emitted + 1

	var n float64
	if raw, ok := fields["rank"]; ok && json.Unmarshal(raw, &n) == nil && n >= 1 && n == math.Trunc(n) && n <= math.MaxInt32 {
		rank = int(n)
	}

	var aliases []string
	if err := json.Unmarshal(fields["aliases"], &aliases); err != nil || aliases == nil {
		aliases = []string{}
	}

	p.emitted++

	return snapshot.Item{
		Rank:    rank,
		Name:    name,
		Aliases: aliases,
	}, true
}
