/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package scrape pulls a ranked list out of an HTML table, for categories
// that already have a well-known published ranking.
package scrape

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Seednode/topdrop/internal/snapshot"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	UserAgent = "TopDrop/1.0 (+https://github.com/Seednode/topdrop)"

	// minRows is the smallest table worth inspecting.
	minRows = 5
	// minParsed is the smallest number of usable rows worth ranking.
	minParsed = 10

	maxPageSize = 10 << 20
)

var ErrNoRankedTable = errors.New("no ranked table found")

var (
	footnote   = regexp.MustCompile(`\[[^\]]*?\]`)
	whitespace = regexp.MustCompile(`\s+`)
	digits     = regexp.MustCompile(`\d{1,3}`)
	numberWord = regexp.MustCompile(`^no\b`)

	nameKeywords = []string{
		"title", "film", "movie", "song", "name", "artist",
		"album", "game", "book", "series", "track",
	}
)

type row struct {
	rank int
	name string
}

// Fetch downloads a page for ExtractRanked.
func Fetch(ctx context.Context, client *http.Client, pageURL string) ([]byte, error) {
	if strings.HasPrefix(pageURL, "//") {
		pageURL = "https:" + pageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: new request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("scrape: read body: %w", err)
	}

	return body, nil
}

// ExtractRanked returns up to limit items from the first wikitable or
// sortable table that yields at least limit/2 usable ranks. Explicit ranks
// from a rank column are kept, deduplicated and limited to 1..limit. Without
// a rank column, ranks follow row order.
func ExtractRanked(r io.Reader, limit int) ([]snapshot.Item, error) {
	if limit <= 0 {
		limit = snapshot.DefaultSize
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse: %w", err)
	}

	for _, table := range findAll(doc, atom.Table) {
		if !hasClass(table, "wikitable") && !hasClass(table, "sortable") {
			continue
		}

		if items := rankTable(table, limit); len(items) >= max(1, limit/2) {
			return items[:min(len(items), limit)], nil
		}
	}

	return nil, ErrNoRankedTable
}

func rankTable(table *html.Node, limit int) []snapshot.Item {
	rows := findAll(table, atom.Tr)
	if len(rows) < minRows {
		return nil
	}

	headers := headerTexts(rows[0])
	if len(headers) == 0 {
		headers = headerTexts(rows[1])
	}

	rankIdx, nameIdx := detectColumns(headers)

	var parsed []row
	explicit := false

	for _, tr := range rows[1:] {
		cells := children(tr, atom.Td, atom.Th)
		if !slices.ContainsFunc(cells, func(n *html.Node) bool { return n.DataAtom == atom.Td }) {
			continue
		}

		rankCell := 0
		if rankIdx >= 0 {
			rankCell = rankIdx
		}

		nameCell := min(1, len(cells)-1)
		if nameIdx >= 0 {
			nameCell = nameIdx
		}

		name := cellText(cells, nameCell)
		if name == "" {
			continue
		}

		rank, ok := parseRank(cellText(cells, rankCell))
		if rankIdx >= 0 && ok {
			explicit = true
			parsed = append(parsed, row{rank: rank, name: name})

			continue
		}

		parsed = append(parsed, row{name: name})
	}

	if len(parsed) < minParsed {
		return nil
	}

	var items []snapshot.Item

	if explicit {
		seen := make(map[int]bool)

		for _, r := range parsed {
			if r.rank < 1 || r.rank > limit || seen[r.rank] {
				continue
			}

			seen[r.rank] = true
			items = append(items, snapshot.Item{Rank: r.rank, Name: r.name, Aliases: []string{}})
		}

		slices.SortFunc(items, func(a, b snapshot.Item) int {
			return cmp.Compare(a.Rank, b.Rank)
		})

		return items
	}

	for _, r := range parsed {
		if r.name == "-" || strings.EqualFold(r.name, "total") {
			continue
		}

		items = append(items, snapshot.Item{Rank: len(items) + 1, Name: r.name, Aliases: []string{}})

		if len(items) == limit {
			break
		}
	}

	return items
}

func detectColumns(headers []string) (rankIdx, nameIdx int) {
	rankIdx, nameIdx = -1, -1

	for i, h := range headers {
		h = strings.ToLower(h)

		if rankIdx < 0 && (h == "#" || strings.Contains(h, "rank") || strings.Contains(h, "no.") || numberWord.MatchString(h)) {
			rankIdx = i
		}

		if nameIdx < 0 && slices.ContainsFunc(nameKeywords, func(k string) bool { return strings.Contains(h, k) }) {
			nameIdx = i
		}
	}

	return rankIdx, nameIdx
}

func parseRank(s string) (int, bool) {
	m := digits.FindString(s)
	if m == "" {
		return 0, false
	}

	n, err := strconv.Atoi(m)

	return n, err == nil
}

func cleanText(s string) string {
	s = footnote.ReplaceAllString(s, "")

	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func headerTexts(tr *html.Node) []string {
	var out []string
	for _, th := range findAll(tr, atom.Th) {
		out = append(out, cleanText(textOf(th)))
	}

	return out
}

// cellText prefers the first link in a cell, which on list pages is usually
// the item itself rather than surrounding notes.
func cellText(cells []*html.Node, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}

	if links := findAll(cells[i], atom.A); len(links) > 0 {
		return cleanText(textOf(links[0]))
	}

	return cleanText(textOf(cells[i]))
}

// textOf concatenates the text below n. Footnote superscripts, scripts and
// styles are skipped.
func textOf(n *html.Node) string {
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Sup:
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return sb.String()
}

// findAll returns every element below root with the given tag, in document
// order. Footnote superscripts are not searched.
func findAll(root *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}

			if c.DataAtom == tag {
				out = append(out, c)
			}

			if c.DataAtom != atom.Sup {
				walk(c)
			}
		}
	}
	walk(root)

	return out
}

func children(n *html.Node, tags ...atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && slices.Contains(tags, c.DataAtom) {
			out = append(out, c)
		}
	}

	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			return slices.Contains(strings.Fields(attr.Val), class)
		}
	}

	return false
}
