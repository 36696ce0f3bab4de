/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Seednode/topdrop/internal/generate"
	"github.com/Seednode/topdrop/internal/ingest"
	"github.com/Seednode/topdrop/internal/match"
	"github.com/Seednode/topdrop/internal/snapshot"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"
)

const (
	maxCategoryLength = 120
	maxCachedIndexes  = 256
	maxTrackedClients = 4096
	limiterIdle       = 10 * time.Minute
)

var (
	errBlankCategory = errors.New("category is required")
	errAbandoned     = errors.New("round abandoned")
)

var strictPolicy = bluemonday.StrictPolicy()

// app holds what handlers and game hubs share.
type app struct {
	cfg     *Config
	store   snapshot.Store
	model   generate.Generator
	limiter *ipLimiter
	indexes *indexCache
	client  *http.Client

	// mockDelay paces placeholder streams so progress is visible.
	mockDelay time.Duration
}

func newApp(cfg *Config, store snapshot.Store) *app {
	a := &app{
		cfg:       cfg,
		store:     store,
		limiter:   newIPLimiter(cfg.generateRate),
		indexes:   newIndexCache(cfg.matchOptions()...),
		client:    &http.Client{Timeout: 30 * time.Second},
		mockDelay: 5 * time.Millisecond,
	}

	if !cfg.useMock() {
		a.model = generate.NewOpenAIWithConfig(cfg.openaiKey, cfg.openaiModel, cfg.openaiURL)
	}

	return a
}

// sanitizeText drops any markup and collapses whitespace. The policy
// escapes what it keeps, so entities are decoded again afterwards.
func sanitizeText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strictPolicy.Sanitize(s))), " ")
}

// cleanCategory strips markup and excess whitespace from user input used as
// a prompt and as a snapshot title.
func cleanCategory(s string) (string, error) {
	s = sanitizeText(s)
	if s == "" {
		return "", errBlankCategory
	}

	if utf8.RuneCountInString(s) > maxCategoryLength {
		s = string([]rune(s)[:maxCategoryLength])
	}

	return s, nil
}

type roundRequest struct {
	Category string
	Count    int
	Mock     bool
	// Classic waits for the whole response instead of streaming it.
	Classic bool
}

func (r roundRequest) mode() string {
	if r.Classic {
		return "classic"
	}

	return "stream"
}

func (a *app) generator(req roundRequest) generate.Generator {
	if req.Mock || a.model == nil {
		m := generate.NewMock(req.Category, req.Count)
		if !req.Classic {
			m.Delay = a.mockDelay
		}

		return m
	}

	return a.model
}

func (a *app) events(ctx context.Context, g generate.Generator, req roundRequest) iter.Seq[ingest.Event] {
	prompt := generate.Prompt(req.Category, req.Count)

	chunks := g.Stream(ctx, prompt)
	if req.Classic {
		chunks = generate.Classic(ctx, g, prompt)
	}

	return ingest.Stream(ctx, chunks, req.Count)
}

// roundEvents runs one generation. If the model fails or comes back empty
// before producing a single item, the placeholder generator takes over and
// the consumer sees one uninterrupted stream.
func (a *app) roundEvents(ctx context.Context, req roundRequest) iter.Seq[ingest.Event] {
	return func(yield func(ingest.Event) bool) {
		g := a.generator(req)
		_, mocked := g.(*generate.Mock)

		emitted := 0

		for ev := range a.events(ctx, g, req) {
			if emitted == 0 && !mocked && ctx.Err() == nil &&
				(ev.Kind == ingest.KindError || ev.Kind == ingest.KindComplete) {
				a.cfg.getLogger().Warn("generation produced nothing, using placeholder list",
					"category", req.Category, "model", g, "reason", ev.Message)
				generationFallbacksTotal.Inc()

				fallback := req
				fallback.Mock = true

				for ev := range a.events(ctx, a.generator(fallback), fallback) {
					if ev.Kind == ingest.KindStart {
						continue
					}

					if ev.Kind == ingest.KindItem {
						itemsIngestedTotal.Inc()
					}

					if !yield(ev) {
						return
					}
				}

				return
			}

			if ev.Kind == ingest.KindItem {
				emitted++
				itemsIngestedTotal.Inc()
			}

			if !yield(ev) {
				return
			}
		}
	}
}

// buildRound drains a generation into a stored snapshot and returns it with
// the number of items the ingester reported, before padding. Every event but
// the final Complete is passed to observe first; if observe returns false
// the round is abandoned and nothing is stored.
func (a *app) buildRound(ctx context.Context, req roundRequest, observe func(ingest.Event) bool) (*snapshot.Snapshot, int, error) {
	started := time.Now()

	var items []snapshot.Item

	ingested := 0

	for ev := range a.roundEvents(ctx, req) {
		switch ev.Kind {
		case ingest.KindComplete:
			ingested = ev.Total

			continue
		case ingest.KindError:
			return nil, 0, fmt.Errorf("%w: %s", generate.ErrUpstream, ev.Message)
		case ingest.KindItem:
			items = append(items, *ev.Item)
		}

		if observe != nil && !observe(ev) {
			return nil, 0, errAbandoned
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	snap, err := snapshot.New(req.Category, snapshot.Assemble(items, req.Count))
	if err != nil {
		return nil, 0, err
	}

	if err := a.store.Set(ctx, snap); err != nil {
		return nil, 0, fmt.Errorf("storing snapshot: %w", err)
	}

	snapshotsCreatedTotal.WithLabelValues("generated").Inc()
	generationSeconds.WithLabelValues(req.mode()).Observe(time.Since(started).Seconds())

	logf(a.cfg, "GAMES: Generated %q (%d of %d items parsed) as %s in %s",
		req.Category,
		len(items),
		req.Count,
		snap.ID,
		time.Since(started).Round(time.Millisecond),
	)

	return snap, ingested, nil
}

// indexCache keeps one match index per snapshot. Snapshots never change,
// so an index never goes stale.
type indexCache struct {
	mu      sync.Mutex
	opts    []match.Option
	entries map[string]*match.Index
}

func newIndexCache(opts ...match.Option) *indexCache {
	return &indexCache{
		opts:    opts,
		entries: make(map[string]*match.Index),
	}
}

func (c *indexCache) get(s *snapshot.Snapshot) *match.Index {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ix, ok := c.entries[s.ID]; ok {
		return ix
	}

	if len(c.entries) >= maxCachedIndexes {
		clear(c.entries)
	}

	ix := match.NewIndex(s.Items, c.opts...)
	c.entries[s.ID] = ix

	return ix
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// ipLimiter hands each client address its own token bucket. A nil
// ipLimiter allows everything.
type ipLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	clients map[string]*limiterEntry
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}

	return &ipLimiter{
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		clients: make(map[string]*limiterEntry),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if len(l.clients) >= maxTrackedClients {
		for k, e := range l.clients {
			if now.Sub(e.seen) > limiterIdle {
				delete(l.clients, k)
			}
		}
	}

	e, ok := l.clients[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[ip] = e
	}
	e.seen = now

	if !e.limiter.AllowN(now, 1) {
		rateLimitedTotal.Inc()

		return false
	}

	return true
}
