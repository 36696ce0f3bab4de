/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Seednode/topdrop/internal/ingest"
	"github.com/Seednode/topdrop/internal/match"
	"github.com/Seednode/topdrop/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, *app) {
	t.Helper()

	a := newApp(cfg, snapshot.NewMemoryStore())
	a.mockDelay = 0

	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 64)
	go drainErrors(ctx, cfg, errs)

	mux, gm := newRouter(cfg, a, errs)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		gm.stop()
		srv.Close()
		cancel()
	})

	return srv, a
}

func postJSON(t *testing.T, u string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(u, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))

	return v
}

func createSnapshot(t *testing.T, srv *httptest.Server, category string, count int) *snapshot.Snapshot {
	t.Helper()

	resp := postJSON(t, srv.URL+"/api/snapshots", createRequest{Category: category, ItemCount: count})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeJSON[*snapshot.Snapshot](t, resp)
}

func TestCreateAndGetSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	snap := createSnapshot(t, srv, "Best songs of the 90s", 30)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "Best songs of the 90s", snap.Title)
	assert.True(t, snap.Locked)
	require.Len(t, snap.Items, 30)
	assert.Equal(t, "Song #1", snap.Items[0].Name)
	assert.Equal(t, 30, snap.Items[29].Rank)
	assert.NoError(t, snap.Verify())

	resp, err := http.Get(srv.URL + "/api/snapshots/" + snap.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	got := decodeJSON[*snapshot.Snapshot](t, resp)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Checksum, got.Checksum)
	assert.Equal(t, snap.Items, got.Items)
}

func TestCreateSnapshotDefaultsCount(t *testing.T) {
	cfg := testConfig()
	cfg.itemCount = 50

	srv, _ := newTestServer(t, cfg)

	snap := createSnapshot(t, srv, "movies", 0)
	assert.Len(t, snap.Items, 50)
	assert.Equal(t, "Movie #50", snap.Items[49].Name)
}

func TestCreateSnapshotRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown field", `{"category":"x","colour":"red"}`},
		{"blank category", `{"category":"   "}`},
		{"markup only", `{"category":"<b></b>"}`},
		{"bad size", `{"category":"songs","itemCount":40}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/snapshots", "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			body := decodeJSON[apiError](t, resp)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestListSnapshots(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	first := createSnapshot(t, srv, "songs", 30)
	second := createSnapshot(t, srv, "foods", 30)

	resp, err := http.Get(srv.URL + "/api/snapshots")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeJSON[[]snapshotSummary](t, resp)
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
		assert.Equal(t, 30, s.Size)
	}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	resp, err = http.Get(srv.URL + "/api/snapshots?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Len(t, decodeJSON[[]snapshotSummary](t, resp), 1)

	resp, err = http.Get(srv.URL + "/api/snapshots?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/api/snapshots/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGuess(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	snap := createSnapshot(t, srv, "songs", 30)

	tests := []struct {
		guess  string
		found  bool
		rank   int
		tier   match.Tier
		points int
	}{
		{"Song #7", true, 7, match.TierExact, 7},
		{"song7", true, 7, match.TierExact, 7},
		{"Song Number 12", true, 12, match.TierExact, 12},
		{"zebra crossing", false, 0, match.TierNone, 0},
	}

	for _, tc := range tests {
		t.Run(tc.guess, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/guess", guessRequest{SnapshotID: snap.ID, Guess: tc.guess})
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body struct {
				Found      bool           `json:"found"`
				Item       *snapshot.Item `json:"item"`
				Points     int            `json:"points"`
				ExactMatch bool           `json:"exactMatch"`
				Tier       string         `json:"tier"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

			assert.Equal(t, tc.found, body.Found)
			assert.Equal(t, tc.points, body.Points)
			assert.Equal(t, tc.tier.String(), body.Tier)

			if tc.found {
				require.NotNil(t, body.Item)
				assert.Equal(t, tc.rank, body.Item.Rank)
			} else {
				assert.Nil(t, body.Item)
			}
		})
	}
}

func TestGuessErrors(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp := postJSON(t, srv.URL+"/api/guess", guessRequest{SnapshotID: "missing", Guess: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/guess", guessRequest{Guess: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// readStream collects the JSON events of a server-sent event stream up to
// the closing sentinel.
func readStream(t *testing.T, r io.Reader) ([]streamEvent, bool) {
	t.Helper()

	var events []streamEvent

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		data, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, "unexpected line %q", line)

		if data == "[DONE]" {
			return events, true
		}

		var ev streamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}

	require.NoError(t, sc.Err())

	return events, false
}

func TestStream(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/api/stream?" + url.Values{"category": {"games"}, "count": {"30"}}.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events, done := readStream(t, resp.Body)
	require.True(t, done, "stream must end with [DONE]")
	require.Len(t, events, 32)

	assert.Equal(t, ingest.KindStart, events[0].Kind)

	for i, ev := range events[1:31] {
		require.Equal(t, ingest.KindItem, ev.Kind)
		require.NotNil(t, ev.Item)
		assert.Equal(t, i+1, ev.Item.Rank)
		assert.Equal(t, fmt.Sprintf("Game #%d", i+1), ev.Item.Name)
	}
	assert.Equal(t, 100, events[30].Progress)

	last := events[31]
	assert.Equal(t, ingest.KindComplete, last.Kind)
	assert.Equal(t, 30, last.Total)
	assert.Equal(t, 30, last.SnapshotSize)
	require.NotEmpty(t, last.SnapshotID)

	got, err := http.Get(srv.URL + "/api/snapshots/" + last.SnapshotID)
	require.NoError(t, err)
	defer got.Body.Close()

	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Len(t, decodeJSON[*snapshot.Snapshot](t, got).Items, 30)
}

func TestStreamRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	for _, q := range []string{"", "category=songs&count=abc", "category=songs&count=45"} {
		resp, err := http.Get(srv.URL + "/api/stream?" + q)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestGenerationRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.generateRate = 1

	srv, _ := newTestServer(t, cfg)

	createSnapshot(t, srv, "songs", 30)

	resp := postJSON(t, srv.URL+"/api/snapshots", createRequest{Category: "songs", ItemCount: 30})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	stream, err := http.Get(srv.URL + "/api/stream?category=songs&count=30")
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, stream.StatusCode)
}

func TestIPLimiter(t *testing.T) {
	var unlimited *ipLimiter
	assert.True(t, unlimited.allow("10.0.0.1"))
	assert.Nil(t, newIPLimiter(0))

	l := newIPLimiter(2)
	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "clients are limited separately")
}

func rankedPage(rows int) string {
	var b strings.Builder

	b.WriteString(`<html><body><table class="wikitable"><tr><th>Rank</th><th>Title</th><th>Year</th></tr>`)
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, `<tr><td>%d</td><td><a href="/wiki/%d">Film %d</a><sup>[%d]</sup></td><td>1999</td></tr>`, i, i, i, i)
	}
	b.WriteString(`</table></body></html>`)

	return b.String()
}

func TestImport(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, rankedPage(40))
	}))
	defer page.Close()

	srv, _ := newTestServer(t, testConfig())

	resp := postJSON(t, srv.URL+"/api/snapshots/import", importRequest{Title: "Greatest films", URL: page.URL, ItemCount: 30})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	snap := decodeJSON[*snapshot.Snapshot](t, resp)
	assert.Equal(t, "Greatest films", snap.Title)
	require.Len(t, snap.Items, 30)
	assert.Equal(t, "Film 1", snap.Items[0].Name)
	assert.Equal(t, "Film 30", snap.Items[29].Name)
}

func TestImportErrors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body><p>No tables here.</p></body></html>")
	}))
	defer empty.Close()

	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name string
		req  importRequest
		want int
	}{
		{"no title", importRequest{URL: empty.URL}, http.StatusBadRequest},
		{"relative url", importRequest{Title: "x", URL: "/wiki/List"}, http.StatusBadRequest},
		{"ftp url", importRequest{Title: "x", URL: "ftp://example.com/list"}, http.StatusBadRequest},
		{"no table", importRequest{Title: "x", URL: empty.URL}, http.StatusUnprocessableEntity},
		{"bad size", importRequest{Title: "x", URL: empty.URL, ItemCount: 10}, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/snapshots/import", tc.req)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestCleanCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Best movies", "Best movies", false},
		{"  spaced \t out\n", "spaced out", false},
		{"<script>alert(1)</script>Songs", "Songs", false},
		{"<b>Bold</b> games", "Bold games", false},
		{"Rock & Roll's best", "Rock & Roll's best", false},
		{"", "", true},
		{"<i></i>", "", true},
		{strings.Repeat("a", 200), strings.Repeat("a", maxCategoryLength), false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := cleanCategory(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, errBlankCategory)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIndexCacheReusesIndexes(t *testing.T) {
	snap, err := snapshot.New("songs", snapshot.Assemble(nil, 30))
	require.NoError(t, err)

	c := newIndexCache()
	assert.Same(t, c.get(snap), c.get(snap))
}
