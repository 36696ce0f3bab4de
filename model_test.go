/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Seednode/topdrop/internal/ingest"
	"github.com/Seednode/topdrop/internal/snapshot"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer stands in for an OpenAI-compatible endpoint. Streamed
// requests get content as delta chunks, cut into small pieces, followed
// by tail; anything else gets status.
func chatServer(t *testing.T, status int, content, tail string) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if !req.Stream || status != http.StatusOK {
			http.Error(w, `{"error":{"type":"server_error","message":"unavailable"}}`, status)

			return
		}

		w.Header().Set("Content-Type", "text/event-stream")

		for i := 0; i < len(content); i += 7 {
			delta, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": content[i:min(i+7, len(content))]}},
				},
			})
			fmt.Fprintf(w, "data: %s\n\n", delta)
		}

		io.WriteString(w, tail)
	}))
	t.Cleanup(upstream.Close)

	return upstream
}

func modelConfig(upstream *httptest.Server) *Config {
	cfg := testConfig()
	cfg.mock = false
	cfg.openaiKey = "sk-test"
	cfg.openaiURL = upstream.URL

	return cfg
}

func films(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"rank":%d,"name":"Film %d","aliases":[]}`, i+1, i+1)
	}

	return "[" + strings.Join(parts, ",") + "]"
}

func stream(t *testing.T, srv *httptest.Server, category string, count int) ([]streamEvent, bool) {
	t.Helper()

	resp, err := http.Get(srv.URL + "/api/stream?" + url.Values{
		"category": {category},
		"count":    {fmt.Sprint(count)},
	}.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	return readStream(t, resp.Body)
}

func TestModelFailureFallsBackToPlaceholders(t *testing.T) {
	upstream := chatServer(t, http.StatusInternalServerError, "", "")
	srv, _ := newTestServer(t, modelConfig(upstream))

	before := testutil.ToFloat64(generationFallbacksTotal)

	snap := createSnapshot(t, srv, "favourite movies", 30)
	require.Len(t, snap.Items, 30)
	assert.Equal(t, "Movie #1", snap.Items[0].Name)
	assert.Equal(t, "Movie #30", snap.Items[29].Name)
	assert.Equal(t, before+1, testutil.ToFloat64(generationFallbacksTotal))

	events, done := stream(t, srv, "favourite movies", 30)
	require.True(t, done)
	require.Len(t, events, 32)

	assert.Equal(t, ingest.KindStart, events[0].Kind)
	assert.Equal(t, "Movie #1", events[1].Item.Name)

	last := events[31]
	assert.Equal(t, ingest.KindComplete, last.Kind)
	assert.Equal(t, 30, last.Total)
	assert.NotEmpty(t, last.SnapshotID)
	assert.Equal(t, before+2, testutil.ToFloat64(generationFallbacksTotal))
}

func TestModelErrorAfterItemsStoresNothing(t *testing.T) {
	upstream := chatServer(t, http.StatusOK,
		`[{"rank":1,"name":"Film 1"},{"rank":2,"name":"Film 2"},{"rank":3,"na`,
		"data: {\"error\":{\"type\":\"server_error\",\"message\":\"overloaded\"}}\n\n",
	)
	srv, a := newTestServer(t, modelConfig(upstream))

	before := testutil.ToFloat64(generationFallbacksTotal)

	events, done := stream(t, srv, "films", 30)
	require.True(t, done)
	require.Len(t, events, 4)

	assert.Equal(t, ingest.KindStart, events[0].Kind)
	assert.Equal(t, "Film 1", events[1].Item.Name)
	assert.Equal(t, "Film 2", events[2].Item.Name)
	assert.Equal(t, ingest.KindError, events[3].Kind)
	assert.Empty(t, events[3].SnapshotID)

	stored, err := a.store.List(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, stored)

	assert.Equal(t, before, testutil.ToFloat64(generationFallbacksTotal), "a partial list is not replaced")
}

func TestModelShortListIsPadded(t *testing.T) {
	upstream := chatServer(t, http.StatusOK, films(12), "data: [DONE]\n\n")
	srv, _ := newTestServer(t, modelConfig(upstream))

	events, done := stream(t, srv, "films", 30)
	require.True(t, done)
	require.Len(t, events, 14)

	assert.Equal(t, 40, events[12].Progress)

	last := events[13]
	assert.Equal(t, ingest.KindComplete, last.Kind)
	assert.Equal(t, 12, last.Total)
	assert.Equal(t, "generated 12 items", last.Message)
	assert.Equal(t, 30, last.SnapshotSize)

	resp, err := http.Get(srv.URL + "/api/snapshots/" + last.SnapshotID)
	require.NoError(t, err)
	defer resp.Body.Close()

	snap := decodeJSON[*snapshot.Snapshot](t, resp)
	require.Len(t, snap.Items, 30)
	assert.Equal(t, "Film 12", snap.Items[11].Name)
	assert.Equal(t, "Item 13", snap.Items[12].Name)
	assert.Equal(t, "Item 30", snap.Items[29].Name)
}
