/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Seednode/topdrop/internal/ingest"
	"github.com/Seednode/topdrop/internal/scrape"
	"github.com/Seednode/topdrop/internal/snapshot"
	"github.com/julienschmidt/httprouter"
)

const (
	maxRequestBody   = 64 << 10
	defaultListLimit = 20
)

type createRequest struct {
	Category  string `json:"category"`
	ItemCount int    `json:"itemCount"`
	Mock      bool   `json:"mock"`
}

type importRequest struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	ItemCount int    `json:"itemCount"`
}

type guessRequest struct {
	SnapshotID string `json:"snapshotId"`
	Guess      string `json:"guess"`
}

type snapshotSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// streamEvent is an ingest event as sent to browsers. The completion event
// also carries the stored snapshot's id and its padded size; Total stays the
// number of items actually parsed.
type streamEvent struct {
	ingest.Event
	SnapshotID   string `json:"snapshotId,omitempty"`
	SnapshotSize int    `json:"snapshotSize,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)

	return w.Write(data)
}

func writeError(errs chan<- error, w http.ResponseWriter, status int, msg string) {
	if _, err := writeJSON(w, status, apiError{Error: msg}); err != nil {
		errs <- err
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	return dec.Decode(v)
}

func (a *app) itemCount(n int) (int, error) {
	if n == 0 {
		return a.cfg.itemCount, nil
	}

	if !snapshot.ValidSize(n) {
		return 0, fmt.Errorf("itemCount must be 30, 50, or 100, not %d", n)
	}

	return n, nil
}

func serveCreateSnapshot(a *app, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		securityHeaders(a.cfg, w)

		var req createRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(errs, w, http.StatusBadRequest, "invalid request body")

			return
		}

		category, err := cleanCategory(req.Category)
		if err != nil {
			writeError(errs, w, http.StatusBadRequest, err.Error())

			return
		}

		count, err := a.itemCount(req.ItemCount)
		if err != nil {
			writeError(errs, w, http.StatusBadRequest, err.Error())

			return
		}

		if !a.limiter.allow(clientHost(r)) {
			writeError(errs, w, http.StatusTooManyRequests, "too many lists generated, try again shortly")

			return
		}

		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		snap, _, err := a.buildRound(r.Context(), roundRequest{
			Category: category,
			Count:    count,
			Mock:     req.Mock,
			Classic:  true,
		}, nil)
		if err != nil {
			a.cfg.getLogger().Error("generating list", "category", category, "err", err)
			writeError(errs, w, http.StatusBadGateway, "failed to generate list")

			return
		}

		written, err := writeJSON(w, http.StatusCreated, snap)
		if err != nil {
			errs <- err

			return
		}

		logf(a.cfg, "SERVE: Snapshot %s (%s) to %s in %s",
			snap.ID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveListSnapshots(a *app, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(a.cfg, w)

		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(errs, w, http.StatusBadRequest, "limit must be a positive integer")

				return
			}

			limit = n
		}

		snaps, err := a.store.List(r.Context(), limit)
		if err != nil {
			errs <- err
			writeError(errs, w, http.StatusInternalServerError, "failed to list snapshots")

			return
		}

		out := make([]snapshotSummary, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, snapshotSummary{
				ID:        s.ID,
				Title:     s.Title,
				Size:      s.Size(),
				CreatedAt: s.CreatedAt,
			})
		}

		if _, err := writeJSON(w, http.StatusOK, out); err != nil {
			errs <- err
		}
	}
}

// lookupSnapshot writes the error response itself and returns nil when the
// snapshot cannot be served.
func (a *app) lookupSnapshot(w http.ResponseWriter, r *http.Request, id string, errs chan<- error) *snapshot.Snapshot {
	if id == "" {
		writeError(errs, w, http.StatusBadRequest, "snapshot id is required")

		return nil
	}

	snap, err := a.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeError(errs, w, http.StatusNotFound, "snapshot not found")

		return nil
	case err != nil:
		errs <- err
		writeError(errs, w, http.StatusInternalServerError, "failed to load snapshot")

		return nil
	}

	if err := snap.Verify(); err != nil {
		a.cfg.getLogger().Error("snapshot failed verification", "id", id, "err", err)
		writeError(errs, w, http.StatusInternalServerError, "snapshot is corrupt")

		return nil
	}

	return snap
}

func serveGetSnapshot(a *app, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(a.cfg, w)

		snap := a.lookupSnapshot(w, r, p.ByName("id"), errs)
		if snap == nil {
			return
		}

		if _, err := writeJSON(w, http.StatusOK, snap); err != nil {
			errs <- err
		}
	}
}

func serveGuess(a *app, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(a.cfg, w)

		var req guessRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(errs, w, http.StatusBadRequest, "invalid request body")

			return
		}

		snap := a.lookupSnapshot(w, r, req.SnapshotID, errs)
		if snap == nil {
			return
		}

		result := a.indexes.get(snap).Resolve(req.Guess)
		guessesTotal.WithLabelValues(result.Tier.String()).Inc()

		if _, err := writeJSON(w, http.StatusOK, result); err != nil {
			errs <- err
		}
	}
}

func serveImport(a *app, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(a.cfg, w)

		var req importRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(errs, w, http.StatusBadRequest, "invalid request body")

			return
		}

		title, err := cleanCategory(req.Title)
		if err != nil {
			writeError(errs, w, http.StatusBadRequest, "title is required")

			return
		}

		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			writeError(errs, w, http.StatusBadRequest, "url must be an absolute http or https URL")

			return
		}

		count, err := a.itemCount(req.ItemCount)
		if err != nil {
			writeError(errs, w, http.StatusBadRequest, err.Error())

			return
		}

		if !a.limiter.allow(clientHost(r)) {
			writeError(errs, w, http.StatusTooManyRequests, "too many lists generated, try again shortly")

			return
		}

		body, err := scrape.Fetch(r.Context(), a.client, u.String())
		if err != nil {
			writeError(errs, w, http.StatusBadGateway, "failed to fetch page")

			return
		}

		items, err := scrape.ExtractRanked(bytes.NewReader(body), count)
		if err != nil {
			writeError(errs, w, http.StatusUnprocessableEntity, "no ranked table found on page")

			return
		}

		snap, err := snapshot.New(title, snapshot.Assemble(items, count))
		if err != nil {
			errs <- err
			writeError(errs, w, http.StatusInternalServerError, "failed to build snapshot")

			return
		}

		if err := a.store.Set(r.Context(), snap); err != nil {
			errs <- err
			writeError(errs, w, http.StatusInternalServerError, "failed to store snapshot")

			return
		}

		snapshotsCreatedTotal.WithLabelValues("imported").Inc()

		logf(a.cfg, "GAMES: Imported %q from %s (%d rows) as %s", title, u.Host, len(items), snap.ID)

		if _, err := writeJSON(w, http.StatusCreated, snap); err != nil {
			errs <- err
		}
	}
}

func writeEvent(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", data)

	return err
}

// serveStream generates a list and relays progress as server-sent events,
// ending with "data: [DONE]".
func serveStream(a *app, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		securityHeaders(a.cfg, w)

		category, err := cleanCategory(r.URL.Query().Get("category"))
		if err != nil {
			writeError(errs, w, http.StatusBadRequest, err.Error())

			return
		}

		var n int
		if v := r.URL.Query().Get("count"); v != "" {
			if n, err = strconv.Atoi(v); err != nil {
				writeError(errs, w, http.StatusBadRequest, "count must be an integer")

				return
			}
		}

		count, err := a.itemCount(n)
		if err != nil {
			writeError(errs, w, http.StatusBadRequest, err.Error())

			return
		}

		if !a.limiter.allow(clientHost(r)) {
			writeError(errs, w, http.StatusTooManyRequests, "too many lists generated, try again shortly")

			return
		}

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		send := func(v any) bool {
			if err := writeEvent(w, v); err != nil {
				errs <- err

				return false
			}

			return rc.Flush() == nil
		}

		snap, ingested, err := a.buildRound(r.Context(), roundRequest{
			Category: category,
			Count:    count,
		}, func(ev ingest.Event) bool {
			return send(streamEvent{Event: ev})
		})
		switch {
		case errors.Is(err, errAbandoned), r.Context().Err() != nil:
			logf(a.cfg, "SERVE: Stream for %q abandoned by %s", category, realIP(r))

			return
		case err != nil:
			a.cfg.getLogger().Error("streaming list", "category", category, "err", err)

			send(streamEvent{Event: ingest.Event{Kind: ingest.KindError, Message: "failed to generate list"}})
		default:
			send(streamEvent{
				Event: ingest.Event{
					Kind:    ingest.KindComplete,
					Total:   ingested,
					Message: fmt.Sprintf("generated %d items", ingested),
				},
				SnapshotID:   snap.ID,
				SnapshotSize: snap.Size(),
			})
		}

		if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
			errs <- err

			return
		}
		_ = rc.Flush()

		logf(a.cfg, "SERVE: Stream for %q to %s in %s",
			category,
			realIP(r),
			time.Since(startTime).Round(time.Millisecond),
		)
	}
}

func registerAPI(a *app, mux *httprouter.Router, errs chan<- error) {
	prefix := a.cfg.prefix + "/api"

	mux.POST(prefix+"/snapshots", serveCreateSnapshot(a, errs))
	mux.GET(prefix+"/snapshots", serveListSnapshots(a, errs))
	mux.GET(prefix+"/snapshots/:id", serveGetSnapshot(a, errs))
	mux.POST(prefix+"/snapshots/import", serveImport(a, errs))
	mux.POST(prefix+"/guess", serveGuess(a, errs))
	mux.GET(prefix+"/stream", serveStream(a, errs))
}
