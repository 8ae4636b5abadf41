package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/pkg/cerr"
	"github.com/crewdhq/crewd/pkg/clog"
)

func eventQueryFromRequest(r *http.Request) (event.Query, error) {
	q := event.Query{
		ActorID:      r.URL.Query().Get("actor"),
		Action:       event.Action(r.URL.Query().Get("action")),
		ResourcePath: r.URL.Query().Get("path"),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, cerr.NewError(cerr.InvalidArgument, "since must be RFC3339", err)
		}
		q.Since = ts
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, cerr.NewError(cerr.InvalidArgument, "limit must be a non-negative integer", err)
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("include_heartbeats"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, cerr.NewError(cerr.InvalidArgument, "include_heartbeats must be a boolean", err)
		}
		q.IncludeHeartbeats = b
	}
	return q, nil
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := eventQueryFromRequest(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	events, err := h.log.Query(ctx, q)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"events": events})
}

func (h *Handler) countEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.log.Count(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]int64{"count": count})
}

// streamBufSize bounds how far a slow SSE client can lag before events are
// dropped for it. The log itself is unaffected.
const streamBufSize = 64

// StreamEvents is a server-sent events endpoint. It is mounted outside the
// JSON response middleware because it writes the response incrementally.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	includeHeartbeats, _ := strconv.ParseBool(r.URL.Query().Get("include_heartbeats"))

	id, ch := h.log.Subscribe(streamBufSize)
	defer h.log.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case e, open := <-ch:
			if !open {
				return
			}
			if e.IsHeartbeat() && !includeHeartbeats {
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				clog.AddError(ctx, err)
				slog.WarnContext(ctx, "failed to encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
