// Package api exposes the coordination core over HTTP. Every endpoint is a
// 1:1 translation of one coordinator operation; denial outcomes keep their
// structured detail (owner, reason) instead of collapsing into booleans.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdhq/crewd/internal/archive"
	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/pkg/cerr"
)

type Handler struct {
	coord    *coord.Coordinator
	log      *event.Log
	exporter *archive.Exporter
}

func NewHandler(c *coord.Coordinator, log *event.Log, exporter *archive.Exporter) *Handler {
	return &Handler{
		coord:    c,
		log:      log,
		exporter: exporter,
	}
}

// Routes registers all JSON endpoints. The SSE stream is mounted separately
// because it writes its own response incrementally.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/agents", h.registerAgent)
	r.Delete("/agents/{id}", h.removeAgent)
	r.Post("/agents/{id}/heartbeat", h.heartbeat)
	r.Post("/agents/{id}/status", h.updateAgentStatus)

	r.Post("/resources/claim", h.claimResource)
	r.Post("/resources/release", h.releaseResource)
	r.Post("/resources/lock", h.lockResource)
	r.Post("/resources/conflict", h.detectConflict)
	r.Post("/resources/resolve", h.resolveConflict)

	r.Post("/tasks", h.createTask)
	r.Post("/tasks/{id}/status", h.updateTaskStatus)

	r.Post("/handoffs", h.createHandoff)
	r.Post("/handoffs/{id}/accept", h.acceptHandoff)
	r.Post("/handoffs/{id}/reject", h.rejectHandoff)

	r.Get("/snapshot", h.snapshot)
	r.Get("/events", h.listEvents)
	r.Get("/events/count", h.countEvents)

	r.Post("/archive", h.archiveEvents)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.coord.Snapshot(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, snap)
}

func (h *Handler) archiveEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exporter == nil {
		cerr.SetNewJSONError(ctx, cerr.Unimplemented, "archive storage not configured", nil)
		return
	}
	path, count, err := h.exporter.Export(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{
		"path":   path,
		"events": count,
	})
}
