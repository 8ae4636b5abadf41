package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/pkg/cerr"
)

type registerAgentRequest struct {
	ID           string   `json:"id"`
	ToolKind     string   `json:"tool_kind"`
	Role         string   `json:"role,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

func (h *Handler) registerAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	a, err := h.coord.RegisterAgent(ctx, req.ID, req.ToolKind, coord.AgentRole(req.Role), req.Capabilities)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, a)
}

func (h *Handler) removeAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.coord.RemoveAgent(ctx, chi.URLParam(r, "id")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"removed": true})
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ok, err := h.coord.Heartbeat(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"ok": ok})
}

type updateAgentStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateAgentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateAgentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	ok, err := h.coord.UpdateAgentStatus(ctx, chi.URLParam(r, "id"), coord.AgentStatus(req.Status))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"ok": ok})
}
