package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/pkg/cerr"
)

type createHandoffRequest struct {
	FromAgent     string   `json:"from_agent"`
	ToAgent       string   `json:"to_agent,omitempty"`
	TaskID        string   `json:"task_id"`
	Summary       string   `json:"summary"`
	FilesModified []string `json:"files_modified,omitempty"`
	FilesCreated  []string `json:"files_created,omitempty"`
	Context       string   `json:"context,omitempty"`
	Blockers      []string `json:"blockers,omitempty"`
}

func (h *Handler) createHandoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createHandoffRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	hd, err := h.coord.CreateHandoff(ctx, coord.CreateHandoffInput{
		FromAgent:     req.FromAgent,
		ToAgent:       req.ToAgent,
		TaskID:        req.TaskID,
		Summary:       req.Summary,
		FilesModified: req.FilesModified,
		FilesCreated:  req.FilesCreated,
		Context:       req.Context,
		Blockers:      req.Blockers,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, hd)
}

type resolveHandoffRequest struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) acceptHandoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req resolveHandoffRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	ok, err := h.coord.AcceptHandoff(ctx, chi.URLParam(r, "id"), req.AgentID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"ok": ok})
}

func (h *Handler) rejectHandoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req resolveHandoffRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	ok, err := h.coord.RejectHandoff(ctx, chi.URLParam(r, "id"), req.AgentID, req.Reason)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"ok": ok})
}
