package api

import (
	"net/http"

	"github.com/crewdhq/crewd/pkg/cerr"
)

type claimRequest struct {
	Path    string `json:"path"`
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id,omitempty"`
}

func (h *Handler) claimResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := h.coord.ClaimResource(ctx, req.Path, req.AgentID, req.TaskID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

type releaseRequest struct {
	Path    string `json:"path"`
	AgentID string `json:"agent_id"`
}

func (h *Handler) releaseResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req releaseRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	ok, err := h.coord.ReleaseResource(ctx, req.Path, req.AgentID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"released": ok})
}

func (h *Handler) lockResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req releaseRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	ok, err := h.coord.LockResource(ctx, req.Path, req.AgentID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"locked": ok})
}

type detectConflictRequest struct {
	Path       string `json:"path"`
	ModifiedBy string `json:"modified_by"`
}

func (h *Handler) detectConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req detectConflictRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	raised, err := h.coord.DetectConflict(ctx, req.Path, req.ModifiedBy)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"conflict": raised})
}

type resolveConflictRequest struct {
	Path       string `json:"path"`
	Resolution string `json:"resolution"`
	ResolvedBy string `json:"resolved_by"`
}

func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req resolveConflictRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	ok, err := h.coord.ResolveConflict(ctx, req.Path, req.Resolution, req.ResolvedBy)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"resolved": ok})
}
