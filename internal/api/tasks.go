package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/pkg/cerr"
)

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	AssignedTo  string   `json:"assigned_to,omitempty"`
	AssignedBy  string   `json:"assigned_by"`
	Resources   []string `json:"resources,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := h.coord.CreateTask(ctx, coord.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		AssignedBy:  req.AssignedBy,
		Resources:   req.Resources,
		DependsOn:   req.DependsOn,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

type updateTaskStatusRequest struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id"`
}

func (h *Handler) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateTaskStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	ok, err := h.coord.UpdateTaskStatus(ctx, chi.URLParam(r, "id"), coord.TaskStatus(req.Status), req.AgentID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"ok": ok})
}
