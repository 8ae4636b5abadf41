package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdhq/crewd/internal/archive"
	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/internal/event/repositoryimpl"
	"github.com/crewdhq/crewd/pkg/cerr"
	"github.com/crewdhq/crewd/pkg/storage"
)

type fixture struct {
	coord  *coord.Coordinator
	log    *event.Log
	router *chi.Mux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := repositoryimpl.NewSQLiteRepository(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	log := event.NewLog(repo)
	c := coord.New(log)
	store, err := storage.NewLocalStorage(filepath.Join(dir, "archive"))
	require.NoError(t, err)

	h := NewHandler(c, log, archive.NewExporter(log, store))
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events/stream", h.StreamEvents)
		r.Group(func(r chi.Router) {
			r.Use(cerr.NewJSONResponseMiddleware())
			h.Routes(r)
		})
	})
	return &fixture{coord: c, log: log, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestRegisterAgentEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{
		"id":        "agent-a",
		"tool_kind": "claude-code",
		"role":      "worker",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var a coord.Agent
	decodeBody(t, rec, &a)
	assert.Equal(t, "agent-a", a.ID)
	assert.Equal(t, coord.RoleLead, a.Role) // first agent is promoted

	// Missing id is a 400 with a structured error body.
	rec = f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"tool_kind": "cursor"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	decodeBody(t, rec, &apiErr)
	assert.Equal(t, "invalid_argument", apiErr.Code)
}

func TestInvalidBodyIsBadRequest(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClaimEndpointSurfacesDenial(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"id": "agent-a", "tool_kind": "claude-code"})
	f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"id": "agent-b", "tool_kind": "cursor"})

	rec := f.do(t, http.MethodPost, "/api/v1/resources/claim", map[string]any{
		"path": "src/auth.go", "agent_id": "agent-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var res coord.ClaimResult
	decodeBody(t, rec, &res)
	assert.True(t, res.Granted)

	// A denial is still HTTP 200; the outcome is in the body.
	rec = f.do(t, http.MethodPost, "/api/v1/resources/claim", map[string]any{
		"path": "src/auth.go", "agent_id": "agent-b",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &res)
	assert.False(t, res.Granted)
	assert.Equal(t, "agent-a", res.Owner)
	assert.NotEmpty(t, res.Reason)
}

func TestTaskEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"id": "lead-1", "tool_kind": "claude-code"})

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"title":       "wire sessions",
		"assigned_by": "lead-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var task coord.Task
	decodeBody(t, rec, &task)
	require.NotEmpty(t, task.ID)
	assert.Equal(t, coord.TaskQueued, task.Status)

	rec = f.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/status", map[string]any{
		"status": "in_progress", "agent_id": "lead-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		OK bool `json:"ok"`
	}
	decodeBody(t, rec, &out)
	assert.True(t, out.OK)

	// Invalid status maps to a 400.
	rec = f.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/status", map[string]any{
		"status": "paused", "agent_id": "lead-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotAndEventsEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"id": "agent-a", "tool_kind": "claude-code"})
	f.do(t, http.MethodPost, "/api/v1/resources/claim", map[string]any{"path": "src/auth.go", "agent_id": "agent-a"})
	f.do(t, http.MethodPost, "/api/v1/agents/agent-a/heartbeat", nil)

	rec := f.do(t, http.MethodGet, "/api/v1/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap coord.Snapshot
	decodeBody(t, rec, &snap)
	assert.Len(t, snap.Agents, 1)
	assert.Len(t, snap.Resources, 1)
	assert.Equal(t, "agent-a", snap.Lead)
	assert.Equal(t, int64(3), snap.EventCount)

	// Heartbeats are hidden by default.
	rec = f.do(t, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events struct {
		Events []*event.Event `json:"events"`
	}
	decodeBody(t, rec, &events)
	assert.Len(t, events.Events, 2)

	rec = f.do(t, http.MethodGet, "/api/v1/events?include_heartbeats=true", nil)
	decodeBody(t, rec, &events)
	assert.Len(t, events.Events, 3)

	rec = f.do(t, http.MethodGet, "/api/v1/events?since=not-a-time", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/events/count", nil)
	var count struct {
		Count int64 `json:"count"`
	}
	decodeBody(t, rec, &count)
	assert.Equal(t, int64(3), count.Count)
}

func TestRemoveAgentEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"id": "agent-a", "tool_kind": "claude-code"})

	rec := f.do(t, http.MethodDelete, "/api/v1/agents/agent-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, found := f.coord.GetAgent("agent-a")
	assert.False(t, found)
}

func TestArchiveEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"id": "agent-a", "tool_kind": "claude-code"})

	rec := f.do(t, http.MethodPost, "/api/v1/archive", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Path   string `json:"path"`
		Events int64  `json:"events"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, int64(1), out.Events)
	assert.True(t, strings.HasSuffix(out.Path, ".jsonl"))
}

func TestStreamEventsDeliversAppends(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler a moment to subscribe before appending.
	time.Sleep(50 * time.Millisecond)
	_, err = f.coord.RegisterAgent(context.Background(), "agent-a", "claude-code", coord.RoleWorker, nil)
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(2 * time.Second)
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				return
			}
		}
	}()

	select {
	case payload := <-lines:
		var e event.Event
		require.NoError(t, json.Unmarshal([]byte(payload), &e))
		assert.Equal(t, event.ActionAgentJoined, e.Action)
		assert.Equal(t, "agent-a", e.ActorID)
	case <-deadline:
		t.Fatal("no event received on stream")
	}
}
