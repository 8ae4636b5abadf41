package coord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Replays the log of a full working session into a fresh coordinator and
// checks the rebuilt projection matches the live one. Both sides share one
// injected clock, so even timestamps line up exactly.
func TestReplayRebuildsProjection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tick := func() { now = now.Add(time.Second) }

	log := newTestLog(t)
	log.SetClock(clock)
	live := New(log, WithClock(clock))

	mustRegister(t, live, "lead-1", RoleWorker)
	tick()
	mustRegister(t, live, "spec-1", RoleSpecialist)
	tick()
	mustRegister(t, live, "work-1", RoleWorker)
	tick()

	_, err := live.ClaimResource(ctx, "src/auth.go", "spec-1", "")
	require.NoError(t, err)
	tick()
	_, err = live.ClaimResource(ctx, "src/db.go", "work-1", "")
	require.NoError(t, err)
	tick()
	_, err = live.LockResource(ctx, "migrations/001.sql", "lead-1")
	require.NoError(t, err)
	tick()

	raised, err := live.DetectConflict(ctx, "src/db.go", "spec-1")
	require.NoError(t, err)
	require.True(t, raised)
	tick()
	_, err = live.ResolveConflict(ctx, "src/db.go", "kept owner version", "work-1")
	require.NoError(t, err)
	tick()

	task, err := live.CreateTask(ctx, CreateTaskInput{
		Title:      "add session middleware",
		AssignedTo: "spec-1",
		AssignedBy: "lead-1",
		Resources:  []string{"src/auth.go"},
	})
	require.NoError(t, err)
	tick()
	_, err = live.UpdateTaskStatus(ctx, task.ID, TaskInProgress, "spec-1")
	require.NoError(t, err)
	tick()

	h, err := live.CreateHandoff(ctx, CreateHandoffInput{
		FromAgent: "spec-1",
		ToAgent:   "work-1",
		TaskID:    task.ID,
		Summary:   "middleware wired, tests missing",
		Blockers:  []string{"flaky CI"},
	})
	require.NoError(t, err)
	tick()
	_, err = live.AcceptHandoff(ctx, h.ID, "work-1")
	require.NoError(t, err)
	tick()

	_, err = live.Heartbeat(ctx, "work-1")
	require.NoError(t, err)
	tick()
	_, err = live.UpdateAgentStatus(ctx, "work-1", AgentWorking)
	require.NoError(t, err)
	tick()

	// Lead departs: claims cascade-release and spec-1 is promoted.
	require.NoError(t, live.RemoveAgent(ctx, "lead-1"))
	tick()

	rebuilt := New(log, WithClock(clock))
	require.NoError(t, rebuilt.Replay(ctx))

	liveSnap, err := live.Snapshot(ctx)
	require.NoError(t, err)
	rebuiltSnap, err := rebuilt.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, liveSnap, rebuiltSnap)
	assert.Equal(t, live.Lead(), rebuilt.Lead())
	assert.Equal(t, "spec-1", rebuilt.Lead())
}

func TestReplayOfflineSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	log := newTestLog(t)
	log.SetClock(clock)
	live := New(log, WithClock(clock))

	mustRegister(t, live, "lead-1", RoleWorker)
	mustRegister(t, live, "work-1", RoleWorker)

	now = now.Add(5 * time.Minute)
	_, err := live.Heartbeat(ctx, "work-1")
	require.NoError(t, err)
	marked, err := live.MarkAgentsOffline(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"lead-1"}, marked)

	rebuilt := New(log, WithClock(clock))
	require.NoError(t, rebuilt.Replay(ctx))

	a, ok := rebuilt.GetAgent("lead-1")
	require.True(t, ok)
	assert.Equal(t, AgentOffline, a.Status)
	assert.Equal(t, "work-1", rebuilt.Lead())
}

func TestReplayEmptyLog(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.Replay(context.Background()))

	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Agents)
	assert.Zero(t, snap.EventCount)
}
