package event_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/internal/event/repositoryimpl"
)

func newLog(t *testing.T) *event.Log {
	t.Helper()
	repo, err := repositoryimpl.NewSQLiteRepository(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return event.NewLog(repo)
}

func TestAppendAssignsIdentityAndSeq(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	e, err := log.Append(ctx, &event.Event{
		ActorID: "agent-a",
		Action:  event.ActionAgentJoined,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, int64(1), e.Seq)

	e2, err := log.Append(ctx, &event.Event{
		ActorID: "agent-a",
		Action:  event.ActionResourceClaimed,
	})
	require.NoError(t, err)
	assert.Greater(t, e2.Seq, e.Seq)
}

func TestAppendClampsBackwardsClock(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	log.SetClock(func() time.Time { return now })

	first, err := log.Append(ctx, &event.Event{ActorID: "a", Action: event.ActionAgentJoined})
	require.NoError(t, err)

	// Wall clock steps backwards; the log refuses to go with it.
	now = base.Add(-time.Minute)
	second, err := log.Append(ctx, &event.Event{ActorID: "a", Action: event.ActionAgentHeartbeat})
	require.NoError(t, err)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestSubscribeReceivesAppendedEvents(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	id, ch := log.Subscribe(8)
	defer log.Unsubscribe(id)

	appended, err := log.Append(ctx, &event.Event{
		ActorID:      "agent-a",
		Action:       event.ActionResourceClaimed,
		ResourcePath: "src/auth.go",
	})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, appended.ID, got.ID)
		assert.Equal(t, event.ActionResourceClaimed, got.Action)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the event")
	}
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	for _, e := range []*event.Event{
		{ActorID: "agent-a", Action: event.ActionAgentJoined},
		{ActorID: "agent-a", Action: event.ActionResourceClaimed, ResourcePath: "src/auth.go"},
		{ActorID: "agent-b", Action: event.ActionAgentJoined},
		{ActorID: "agent-a", Action: event.ActionAgentHeartbeat},
		{ActorID: "agent-b", Action: event.ActionResourceClaimed, ResourcePath: "src/db.go"},
	} {
		_, err := log.Append(ctx, e)
		require.NoError(t, err)
	}

	// Default listing is newest first and hides heartbeats.
	events, err := log.Query(ctx, event.Query{})
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "src/db.go", events[0].ResourcePath)
	for _, e := range events {
		assert.NotEqual(t, event.ActionAgentHeartbeat, e.Action)
	}

	// Heartbeats on request.
	events, err = log.Query(ctx, event.Query{IncludeHeartbeats: true})
	require.NoError(t, err)
	assert.Len(t, events, 5)

	// By actor.
	events, err = log.Query(ctx, event.Query{ActorID: "agent-b"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// By action.
	events, err = log.Query(ctx, event.Query{Action: event.ActionResourceClaimed})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// By path.
	events, err = log.Query(ctx, event.Query{ResourcePath: "src/auth.go"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "agent-a", events[0].ActorID)

	// Limit.
	events, err = log.Query(ctx, event.Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestListAfterPagesOldestFirst(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, &event.Event{ActorID: "a", Action: event.ActionAgentHeartbeat})
		require.NoError(t, err)
	}

	page, err := log.ListAfter(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(1), page[0].Seq)

	page, err = log.ListAfter(ctx, page[len(page)-1].Seq, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].Seq)

	count, err := log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}
