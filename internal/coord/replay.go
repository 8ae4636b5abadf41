package coord

import (
	"context"
	"fmt"
	"strings"

	"github.com/crewdhq/crewd/internal/event"
)

const replayPageSize = 500

// Replay rebuilds the projection by folding the persisted log oldest first.
// It must run before the coordinator starts serving operations; events are
// applied without re-emitting anything. Entity timestamps come from the
// event timestamps, so a rebuilt projection matches what the original
// process held.
func (c *Coordinator) Replay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.agents = make(map[string]*Agent)
	c.resources = make(map[string]*Resource)
	c.tasks = make(map[string]*Task)
	c.handoffs = make(map[string]*Handoff)
	c.lead = ""

	var afterSeq int64
	for {
		events, err := c.log.ListAfter(ctx, afterSeq, replayPageSize)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, e := range events {
			c.applyLocked(e)
			afterSeq = e.Seq
		}
	}
}

func (c *Coordinator) applyLocked(e *event.Event) {
	switch e.Action {
	case event.ActionAgentJoined:
		role := AgentRole(e.Metadata["role"])
		a := &Agent{
			ID:            e.ActorID,
			ToolKind:      e.Metadata["tool_kind"],
			Role:          role,
			Status:        AgentIdle,
			Capabilities:  splitList(e.Metadata["capabilities"]),
			JoinedAt:      e.Timestamp,
			LastHeartbeat: e.Timestamp,
		}
		c.agents[e.ActorID] = a
		if role == RoleLead {
			c.lead = e.ActorID
		}

	case event.ActionAgentLeft:
		delete(c.agents, e.ActorID)
		if c.lead == e.ActorID {
			c.lead = ""
		}

	case event.ActionAgentHeartbeat:
		if a, ok := c.agents[e.ActorID]; ok {
			a.LastHeartbeat = e.Timestamp
		}

	case event.ActionAgentStatusChanged:
		id := e.Metadata["agent_id"]
		if id == "" {
			id = e.ActorID
		}
		a, ok := c.agents[id]
		if !ok {
			return
		}
		a.Status = AgentStatus(e.Metadata["to"])
		if e.ActorID == id {
			a.LastHeartbeat = e.Timestamp
		}
		if a.Status == AgentOffline && c.lead == id {
			a.Role = RoleWorker
			c.lead = ""
		}

	case event.ActionResourceClaimed:
		r := c.resourceLocked(e.ResourcePath)
		ts := e.Timestamp
		r.State = ResourceClaimed
		r.Owner = e.ActorID
		r.ClaimedAt = &ts
		if e.AfterHash != "" {
			r.ContentHash = e.AfterHash
		}

	case event.ActionResourceReleased:
		r := c.resourceLocked(e.ResourcePath)
		r.State = ResourceFree
		r.Owner = ""
		r.ClaimedAt = nil
		r.LastModifiedBy = e.ActorID
		if e.AfterHash != "" {
			r.ContentHash = e.AfterHash
		}

	case event.ActionResourceLocked:
		r := c.resourceLocked(e.ResourcePath)
		ts := e.Timestamp
		r.State = ResourceLocked
		r.Owner = e.ActorID
		r.ClaimedAt = &ts
		if e.AfterHash != "" {
			r.ContentHash = e.AfterHash
		}

	case event.ActionResourceModified:
		// Informational watcher event; track the latest observed content.
		if r, ok := c.resources[e.ResourcePath]; ok {
			if e.AfterHash != "" {
				r.ContentHash = e.AfterHash
			}
		}

	case event.ActionResourceConflictDetected:
		r := c.resourceLocked(e.ResourcePath)
		r.State = ResourceConflicted
		r.LastModifiedBy = e.Metadata["modified_by"]

	case event.ActionResourceConflictResolved:
		r := c.resourceLocked(e.ResourcePath)
		r.State = ResourceFree
		r.Owner = ""
		r.ClaimedAt = nil
		if e.AfterHash != "" {
			r.ContentHash = e.AfterHash
		}

	case event.ActionTaskCreated:
		c.tasks[e.TaskID] = &Task{
			ID:          e.TaskID,
			Title:       e.Metadata["title"],
			Description: e.Metadata["description"],
			AssignedTo:  e.Metadata["assigned_to"],
			AssignedBy:  e.Metadata["assigned_by"],
			Status:      TaskStatus(e.Metadata["status"]),
			Resources:   splitList(e.Metadata["resources"]),
			DependsOn:   splitList(e.Metadata["depends_on"]),
			CreatedAt:   e.Timestamp,
		}

	case event.ActionTaskStarted, event.ActionTaskCompleted, event.ActionTaskBlocked,
		event.ActionTaskAssigned, event.ActionTaskUpdated:
		t, ok := c.tasks[e.TaskID]
		if !ok {
			return
		}
		ts := e.Timestamp
		t.Status = TaskStatus(e.Metadata["to"])
		if t.Status == TaskInProgress && t.StartedAt == nil {
			t.StartedAt = &ts
		}
		if t.Status == TaskDone {
			t.CompletedAt = &ts
		}

	case event.ActionHandoffInitiated:
		id := e.Metadata["handoff_id"]
		c.handoffs[id] = &Handoff{
			ID:            id,
			FromAgent:     e.ActorID,
			ToAgent:       e.Metadata["to_agent"],
			TaskID:        e.TaskID,
			Status:        HandoffPending,
			Summary:       e.Metadata["summary"],
			FilesModified: splitList(e.Metadata["files_modified"]),
			FilesCreated:  splitList(e.Metadata["files_created"]),
			Context:       e.Metadata["context"],
			Blockers:      splitList(e.Metadata["blockers"]),
			CreatedAt:     e.Timestamp,
		}

	case event.ActionHandoffAccepted:
		if h, ok := c.handoffs[e.Metadata["handoff_id"]]; ok {
			h.Status = HandoffAccepted
		}

	case event.ActionHandoffRejected:
		if h, ok := c.handoffs[e.Metadata["handoff_id"]]; ok {
			h.Status = HandoffRejected
		}

	case event.ActionAuthorityDecision:
		if e.Metadata["type"] != "lead_promotion" {
			return
		}
		newLead := e.Metadata["new_lead"]
		c.lead = newLead
		if a, ok := c.agents[newLead]; ok {
			a.Role = RoleLead
		}
	}
}

func (c *Coordinator) resourceLocked(path string) *Resource {
	r, ok := c.resources[path]
	if !ok {
		r = &Resource{Path: path, State: ResourceFree}
		c.resources[path] = r
	}
	return r
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
