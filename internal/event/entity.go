// Package event defines the immutable coordination event record and the
// append-only log it lives in. The log is the single source of truth: every
// projection the daemon holds in memory is derivable from it.
package event

import "time"

// Action identifies the kind of coordination event.
type Action string

const (
	ActionAgentJoined        Action = "agent.joined"
	ActionAgentLeft          Action = "agent.left"
	ActionAgentHeartbeat     Action = "agent.heartbeat"
	ActionAgentStatusChanged Action = "agent.status_changed"

	ActionResourceClaimed          Action = "resource.claimed"
	ActionResourceReleased         Action = "resource.released"
	ActionResourceLocked           Action = "resource.locked"
	ActionResourceModified         Action = "resource.modified"
	ActionResourceConflictDetected Action = "resource.conflict_detected"
	ActionResourceConflictResolved Action = "resource.conflict_resolved"

	ActionTaskCreated   Action = "task.created"
	ActionTaskAssigned  Action = "task.assigned"
	ActionTaskStarted   Action = "task.started"
	ActionTaskCompleted Action = "task.completed"
	ActionTaskBlocked   Action = "task.blocked"
	ActionTaskUpdated   Action = "task.updated"

	ActionHandoffInitiated Action = "handoff.initiated"
	ActionHandoffAccepted  Action = "handoff.accepted"
	ActionHandoffRejected  Action = "handoff.rejected"

	ActionAuthorityDecision Action = "authority.decision"
)

// SystemActor is the actor id recorded on events the daemon emits on its own
// behalf (liveness sweeps, lead promotion).
const SystemActor = "system"

// Event is one immutable record in the coordination log. Once appended it is
// never mutated or deleted; log order (Seq) breaks timestamp ties.
type Event struct {
	// Seq is the insertion-order sequence assigned by the store. Zero until
	// the event has been appended.
	Seq          int64             `json:"seq"`
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	ActorID      string            `json:"actor_id"`
	Action       Action            `json:"action"`
	ResourcePath string            `json:"resource_path,omitempty"`
	TaskID       string            `json:"task_id,omitempty"`
	BeforeHash   string            `json:"before_hash,omitempty"`
	AfterHash    string            `json:"after_hash,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IsHeartbeat reports whether the event is a heartbeat. Heartbeats stay in
// the log but are excluded from human-facing timelines by default.
func (e *Event) IsHeartbeat() bool {
	return e.Action == ActionAgentHeartbeat
}
