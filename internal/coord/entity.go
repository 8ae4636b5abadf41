// Package coord implements the coordination state machine: an in-memory
// projection of the event log covering agents, resources, tasks and
// handoffs, plus the derived lead pointer. The projection is a materialized
// view; the log remains the source of truth.
package coord

import "time"

type AgentRole string

const (
	RoleLead       AgentRole = "lead"
	RoleSpecialist AgentRole = "specialist"
	RoleWorker     AgentRole = "worker"
)

type AgentStatus string

const (
	AgentIdle          AgentStatus = "idle"
	AgentWorking       AgentStatus = "working"
	AgentBlocked       AgentStatus = "blocked"
	AgentWaitingReview AgentStatus = "waiting_review"
	AgentOffline       AgentStatus = "offline"
)

// Agent is one coordinated actor instance. ToolKind is opaque to the core;
// it exists for display by external consumers only.
type Agent struct {
	ID            string      `json:"id"`
	ToolKind      string      `json:"tool_kind"`
	Role          AgentRole   `json:"role"`
	Status        AgentStatus `json:"status"`
	CurrentTask   string      `json:"current_task,omitempty"`
	Capabilities  []string    `json:"capabilities,omitempty"`
	JoinedAt      time.Time   `json:"joined_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
}

type ResourceState string

const (
	ResourceFree       ResourceState = "free"
	ResourceClaimed    ResourceState = "claimed"
	ResourceLocked     ResourceState = "locked"
	ResourceConflicted ResourceState = "conflicted"
)

// Resource is one coordinated file-like unit, created implicitly on first
// claim and never deleted.
type Resource struct {
	Path           string        `json:"path"`
	State          ResourceState `json:"state"`
	Owner          string        `json:"owner,omitempty"`
	ClaimedAt      *time.Time    `json:"claimed_at,omitempty"`
	LastModifiedBy string        `json:"last_modified_by,omitempty"`
	ContentHash    string        `json:"content_hash,omitempty"`
}

type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
	TaskBlocked    TaskStatus = "blocked"
)

// Task is a unit of assigned work. Resources and DependsOn are advisory
// scope; the claim logic does not enforce them.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	AssignedBy  string     `json:"assigned_by"`
	Status      TaskStatus `json:"status"`
	Resources   []string   `json:"resources,omitempty"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type HandoffStatus string

const (
	HandoffPending  HandoffStatus = "pending"
	HandoffAccepted HandoffStatus = "accepted"
	HandoffRejected HandoffStatus = "rejected"
)

// Handoff is a structured work transfer. ToAgent empty means "anyone".
// Accept/reject is terminal; a resolved handoff never changes again.
type Handoff struct {
	ID            string        `json:"id"`
	FromAgent     string        `json:"from_agent"`
	ToAgent       string        `json:"to_agent,omitempty"`
	TaskID        string        `json:"task_id"`
	Status        HandoffStatus `json:"status"`
	Summary       string        `json:"summary"`
	FilesModified []string      `json:"files_modified,omitempty"`
	FilesCreated  []string      `json:"files_created,omitempty"`
	Context       string        `json:"context,omitempty"`
	Blockers      []string      `json:"blockers,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ClaimResult is the structured outcome of a claim attempt. Denials carry
// the current owner and a reason so callers can decide whether to retry,
// escalate or give up.
type ClaimResult struct {
	Granted bool   `json:"granted"`
	Owner   string `json:"owner,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshot is a consistent point-in-time read of the whole projection.
type Snapshot struct {
	Agents     []*Agent    `json:"agents"`
	Resources  []*Resource `json:"resources"`
	Tasks      []*Task     `json:"tasks"`
	Handoffs   []*Handoff  `json:"handoffs"`
	Lead       string      `json:"lead,omitempty"`
	EventCount int64       `json:"event_count"`
}
