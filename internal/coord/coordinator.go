package coord

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/pkg/cerr"
)

// Hasher fingerprints the current content of a coordinated path. The
// coordinator itself does no file I/O; the daemon injects a sha256 file
// hasher and tests inject fakes.
type Hasher func(path string) (string, error)

// Coordinator is the coordination state machine. One mutex guards the whole
// projection: every operation's read-decide-mutate span is a single critical
// section, so two concurrent claims on the same free path cannot both win.
//
// Durability ordering is append-before-apply. A failed log append aborts the
// operation before the projection changes, so the projection never holds
// state the log cannot account for.
type Coordinator struct {
	mu  sync.Mutex
	log *event.Log

	hasher Hasher
	now    func() time.Time

	agents    map[string]*Agent
	resources map[string]*Resource
	tasks     map[string]*Task
	handoffs  map[string]*Handoff
	lead      string
}

type Option func(*Coordinator)

// WithHasher injects the content fingerprint function used when resources
// are claimed, released or resolved.
func WithHasher(h Hasher) Option {
	return func(c *Coordinator) { c.hasher = h }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(log *event.Log, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:       log,
		now:       time.Now,
		agents:    make(map[string]*Agent),
		resources: make(map[string]*Resource),
		tasks:     make(map[string]*Task),
		handoffs:  make(map[string]*Handoff),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Log exposes the underlying event log for read-only consumers (query,
// count, subscribe). Mutation goes through coordinator operations only.
func (c *Coordinator) Log() *event.Log {
	return c.log
}

func (c *Coordinator) appendLocked(ctx context.Context, e *event.Event) error {
	_, err := c.log.Append(ctx, e)
	return err
}

func (c *Coordinator) hashOf(path string) string {
	if c.hasher == nil {
		return ""
	}
	h, err := c.hasher(path)
	if err != nil {
		return ""
	}
	return h
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

// RegisterAgent registers (or re-registers) an agent. The first agent to
// register while no lead exists is promoted to lead regardless of the
// requested role.
func (c *Coordinator) RegisterAgent(ctx context.Context, id, toolKind string, role AgentRole, capabilities []string) (*Agent, error) {
	if id == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "agent id is required", nil)
	}
	if role == "" {
		role = RoleWorker
	}
	if role != RoleLead && role != RoleSpecialist && role != RoleWorker {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown role %q", role), nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, rejoined := c.agents[id]
	forcedLead := c.lead == "" || c.lead == id
	if forcedLead {
		role = RoleLead
	} else if role == RoleLead {
		// A lead already exists; the requested role is downgraded rather
		// than violating the single-lead invariant.
		role = RoleWorker
	}

	now := c.now().UTC()
	meta := map[string]string{
		"tool_kind": toolKind,
		"role":      string(role),
	}
	if len(capabilities) > 0 {
		meta["capabilities"] = strings.Join(capabilities, ",")
	}
	if rejoined {
		meta["rejoined"] = "true"
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:  id,
		Action:   event.ActionAgentJoined,
		Metadata: meta,
	}); err != nil {
		return nil, err
	}

	a := &Agent{
		ID:            id,
		ToolKind:      toolKind,
		Role:          role,
		Status:        AgentIdle,
		Capabilities:  append([]string(nil), capabilities...),
		JoinedAt:      now,
		LastHeartbeat: now,
	}
	c.agents[id] = a
	if forcedLead {
		c.lead = id
	}
	return cloneAgent(a), nil
}

// RemoveAgent deregisters an agent, releasing every resource it owns before
// the agent.left event is appended. Unknown ids are a no-op.
func (c *Coordinator) RemoveAgent(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.agents[id]
	if !ok {
		return nil
	}

	var owned []string
	for path, r := range c.resources {
		if r.Owner == id {
			owned = append(owned, path)
		}
	}
	sort.Strings(owned)
	for _, path := range owned {
		r := c.resources[path]
		after := c.hashOf(path)
		if err := c.appendLocked(ctx, &event.Event{
			ActorID:      id,
			Action:       event.ActionResourceReleased,
			ResourcePath: path,
			BeforeHash:   r.ContentHash,
			AfterHash:    after,
			Metadata:     map[string]string{"cause": "deregistration"},
		}); err != nil {
			return err
		}
		r.State = ResourceFree
		r.Owner = ""
		r.ClaimedAt = nil
		r.LastModifiedBy = id
		if after != "" {
			r.ContentHash = after
		}
	}

	wasLead := c.lead == id
	if err := c.appendLocked(ctx, &event.Event{
		ActorID: id,
		Action:  event.ActionAgentLeft,
		Metadata: map[string]string{
			"role":     string(a.Role),
			"was_lead": fmt.Sprintf("%t", wasLead),
		},
	}); err != nil {
		return err
	}
	delete(c.agents, id)

	if wasLead {
		c.lead = ""
		if err := c.promoteLeadLocked(ctx, "lead_deregistered"); err != nil {
			return err
		}
	}
	return nil
}

// Heartbeat bumps the agent's liveness timestamp. Unknown ids are a no-op.
func (c *Coordinator) Heartbeat(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.agents[id]
	if !ok {
		return false, nil
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID: id,
		Action:  event.ActionAgentHeartbeat,
	}); err != nil {
		return false, err
	}
	a.LastHeartbeat = c.now().UTC()
	return true, nil
}

// UpdateAgentStatus sets the agent's status and bumps its heartbeat.
// Unknown ids are a no-op.
func (c *Coordinator) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) (bool, error) {
	if !validAgentStatus(status) {
		return false, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown agent status %q", status), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setStatusLocked(ctx, id, status, id, "")
}

func validAgentStatus(s AgentStatus) bool {
	switch s {
	case AgentIdle, AgentWorking, AgentBlocked, AgentWaitingReview, AgentOffline:
		return true
	}
	return false
}

func (c *Coordinator) setStatusLocked(ctx context.Context, id string, status AgentStatus, actor, reason string) (bool, error) {
	a, ok := c.agents[id]
	if !ok {
		return false, nil
	}
	meta := map[string]string{
		"agent_id": id,
		"from":     string(a.Status),
		"to":       string(status),
	}
	if reason != "" {
		meta["reason"] = reason
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:  actor,
		Action:   event.ActionAgentStatusChanged,
		Metadata: meta,
	}); err != nil {
		return false, err
	}
	a.Status = status
	if actor == id {
		a.LastHeartbeat = c.now().UTC()
	}

	if status == AgentOffline && c.lead == id {
		// Demote the ex-lead so only the promoted candidate holds the lead
		// role, and so a revived ex-lead is electable again as a worker.
		a.Role = RoleWorker
		c.lead = ""
		if reason == "" {
			reason = "lead_offline"
		}
		if err := c.promoteLeadLocked(ctx, reason); err != nil {
			return true, err
		}
	}
	return true, nil
}

// MarkAgentsOffline transitions every agent whose heartbeat is older than
// timeout to offline, attributed to the system actor. It returns the ids of
// the agents it marked. The agents' resource claims are left intact; only
// RemoveAgent releases claims.
func (c *Coordinator) MarkAgentsOffline(ctx context.Context, timeout time.Duration) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().UTC().Add(-timeout)
	var stale []string
	for id, a := range c.agents {
		if a.Status != AgentOffline && a.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		if _, err := c.setStatusLocked(ctx, id, AgentOffline, event.SystemActor, "heartbeat_timeout"); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

// promoteLeadLocked runs the deterministic lead election: the earliest
// joined non-offline specialist, else the earliest joined non-offline
// worker, else no lead at all. No negotiation, effective immediately.
func (c *Coordinator) promoteLeadLocked(ctx context.Context, reason string) error {
	candidate := c.electLocked(RoleSpecialist)
	if candidate == nil {
		candidate = c.electLocked(RoleWorker)
	}

	newLead := ""
	if candidate != nil {
		newLead = candidate.ID
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID: event.SystemActor,
		Action:  event.ActionAuthorityDecision,
		Metadata: map[string]string{
			"type":     "lead_promotion",
			"new_lead": newLead,
			"reason":   reason,
		},
	}); err != nil {
		return err
	}
	if candidate != nil {
		candidate.Role = RoleLead
	}
	c.lead = newLead
	return nil
}

func (c *Coordinator) electLocked(role AgentRole) *Agent {
	var best *Agent
	for _, a := range c.agents {
		if a.Role != role || a.Status == AgentOffline {
			continue
		}
		if best == nil || a.JoinedAt.Before(best.JoinedAt) ||
			(a.JoinedAt.Equal(best.JoinedAt) && a.ID < best.ID) {
			best = a
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

// ClaimResource attempts to claim path for agentID. Unknown paths are
// created claimed (the common first-touch case). Denials are results, not
// errors.
func (c *Coordinator) ClaimResource(ctx context.Context, path, agentID, taskID string) (ClaimResult, error) {
	if path == "" {
		return ClaimResult{}, cerr.NewError(cerr.InvalidArgument, "resource path is required", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.agents[agentID]; !ok {
		return ClaimResult{Granted: false, Reason: "agent not registered"}, nil
	}

	r, exists := c.resources[path]
	if exists {
		switch r.State {
		case ResourceClaimed:
			if r.Owner == agentID {
				// Idempotent reclaim, no new event.
				return ClaimResult{Granted: true, Owner: agentID}, nil
			}
			return ClaimResult{
				Granted: false,
				Owner:   r.Owner,
				Reason:  fmt.Sprintf("already claimed by %s", r.Owner),
			}, nil
		case ResourceLocked:
			return ClaimResult{
				Granted: false,
				Owner:   r.Owner,
				Reason:  fmt.Sprintf("locked by lead %s; locks are not claims", r.Owner),
			}, nil
		case ResourceConflicted:
			return ClaimResult{
				Granted: false,
				Reason:  "resource is conflicted; resolve the conflict first",
			}, nil
		}
	}

	hash := c.hashOf(path)
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:      agentID,
		Action:       event.ActionResourceClaimed,
		ResourcePath: path,
		TaskID:       taskID,
		AfterHash:    hash,
	}); err != nil {
		return ClaimResult{}, err
	}

	now := c.now().UTC()
	if !exists {
		r = &Resource{Path: path}
		c.resources[path] = r
	}
	r.State = ResourceClaimed
	r.Owner = agentID
	r.ClaimedAt = &now
	if hash != "" {
		r.ContentHash = hash
	}
	return ClaimResult{Granted: true, Owner: agentID}, nil
}

// ReleaseResource releases a claim or lock. Only the recorded owner may
// release; that includes the lead, which cannot release another agent's
// claim through this path.
func (c *Coordinator) ReleaseResource(ctx context.Context, path, agentID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[path]
	if !ok || r.Owner == "" || r.Owner != agentID {
		return false, nil
	}

	after := c.hashOf(path)
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:      agentID,
		Action:       event.ActionResourceReleased,
		ResourcePath: path,
		BeforeHash:   r.ContentHash,
		AfterHash:    after,
		Metadata:     map[string]string{"cause": "explicit"},
	}); err != nil {
		return false, err
	}
	r.State = ResourceFree
	r.Owner = ""
	r.ClaimedAt = nil
	r.LastModifiedBy = agentID
	if after != "" {
		r.ContentHash = after
	}
	return true, nil
}

// LockResource places the stronger lead-only exclusivity grant. Only the
// current lead may lock; a conflicted resource or another agent's claim is
// not overridden.
func (c *Coordinator) LockResource(ctx context.Context, path, agentID string) (bool, error) {
	if path == "" {
		return false, cerr.NewError(cerr.InvalidArgument, "resource path is required", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lead == "" || agentID != c.lead {
		return false, nil
	}

	r, exists := c.resources[path]
	if exists {
		switch r.State {
		case ResourceLocked:
			// Already locked by the lead; idempotent, no new event.
			return r.Owner == agentID, nil
		case ResourceConflicted:
			return false, nil
		case ResourceClaimed:
			if r.Owner != agentID {
				return false, nil
			}
		}
	}

	hash := c.hashOf(path)
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:      agentID,
		Action:       event.ActionResourceLocked,
		ResourcePath: path,
		AfterHash:    hash,
	}); err != nil {
		return false, err
	}

	now := c.now().UTC()
	if !exists {
		r = &Resource{Path: path}
		c.resources[path] = r
	}
	r.State = ResourceLocked
	r.Owner = agentID
	r.ClaimedAt = &now
	if hash != "" {
		r.ContentHash = hash
	}
	return true, nil
}

// DetectConflict records that path was observed changing under an actor
// other than its owner. Unknown paths and unowned or self-modified
// resources raise nothing. Returns whether a conflict was raised.
func (c *Coordinator) DetectConflict(ctx context.Context, path, modifyingAgent string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[path]
	if !ok {
		return false, nil
	}
	if r.Owner == "" || r.Owner == modifyingAgent {
		return false, nil
	}
	if r.State == ResourceConflicted {
		return false, nil
	}

	after := c.hashOf(path)
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:      modifyingAgent,
		Action:       event.ActionResourceConflictDetected,
		ResourcePath: path,
		BeforeHash:   r.ContentHash,
		AfterHash:    after,
		Metadata: map[string]string{
			"owner":       r.Owner,
			"modified_by": modifyingAgent,
		},
	}); err != nil {
		return false, err
	}
	r.State = ResourceConflicted
	r.LastModifiedBy = modifyingAgent
	return true, nil
}

// ResolveConflict frees a conflicted resource, recording the caller's
// resolution tag. The core records the decision; it does not merge.
func (c *Coordinator) ResolveConflict(ctx context.Context, path, resolution, resolvedBy string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[path]
	if !ok || r.State != ResourceConflicted {
		return false, nil
	}

	after := c.hashOf(path)
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:      resolvedBy,
		Action:       event.ActionResourceConflictResolved,
		ResourcePath: path,
		BeforeHash:   r.ContentHash,
		AfterHash:    after,
		Metadata:     map[string]string{"resolution": resolution},
	}); err != nil {
		return false, err
	}
	r.State = ResourceFree
	r.Owner = ""
	r.ClaimedAt = nil
	if after != "" {
		r.ContentHash = after
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

type CreateTaskInput struct {
	Title       string
	Description string
	AssignedTo  string
	AssignedBy  string
	Resources   []string
	DependsOn   []string
}

// CreateTask creates a task. Status starts assigned when AssignedTo is
// given, queued otherwise.
func (c *Coordinator) CreateTask(ctx context.Context, in CreateTaskInput) (*Task, error) {
	if in.Title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task title is required", nil)
	}
	if in.AssignedBy == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "assigned_by is required", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	status := TaskQueued
	if in.AssignedTo != "" {
		status = TaskAssigned
	}
	id := ulid.Make().String()
	meta := map[string]string{
		"title":       in.Title,
		"description": in.Description,
		"assigned_by": in.AssignedBy,
		"status":      string(status),
	}
	if in.AssignedTo != "" {
		meta["assigned_to"] = in.AssignedTo
	}
	if len(in.Resources) > 0 {
		meta["resources"] = strings.Join(in.Resources, ",")
	}
	if len(in.DependsOn) > 0 {
		meta["depends_on"] = strings.Join(in.DependsOn, ",")
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:  in.AssignedBy,
		Action:   event.ActionTaskCreated,
		TaskID:   id,
		Metadata: meta,
	}); err != nil {
		return nil, err
	}

	t := &Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		AssignedBy:  in.AssignedBy,
		Status:      status,
		Resources:   append([]string(nil), in.Resources...),
		DependsOn:   append([]string(nil), in.DependsOn...),
		CreatedAt:   c.now().UTC(),
	}
	c.tasks[id] = t
	return cloneTask(t), nil
}

func validTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskQueued, TaskAssigned, TaskInProgress, TaskReview, TaskDone, TaskBlocked:
		return true
	}
	return false
}

func actionForTaskStatus(s TaskStatus) event.Action {
	switch s {
	case TaskInProgress:
		return event.ActionTaskStarted
	case TaskDone:
		return event.ActionTaskCompleted
	case TaskBlocked:
		return event.ActionTaskBlocked
	case TaskAssigned:
		return event.ActionTaskAssigned
	default:
		return event.ActionTaskUpdated
	}
}

// UpdateTaskStatus transitions a task. StartedAt is set exactly once on the
// first entry to in_progress; CompletedAt on entry to done. Unknown task
// ids return false.
func (c *Coordinator) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, agentID string) (bool, error) {
	if !validTaskStatus(status) {
		return false, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown task status %q", status), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[taskID]
	if !ok {
		return false, nil
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID: agentID,
		Action:  actionForTaskStatus(status),
		TaskID:  taskID,
		Metadata: map[string]string{
			"from": string(t.Status),
			"to":   string(status),
		},
	}); err != nil {
		return false, err
	}

	now := c.now().UTC()
	t.Status = status
	if status == TaskInProgress && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if status == TaskDone {
		t.CompletedAt = &now
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Handoffs
// ---------------------------------------------------------------------------

type CreateHandoffInput struct {
	FromAgent     string
	ToAgent       string
	TaskID        string
	Summary       string
	FilesModified []string
	FilesCreated  []string
	Context       string
	Blockers      []string
}

// CreateHandoff records a pending work transfer. ToAgent empty means any
// agent may pick it up.
func (c *Coordinator) CreateHandoff(ctx context.Context, in CreateHandoffInput) (*Handoff, error) {
	if in.FromAgent == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "from_agent is required", nil)
	}
	if in.TaskID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task_id is required", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := ulid.Make().String()
	meta := map[string]string{
		"handoff_id": id,
		"summary":    in.Summary,
		"context":    in.Context,
	}
	if in.ToAgent != "" {
		meta["to_agent"] = in.ToAgent
	}
	if len(in.FilesModified) > 0 {
		meta["files_modified"] = strings.Join(in.FilesModified, ",")
	}
	if len(in.FilesCreated) > 0 {
		meta["files_created"] = strings.Join(in.FilesCreated, ",")
	}
	if len(in.Blockers) > 0 {
		meta["blockers"] = strings.Join(in.Blockers, ",")
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:  in.FromAgent,
		Action:   event.ActionHandoffInitiated,
		TaskID:   in.TaskID,
		Metadata: meta,
	}); err != nil {
		return nil, err
	}

	h := &Handoff{
		ID:            id,
		FromAgent:     in.FromAgent,
		ToAgent:       in.ToAgent,
		TaskID:        in.TaskID,
		Status:        HandoffPending,
		Summary:       in.Summary,
		FilesModified: append([]string(nil), in.FilesModified...),
		FilesCreated:  append([]string(nil), in.FilesCreated...),
		Context:       in.Context,
		Blockers:      append([]string(nil), in.Blockers...),
		CreatedAt:     c.now().UTC(),
	}
	c.handoffs[id] = h
	return cloneHandoff(h), nil
}

// AcceptHandoff accepts a pending handoff. Accept and reject are terminal:
// a second resolution attempt returns false.
func (c *Coordinator) AcceptHandoff(ctx context.Context, id, agentID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handoffs[id]
	if !ok || h.Status != HandoffPending {
		return false, nil
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID:  agentID,
		Action:   event.ActionHandoffAccepted,
		TaskID:   h.TaskID,
		Metadata: map[string]string{"handoff_id": id},
	}); err != nil {
		return false, err
	}
	h.Status = HandoffAccepted
	return true, nil
}

// RejectHandoff rejects a pending handoff with a reason.
func (c *Coordinator) RejectHandoff(ctx context.Context, id, agentID, reason string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handoffs[id]
	if !ok || h.Status != HandoffPending {
		return false, nil
	}
	if err := c.appendLocked(ctx, &event.Event{
		ActorID: agentID,
		Action:  event.ActionHandoffRejected,
		TaskID:  h.TaskID,
		Metadata: map[string]string{
			"handoff_id": id,
			"reason":     reason,
		},
	}); err != nil {
		return false, err
	}
	h.Status = HandoffRejected
	return true, nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Snapshot returns a consistent point-in-time copy of the projection plus
// the log's total event count. It reflects every operation that returned
// before this call.
func (c *Coordinator) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, err := c.log.Count(ctx)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("count events: %w", err))
	}

	s := &Snapshot{
		Agents:     make([]*Agent, 0, len(c.agents)),
		Resources:  make([]*Resource, 0, len(c.resources)),
		Tasks:      make([]*Task, 0, len(c.tasks)),
		Handoffs:   make([]*Handoff, 0, len(c.handoffs)),
		Lead:       c.lead,
		EventCount: count,
	}
	for _, a := range c.agents {
		s.Agents = append(s.Agents, cloneAgent(a))
	}
	sort.Slice(s.Agents, func(i, j int) bool {
		if !s.Agents[i].JoinedAt.Equal(s.Agents[j].JoinedAt) {
			return s.Agents[i].JoinedAt.Before(s.Agents[j].JoinedAt)
		}
		return s.Agents[i].ID < s.Agents[j].ID
	})
	for _, r := range c.resources {
		s.Resources = append(s.Resources, cloneResource(r))
	}
	sort.Slice(s.Resources, func(i, j int) bool { return s.Resources[i].Path < s.Resources[j].Path })
	for _, t := range c.tasks {
		s.Tasks = append(s.Tasks, cloneTask(t))
	}
	sort.Slice(s.Tasks, func(i, j int) bool { return s.Tasks[i].ID < s.Tasks[j].ID })
	for _, h := range c.handoffs {
		s.Handoffs = append(s.Handoffs, cloneHandoff(h))
	}
	sort.Slice(s.Handoffs, func(i, j int) bool { return s.Handoffs[i].ID < s.Handoffs[j].ID })
	return s, nil
}

// Lead returns the current lead agent id, or "" when no lead exists.
func (c *Coordinator) Lead() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lead
}

// GetAgent returns a copy of the agent, if registered.
func (c *Coordinator) GetAgent(id string) (*Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.agents[id]
	if !ok {
		return nil, false
	}
	return cloneAgent(a), true
}

// GetResource returns a copy of the resource, if known.
func (c *Coordinator) GetResource(path string) (*Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.resources[path]
	if !ok {
		return nil, false
	}
	return cloneResource(r), true
}

// GetTask returns a copy of the task, if known.
func (c *Coordinator) GetTask(id string) (*Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// GetHandoff returns a copy of the handoff, if known.
func (c *Coordinator) GetHandoff(id string) (*Handoff, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handoffs[id]
	if !ok {
		return nil, false
	}
	return cloneHandoff(h), true
}

func cloneAgent(a *Agent) *Agent {
	cp := *a
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	return &cp
}

func cloneResource(r *Resource) *Resource {
	cp := *r
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		cp.ClaimedAt = &t
	}
	return &cp
}

func cloneTask(t *Task) *Task {
	cp := *t
	cp.Resources = append([]string(nil), t.Resources...)
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

func cloneHandoff(h *Handoff) *Handoff {
	cp := *h
	cp.FilesModified = append([]string(nil), h.FilesModified...)
	cp.FilesCreated = append([]string(nil), h.FilesCreated...)
	cp.Blockers = append([]string(nil), h.Blockers...)
	return &cp
}
