// Command crewctl is the operator CLI for a running crewd daemon.
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/internal/event"
)

var (
	app  = kingpin.New("crewctl", "Control a running crewd coordination daemon")
	addr = app.Flag("addr", "Daemon base URL").Default("http://localhost:3700").Envar("CREWD_ADDR").String()

	statusCmd = app.Command("status", "Show the coordination snapshot")

	agentCmd = app.Command("agent", "Agent management commands")

	agentListCmd = agentCmd.Command("list", "List registered agents")

	agentRegisterCmd  = agentCmd.Command("register", "Register an agent")
	agentRegisterID   = agentRegisterCmd.Arg("id", "Agent ID").Required().String()
	agentRegisterTool = agentRegisterCmd.Flag("tool", "Tool kind (claude-code, cursor, ...)").Default("unknown").String()
	agentRegisterRole = agentRegisterCmd.Flag("role", "Requested role").Default("worker").String()
	agentRegisterCaps = agentRegisterCmd.Flag("cap", "Capability (repeatable)").Strings()

	agentRemoveCmd = agentCmd.Command("remove", "Deregister an agent")
	agentRemoveID  = agentRemoveCmd.Arg("id", "Agent ID").Required().String()

	agentStatusCmd    = agentCmd.Command("status", "Update an agent's status")
	agentStatusID     = agentStatusCmd.Arg("id", "Agent ID").Required().String()
	agentStatusStatus = agentStatusCmd.Arg("status", "New status").Required().String()

	claimCmd     = app.Command("claim", "Claim a resource for an agent")
	claimPath    = claimCmd.Arg("path", "Resource path").Required().String()
	claimAgent   = claimCmd.Flag("agent", "Claiming agent ID").Required().String()
	claimTaskID  = claimCmd.Flag("task", "Task the claim serves").String()
	releaseCmd   = app.Command("release", "Release a claimed resource")
	releasePath  = releaseCmd.Arg("path", "Resource path").Required().String()
	releaseAgent = releaseCmd.Flag("agent", "Owning agent ID").Required().String()
	lockCmd      = app.Command("lock", "Lock a resource (lead only)")
	lockPath     = lockCmd.Arg("path", "Resource path").Required().String()
	lockAgent    = lockCmd.Flag("agent", "Lead agent ID").Required().String()

	resolveCmd        = app.Command("resolve", "Resolve a conflicted resource")
	resolvePath       = resolveCmd.Arg("path", "Resource path").Required().String()
	resolveResolution = resolveCmd.Flag("resolution", "How the conflict was settled").Required().String()
	resolveBy         = resolveCmd.Flag("by", "Resolving agent ID").Required().String()

	taskCmd = app.Command("task", "Task management commands")

	taskListCmd = taskCmd.Command("list", "List tasks")

	taskCreateCmd   = taskCmd.Command("create", "Create a task")
	taskCreateTitle = taskCreateCmd.Arg("title", "Task title").Required().String()
	taskCreateDesc  = taskCreateCmd.Flag("desc", "Description").String()
	taskCreateTo    = taskCreateCmd.Flag("assign", "Assignee agent ID").String()
	taskCreateBy    = taskCreateCmd.Flag("by", "Creating agent ID").Required().String()
	taskCreateRes   = taskCreateCmd.Flag("resource", "Resource path (repeatable)").Strings()
	taskCreateDeps  = taskCreateCmd.Flag("depends-on", "Task dependency ID (repeatable)").Strings()

	taskStatusCmd    = taskCmd.Command("status", "Update task status")
	taskStatusID     = taskStatusCmd.Arg("id", "Task ID").Required().String()
	taskStatusStatus = taskStatusCmd.Arg("status", "New status").Required().String()
	taskStatusAgent  = taskStatusCmd.Flag("agent", "Acting agent ID").Required().String()

	handoffCmd = app.Command("handoff", "Handoff commands")

	handoffListCmd = handoffCmd.Command("list", "List handoffs")

	handoffCreateCmd     = handoffCmd.Command("create", "Initiate a handoff")
	handoffCreateFrom    = handoffCreateCmd.Flag("from", "Handing-off agent ID").Required().String()
	handoffCreateTo      = handoffCreateCmd.Flag("to", "Target agent ID (empty for open)").String()
	handoffCreateTask    = handoffCreateCmd.Flag("task", "Task ID").Required().String()
	handoffCreateSummary = handoffCreateCmd.Flag("summary", "Work summary").Required().String()

	handoffAcceptCmd   = handoffCmd.Command("accept", "Accept a pending handoff")
	handoffAcceptID    = handoffAcceptCmd.Arg("id", "Handoff ID").Required().String()
	handoffAcceptAgent = handoffAcceptCmd.Flag("agent", "Accepting agent ID").Required().String()

	handoffRejectCmd    = handoffCmd.Command("reject", "Reject a pending handoff")
	handoffRejectID     = handoffRejectCmd.Arg("id", "Handoff ID").Required().String()
	handoffRejectAgent  = handoffRejectCmd.Flag("agent", "Rejecting agent ID").Required().String()
	handoffRejectReason = handoffRejectCmd.Flag("reason", "Why").String()

	eventsCmd        = app.Command("events", "Query the event log")
	eventsActor      = eventsCmd.Flag("actor", "Filter by actor ID").String()
	eventsAction     = eventsCmd.Flag("action", "Filter by action").String()
	eventsPath       = eventsCmd.Flag("path", "Filter by resource path").String()
	eventsLimit      = eventsCmd.Flag("limit", "Max events").Default("0").Int()
	eventsHeartbeats = eventsCmd.Flag("heartbeats", "Include heartbeat events").Bool()

	archiveCmd = app.Command("archive", "Export the event log to archive storage")
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	c := newClient(*addr)

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = showStatus(c)
	case agentListCmd.FullCommand():
		err = listAgents(c)
	case agentRegisterCmd.FullCommand():
		err = registerAgent(c)
	case agentRemoveCmd.FullCommand():
		err = c.delete("/agents/"+url.PathEscape(*agentRemoveID), nil)
	case agentStatusCmd.FullCommand():
		err = updateAgentStatus(c)
	case claimCmd.FullCommand():
		err = claim(c)
	case releaseCmd.FullCommand():
		err = release(c)
	case lockCmd.FullCommand():
		err = lock(c)
	case resolveCmd.FullCommand():
		err = resolve(c)
	case taskListCmd.FullCommand():
		err = listTasks(c)
	case taskCreateCmd.FullCommand():
		err = createTask(c)
	case taskStatusCmd.FullCommand():
		err = updateTaskStatus(c)
	case handoffListCmd.FullCommand():
		err = listHandoffs(c)
	case handoffCreateCmd.FullCommand():
		err = createHandoff(c)
	case handoffAcceptCmd.FullCommand():
		err = resolveHandoff(c, *handoffAcceptID, "accept", *handoffAcceptAgent, "")
	case handoffRejectCmd.FullCommand():
		err = resolveHandoff(c, *handoffRejectID, "reject", *handoffRejectAgent, *handoffRejectReason)
	case eventsCmd.FullCommand():
		err = listEvents(c)
	case archiveCmd.FullCommand():
		err = exportArchive(c)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func snapshot(c *client) (*coord.Snapshot, error) {
	var snap coord.Snapshot
	if err := c.get("/snapshot", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func showStatus(c *client) error {
	snap, err := snapshot(c)
	if err != nil {
		return err
	}
	lead := snap.Lead
	if lead == "" {
		lead = yellow("(none)")
	}
	fmt.Printf("%s  lead=%s  events=%d\n", bold("crewd"), lead, snap.EventCount)
	fmt.Printf("agents=%d resources=%d tasks=%d handoffs=%d\n",
		len(snap.Agents), len(snap.Resources), len(snap.Tasks), len(snap.Handoffs))
	for _, r := range snap.Resources {
		if r.State == coord.ResourceFree {
			continue
		}
		state := string(r.State)
		switch r.State {
		case coord.ResourceConflicted:
			state = red(state)
		case coord.ResourceLocked:
			state = yellow(state)
		default:
			state = green(state)
		}
		fmt.Printf("  %s %s %s\n", state, r.Path, cyan(r.Owner))
	}
	return nil
}

func listAgents(c *client) error {
	snap, err := snapshot(c)
	if err != nil {
		return err
	}
	for _, a := range snap.Agents {
		role := string(a.Role)
		if a.Role == coord.RoleLead {
			role = green(role)
		}
		status := string(a.Status)
		if a.Status == coord.AgentOffline {
			status = red(status)
		}
		fmt.Printf("%s  %s  %s  %s  last heartbeat %s\n",
			bold(a.ID), a.ToolKind, role, status, a.LastHeartbeat.Local().Format("15:04:05"))
	}
	return nil
}

func registerAgent(c *client) error {
	var agent coord.Agent
	err := c.post("/agents", map[string]any{
		"id":           *agentRegisterID,
		"tool_kind":    *agentRegisterTool,
		"role":         *agentRegisterRole,
		"capabilities": *agentRegisterCaps,
	}, &agent)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s as %s\n", bold(agent.ID), green(string(agent.Role)))
	return nil
}

func updateAgentStatus(c *client) error {
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.post("/agents/"+url.PathEscape(*agentStatusID)+"/status",
		map[string]string{"status": *agentStatusStatus}, &out)
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("agent %q not registered", *agentStatusID)
	}
	return nil
}

func claim(c *client) error {
	var res coord.ClaimResult
	err := c.post("/resources/claim", map[string]string{
		"path":     *claimPath,
		"agent_id": *claimAgent,
		"task_id":  *claimTaskID,
	}, &res)
	if err != nil {
		return err
	}
	if res.Granted {
		fmt.Printf("%s %s\n", green("granted"), *claimPath)
		return nil
	}
	fmt.Printf("%s %s: %s\n", red("denied"), *claimPath, res.Reason)
	os.Exit(1)
	return nil
}

func release(c *client) error {
	var out struct {
		Released bool `json:"released"`
	}
	err := c.post("/resources/release", map[string]string{
		"path":     *releasePath,
		"agent_id": *releaseAgent,
	}, &out)
	if err != nil {
		return err
	}
	if !out.Released {
		return fmt.Errorf("%s is not claimed by %s", *releasePath, *releaseAgent)
	}
	fmt.Printf("%s %s\n", green("released"), *releasePath)
	return nil
}

func lock(c *client) error {
	var out struct {
		Locked bool `json:"locked"`
	}
	err := c.post("/resources/lock", map[string]string{
		"path":     *lockPath,
		"agent_id": *lockAgent,
	}, &out)
	if err != nil {
		return err
	}
	if !out.Locked {
		return fmt.Errorf("lock denied for %s", *lockPath)
	}
	fmt.Printf("%s %s\n", yellow("locked"), *lockPath)
	return nil
}

func resolve(c *client) error {
	var out struct {
		Resolved bool `json:"resolved"`
	}
	err := c.post("/resources/resolve", map[string]string{
		"path":        *resolvePath,
		"resolution":  *resolveResolution,
		"resolved_by": *resolveBy,
	}, &out)
	if err != nil {
		return err
	}
	if !out.Resolved {
		return fmt.Errorf("%s is not conflicted", *resolvePath)
	}
	fmt.Printf("%s %s\n", green("resolved"), *resolvePath)
	return nil
}

func listTasks(c *client) error {
	snap, err := snapshot(c)
	if err != nil {
		return err
	}
	for _, t := range snap.Tasks {
		assignee := t.AssignedTo
		if assignee == "" {
			assignee = "(unassigned)"
		}
		fmt.Printf("%s  %-12s %s  %s\n", bold(t.ID), t.Status, cyan(assignee), t.Title)
	}
	return nil
}

func createTask(c *client) error {
	var task coord.Task
	err := c.post("/tasks", map[string]any{
		"title":       *taskCreateTitle,
		"description": *taskCreateDesc,
		"assigned_to": *taskCreateTo,
		"assigned_by": *taskCreateBy,
		"resources":   *taskCreateRes,
		"depends_on":  *taskCreateDeps,
	}, &task)
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\n", bold(task.ID), task.Status)
	return nil
}

func updateTaskStatus(c *client) error {
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.post("/tasks/"+url.PathEscape(*taskStatusID)+"/status", map[string]string{
		"status":   *taskStatusStatus,
		"agent_id": *taskStatusAgent,
	}, &out)
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("task %q not found", *taskStatusID)
	}
	return nil
}

func listHandoffs(c *client) error {
	snap, err := snapshot(c)
	if err != nil {
		return err
	}
	for _, h := range snap.Handoffs {
		to := h.ToAgent
		if to == "" {
			to = "(open)"
		}
		fmt.Printf("%s  %-8s %s -> %s  task=%s  %s\n",
			bold(h.ID), h.Status, cyan(h.FromAgent), cyan(to), h.TaskID, h.Summary)
	}
	return nil
}

func createHandoff(c *client) error {
	var h coord.Handoff
	err := c.post("/handoffs", map[string]any{
		"from_agent": *handoffCreateFrom,
		"to_agent":   *handoffCreateTo,
		"task_id":    *handoffCreateTask,
		"summary":    *handoffCreateSummary,
	}, &h)
	if err != nil {
		return err
	}
	fmt.Printf("handoff %s initiated\n", bold(h.ID))
	return nil
}

func resolveHandoff(c *client, id, verb, agent, reason string) error {
	var out struct {
		OK bool `json:"ok"`
	}
	body := map[string]string{"agent_id": agent}
	if reason != "" {
		body["reason"] = reason
	}
	if err := c.post("/handoffs/"+url.PathEscape(id)+"/"+verb, body, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("handoff %q is not pending", id)
	}
	fmt.Printf("handoff %s %sed\n", bold(id), verb)
	return nil
}

func listEvents(c *client) error {
	q := url.Values{}
	if *eventsActor != "" {
		q.Set("actor", *eventsActor)
	}
	if *eventsAction != "" {
		q.Set("action", *eventsAction)
	}
	if *eventsPath != "" {
		q.Set("path", *eventsPath)
	}
	if *eventsLimit > 0 {
		q.Set("limit", strconv.Itoa(*eventsLimit))
	}
	if *eventsHeartbeats {
		q.Set("include_heartbeats", "true")
	}
	var out struct {
		Events []*event.Event `json:"events"`
	}
	if err := c.get("/events", q, &out); err != nil {
		return err
	}
	for _, e := range out.Events {
		line := fmt.Sprintf("%s  %-26s %s", e.Timestamp.Local().Format("15:04:05.000"), e.Action, cyan(e.ActorID))
		if e.ResourcePath != "" {
			line += "  " + e.ResourcePath
		}
		if e.TaskID != "" {
			line += "  task=" + e.TaskID
		}
		fmt.Println(line)
	}
	return nil
}

func exportArchive(c *client) error {
	var out struct {
		Path   string `json:"path"`
		Events int64  `json:"events"`
	}
	if err := c.post("/archive", struct{}{}, &out); err != nil {
		return err
	}
	fmt.Printf("archived %d events to %s\n", out.Events, out.Path)
	return nil
}
