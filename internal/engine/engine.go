package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	swarmerrors "github.com/copp1723/swarm-sub001/internal/errors"
	"github.com/copp1723/swarm-sub001/internal/llm"
	"github.com/copp1723/swarm-sub001/internal/logging"
	"github.com/copp1723/swarm-sub001/internal/notify"
	"github.com/copp1723/swarm-sub001/internal/store"
	"github.com/copp1723/swarm-sub001/internal/tools"
)

// SummaryAgentName is the reserved pseudo-agent the executive summary is
// recorded under. Its entries are excluded from later summary input.
const SummaryAgentName = "General Assistant"

const (
	progressContextAnalysis = 10
	progressTurnsStart      = 30
	progressTurnsEnd        = 80
	progressSummary         = 85
	progressComplete        = 100
)

const defaultMaxParallelAgents = 4

// Deps are the engine's collaborators, injected explicitly so tests can
// substitute fakes per run.
type Deps struct {
	Resolver llm.Resolver
	Store    store.Store
	Notifier notify.Notifier
	// Tools is optional. When nil, prompts carry a "filesystem access
	// unavailable" note instead of a directory listing.
	Tools   tools.Invoker
	Logger  logging.Logger
	Metrics *Metrics

	// BaseDirectory is the root every working directory must resolve under.
	BaseDirectory string
	// SummaryModel is the fixed model used for the executive summary.
	SummaryModel string
	// MaxParallelAgents bounds concurrent turns in parallel mode.
	MaxParallelAgents int

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Engine drives multi-agent task runs. Safe for concurrent use; concurrent
// tasks share nothing but the store.
type Engine struct {
	deps Deps

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

func New(deps Deps) (*Engine, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("llm resolver is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if deps.BaseDirectory == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if deps.SummaryModel == "" {
		return nil, fmt.Errorf("summary model is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NopNotifier{}
	}
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.MaxParallelAgents <= 0 {
		deps.MaxParallelAgents = defaultMaxParallelAgents
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	base, err := filepath.Abs(deps.BaseDirectory)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	deps.BaseDirectory = base

	return &Engine{
		deps:    deps,
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Execute validates the request, creates the task record and starts the run
// asynchronously. On invalid input no task record is created.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) ExecuteResult {
	if strings.TrimSpace(req.TaskDescription) == "" {
		return ExecuteResult{Accepted: false, Error: "task description is required"}
	}
	if len(req.Agents) == 0 {
		return ExecuteResult{Accepted: false, Error: "at least one agent is required"}
	}
	for _, agent := range req.Agents {
		if agent.AgentID == "" || agent.AgentName == "" || agent.Model == "" {
			return ExecuteResult{Accepted: false, Error: "every agent needs agent_id, agent_name and model"}
		}
	}

	workdir, err := e.resolveWorkingDirectory(req.WorkingDirectory)
	if err != nil {
		return ExecuteResult{Accepted: false, Error: err.Error()}
	}

	now := e.deps.Now()
	agentIDs := make([]string, len(req.Agents))
	for i, agent := range req.Agents {
		agentIDs[i] = agent.AgentID
	}

	task := &store.TaskStatus{
		TaskID:        store.NewTaskID(),
		Status:        store.StatusRunning,
		Progress:      0,
		CurrentPhase:  "Starting",
		AgentsWorking: agentIDs,
		StartTime:     now,
	}
	if err := e.deps.Store.Create(ctx, task); err != nil {
		return ExecuteResult{Accepted: false, Error: fmt.Sprintf("failed to create task: %v", err)}
	}

	// The run outlives the submitting request; cancellation comes through
	// the per-task cancel registry, not the caller's context.
	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[task.TaskID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	e.deps.Metrics.IncActiveTasks()
	go e.run(runCtx, task.TaskID, req, workdir, now)

	e.deps.Logger.Info("Task %s accepted: %d agents, sequential=%v, workdir=%s",
		task.TaskID, len(req.Agents), req.Sequential, workdir)
	return ExecuteResult{TaskID: task.TaskID, Accepted: true}
}

// Cancel requests that a running task stop at its next phase boundary.
// In-flight model calls are not force-aborted.
func (e *Engine) Cancel(taskID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[taskID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running task: %s", taskID)
	}
	cancel()
	e.deps.Logger.Info("Cancellation requested for task %s", taskID)
	return nil
}

// Wait blocks until all in-flight task runs finish. Used during shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// resolveWorkingDirectory resolves the requested directory against the
// configured base and rejects paths escaping it, then verifies it exists.
func (e *Engine) resolveWorkingDirectory(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("working directory is required")
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(e.deps.BaseDirectory, dir)
	}
	resolved, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %v", err)
	}
	base := e.deps.BaseDirectory
	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", fmt.Errorf("working directory escapes base directory")
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("working directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory is not a directory: %s", dir)
	}
	return resolved, nil
}

// taskRun holds the task-local state for one execution. Never shared across
// tasks.
type taskRun struct {
	engine  *Engine
	taskID  string
	req     ExecuteRequest
	workdir string
	table   *NameTable

	// Standing conversation contexts for handoff targets, keyed by agent
	// id. Guarded because parallel-mode turns may hand off concurrently.
	contextsMu sync.Mutex
	contexts   map[string][]llm.Message

	// Accepted responses carried into later sequential prompts.
	priors []priorResponse

	// Turns completed so far, for the 30..80 progress split.
	turnsMu        sync.Mutex
	turnsCompleted int
}

func (e *Engine) run(ctx context.Context, taskID string, req ExecuteRequest, workdir string, startTime time.Time) {
	defer e.wg.Done()
	defer e.deps.Metrics.DecActiveTasks()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, taskID)
		e.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			e.deps.Logger.Error("Task %s panicked: %v", taskID, r)
			e.failTask(taskID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	run := &taskRun{
		engine:   e,
		taskID:   taskID,
		req:      req,
		workdir:  workdir,
		table:    BuildNameTable(req.Agents),
		contexts: make(map[string][]llm.Message),
	}

	if err := run.execute(ctx, startTime); err != nil {
		e.failTask(taskID, err.Error())
	}
}

func (r *taskRun) execute(ctx context.Context, startTime time.Time) error {
	e := r.engine

	// Phase 1: context analysis. Failure is non-fatal.
	phaseStart := e.deps.Now()
	r.setPhase(ctx, progressContextAnalysis, "Analyzing repository context")
	workspace := AnalyzeWorkspace(r.workdir)
	if workspace.Err != nil {
		e.deps.Logger.Warn("Task %s: workspace analysis failed: %v", r.taskID, workspace.Err)
	}
	toolNote := r.directoryListing(ctx)
	e.deps.Metrics.ObservePhaseDuration("context_analysis", "ok", e.deps.Now().Sub(phaseStart))

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 2: per-agent turns.
	phaseStart = e.deps.Now()
	if r.req.Sequential {
		for _, agent := range r.req.Agents {
			if err := checkCancelled(ctx); err != nil {
				return err
			}
			r.runAgentTurn(ctx, agent, workspace.Summary(), toolNote, r.priors)
		}
	} else {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(e.deps.MaxParallelAgents)
		for _, agent := range r.req.Agents {
			agent := agent
			group.Go(func() error {
				if err := checkCancelled(groupCtx); err != nil {
					return err
				}
				r.runAgentTurn(groupCtx, agent, workspace.Summary(), toolNote, nil)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}
	e.deps.Metrics.ObservePhaseDuration("agent_turns", "ok", e.deps.Now().Sub(phaseStart))

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 3: executive summary. Failure is logged and skipped.
	phaseStart = e.deps.Now()
	r.setPhase(ctx, progressSummary, "Generating executive summary")
	if err := r.generateSummary(ctx); err != nil {
		e.deps.Logger.Warn("Task %s: executive summary failed: %v", r.taskID, err)
		e.deps.Metrics.ObservePhaseDuration("summary", "error", e.deps.Now().Sub(phaseStart))
	} else {
		e.deps.Metrics.ObservePhaseDuration("summary", "ok", e.deps.Now().Sub(phaseStart))
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 4: completion.
	task, err := e.deps.Store.Get(ctx, r.taskID)
	if err != nil {
		return fmt.Errorf("load task for completion: %v", err)
	}
	results := map[string]any{
		"elapsed_seconds":    e.deps.Now().Sub(startTime).Seconds(),
		"agents_involved":    len(r.req.Agents),
		"conversation_count": len(task.Conversations),
		"sequential":         r.req.Sequential,
	}
	if err := e.deps.Store.SetResults(ctx, r.taskID, results); err != nil {
		return fmt.Errorf("record results: %v", err)
	}
	e.deps.Notifier.Publish(notify.NewProgressUpdate(r.taskID, progressComplete, store.StatusCompleted, "Completed"))
	e.deps.Notifier.Publish(notify.NewTaskComplete(r.taskID, results))
	e.deps.Logger.Info("Task %s completed in %.1fs", r.taskID, e.deps.Now().Sub(startTime).Seconds())
	return nil
}

// directoryListing fetches a workspace listing through the tool invoker, or
// returns the degraded note when the capability is absent or failing.
func (r *taskRun) directoryListing(ctx context.Context) string {
	if r.engine.deps.Tools == nil {
		return "Note: filesystem access unavailable."
	}
	listing, err := r.engine.deps.Tools.Invoke(ctx, "list_directory", map[string]any{"path": r.workdir})
	if err != nil {
		r.engine.deps.Logger.Warn("Task %s: directory listing failed: %v", r.taskID, err)
		return "Note: filesystem access unavailable."
	}
	return "Directory listing:\n" + listing
}

// runAgentTurn executes one agent's turn end to end. Provider failures are
// contained: they surface as an error-text conversation entry and the task
// continues.
func (r *taskRun) runAgentTurn(ctx context.Context, agent AgentConfig, workspace, toolNote string, priors []priorResponse) {
	e := r.engine

	reply, err := r.completeTurn(ctx, agent, workspace, toolNote, priors)
	if err != nil {
		e.deps.Logger.Warn("Task %s: agent %s turn failed: %v", r.taskID, agent.AgentID, err)
		e.deps.Metrics.IncTurnFailure(swarmerrors.GetErrorType(err).String())
		reply = fmt.Sprintf("Error: %v", err)
	}

	r.appendTurn(ctx, agent, reply)
}

// completeTurn performs the model call, handoff routing and the one-shot
// validation retry, returning the final accepted text.
func (r *taskRun) completeTurn(ctx context.Context, agent AgentConfig, workspace, toolNote string, priors []priorResponse) (string, error) {
	e := r.engine

	client, err := e.deps.Resolver(agent.Model)
	if err != nil {
		return "", fmt.Errorf("no client for model %s: %v", agent.Model, err)
	}

	// Cancellation is honored at checkpoints only; in-flight model calls
	// run to completion under the provider timeout.
	callCtx := context.WithoutCancel(ctx)

	prompt := buildTurnPrompt(r.req.TaskDescription, workspace, toolNote, priors)
	resp, err := client.Complete(callCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: agentSystemPrompt(agent)},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("empty response from model %s", agent.Model)
	}
	reply := resp.Content

	// One-hop handoff: a colleague's answer is spliced in as an addendum
	// before validation. The colleague's reply is never re-scanned.
	if request := ParseRequest(reply, agent.AgentID, r.table); request != nil {
		addendum := r.handleHandoff(callCtx, agent, request)
		reply = reply + "\n\n" + addendum
	}

	if !IsConcrete(reply) {
		e.deps.Metrics.IncValidationRetry()
		e.deps.Logger.Debug("Task %s: agent %s response too generic, retrying once", r.taskID, agent.AgentID)
		retryResp, retryErr := client.Complete(callCtx, llm.CompletionRequest{
			Messages: []llm.Message{
				{Role: "system", Content: agentSystemPrompt(agent)},
				{Role: "user", Content: retryPrompt(r.req.TaskDescription)},
			},
		})
		// The retry's answer is accepted unconditionally; on provider
		// failure the original generic reply stands.
		if retryErr == nil && strings.TrimSpace(retryResp.Content) != "" {
			reply = retryResp.Content
		} else if retryErr != nil {
			e.deps.Logger.Warn("Task %s: validation retry failed for agent %s: %v", r.taskID, agent.AgentID, retryErr)
		}
	}

	return reply, nil
}

// appendTurn durably records the turn and advances the 30..80 progress split.
func (r *taskRun) appendTurn(ctx context.Context, agent AgentConfig, content string) {
	e := r.engine

	// A turn that finished after a cancel request is still recorded.
	ctx = context.WithoutCancel(ctx)

	entry := store.ConversationEntry{
		AgentID:   agent.AgentID,
		Content:   content,
		Timestamp: e.deps.Now(),
		Role:      "assistant",
	}
	if err := e.deps.Store.AppendConversation(ctx, r.taskID, entry); err != nil {
		e.deps.Logger.Error("Task %s: failed to append conversation entry: %v", r.taskID, err)
	}

	r.turnsMu.Lock()
	r.turnsCompleted++
	completed := r.turnsCompleted
	if r.req.Sequential && !strings.HasPrefix(content, "Error:") {
		r.priors = append(r.priors, priorResponse{agentName: agent.AgentName, response: content})
	}
	span := progressTurnsEnd - progressTurnsStart
	progress := progressTurnsStart + span*completed/len(r.req.Agents)
	// The phase write and event stay under the lock so parallel turns
	// finishing close together cannot emit progress out of order.
	r.setPhase(ctx, progress, fmt.Sprintf("Agent %s completed", agent.AgentName))
	r.turnsMu.Unlock()
}

// handleHandoff runs the synchronous one-hop colleague exchange and returns
// the text spliced into the requesting agent's reply.
func (r *taskRun) handleHandoff(ctx context.Context, from AgentConfig, request *AgentRequest) string {
	e := r.engine

	var target *AgentConfig
	for i := range r.req.Agents {
		if r.req.Agents[i].AgentID == request.TargetAgentID {
			target = &r.req.Agents[i]
			break
		}
	}
	if target == nil {
		return fmt.Sprintf("Error: Could not get response from %s", request.TargetAgentID)
	}

	msg := store.AgentMessage{
		FromAgent: from.AgentID,
		ToAgent:   target.AgentID,
		Message:   request.Message,
		Timestamp: e.deps.Now(),
		TaskID:    r.taskID,
		MessageID: store.NewMessageID(),
	}
	if err := e.deps.Store.AppendAgentMessage(ctx, r.taskID, msg); err != nil {
		e.deps.Logger.Error("Task %s: failed to persist agent message: %v", r.taskID, err)
	}

	reply, err := r.askTarget(ctx, from, *target, request.Message)
	if err != nil {
		e.deps.Logger.Warn("Task %s: handoff %s -> %s failed: %v", r.taskID, from.AgentID, target.AgentID, err)
		e.deps.Metrics.IncTurnFailure("handoff_error")
		return fmt.Sprintf("Error: Could not get response from %s", target.AgentName)
	}

	if err := e.deps.Store.FillAgentMessageResponse(ctx, r.taskID, msg.MessageID, reply); err != nil {
		e.deps.Logger.Error("Task %s: failed to record handoff response: %v", r.taskID, err)
	}
	filled := msg
	now := e.deps.Now()
	filled.Response = reply
	filled.ResponseTimestamp = &now
	e.deps.Notifier.Publish(notify.NewAgentCommunication(r.taskID, filled))

	return fmt.Sprintf("[Response from %s]: %s", target.AgentName, reply)
}

// askTarget runs the target agent against its standing per-task context,
// initializing it with the system prompt on first use.
func (r *taskRun) askTarget(ctx context.Context, from, target AgentConfig, message string) (string, error) {
	client, err := r.engine.deps.Resolver(target.Model)
	if err != nil {
		return "", err
	}

	ask := llm.Message{Role: "user", Content: handoffPrompt(from.AgentName, message)}

	r.contextsMu.Lock()
	history, ok := r.contexts[target.AgentID]
	if !ok {
		history = []llm.Message{{Role: "system", Content: agentSystemPrompt(target)}}
	}
	messages := append(append([]llm.Message(nil), history...), ask)
	r.contextsMu.Unlock()

	resp, err := client.Complete(ctx, llm.CompletionRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("empty response from model %s", target.Model)
	}

	// Re-read under the lock: another handoff to the same target may have
	// extended the standing context while this call was in flight.
	r.contextsMu.Lock()
	current, ok := r.contexts[target.AgentID]
	if !ok {
		current = []llm.Message{{Role: "system", Content: agentSystemPrompt(target)}}
	}
	r.contexts[target.AgentID] = append(current, ask, llm.Message{Role: "assistant", Content: resp.Content})
	r.contextsMu.Unlock()

	return resp.Content, nil
}

// generateSummary asks the fixed summary model for a consolidated report over
// every non-summary conversation entry and records it under the reserved
// pseudo-agent.
func (r *taskRun) generateSummary(ctx context.Context) error {
	e := r.engine

	task, err := e.deps.Store.Get(ctx, r.taskID)
	if err != nil {
		return err
	}

	var findings []string
	for _, entry := range task.Conversations {
		if entry.AgentID == SummaryAgentName {
			continue
		}
		findings = append(findings, fmt.Sprintf("### %s\n%s", entry.AgentID, entry.Content))
	}
	if len(findings) == 0 {
		return fmt.Errorf("no conversation entries to summarize")
	}

	client, err := e.deps.Resolver(e.deps.SummaryModel)
	if err != nil {
		return err
	}
	resp, err := client.Complete(context.WithoutCancel(ctx), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are a technical lead consolidating findings from a team of specialist agents."},
			{Role: "user", Content: summaryPrompt(r.req.TaskDescription, findings)},
		},
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return fmt.Errorf("empty summary response")
	}

	return e.deps.Store.AppendConversation(ctx, r.taskID, store.ConversationEntry{
		AgentID:   SummaryAgentName,
		Content:   resp.Content,
		Timestamp: e.deps.Now(),
		Role:      "assistant",
	})
}

// setPhase durably advances progress and emits the matching event.
func (r *taskRun) setPhase(ctx context.Context, progress int, phase string) {
	e := r.engine
	if err := e.deps.Store.SetPhase(ctx, r.taskID, progress, phase); err != nil {
		e.deps.Logger.Error("Task %s: failed to set phase: %v", r.taskID, err)
	}
	e.deps.Notifier.Publish(notify.NewProgressUpdate(r.taskID, progress, store.StatusRunning, phase))
}

// failTask is the single path that marks a task failed.
func (e *Engine) failTask(taskID, message string) {
	ctx := context.Background()
	if err := e.deps.Store.SetError(ctx, taskID, message); err != nil {
		e.deps.Logger.Error("Task %s: failed to record error: %v", taskID, err)
	}
	e.deps.Notifier.Publish(notify.NewTaskError(taskID, message))
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cancelled")
	}
	return nil
}
