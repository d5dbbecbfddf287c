package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/copp1723/swarm-sub001/internal/llm"
	"github.com/copp1723/swarm-sub001/internal/notify"
	"github.com/copp1723/swarm-sub001/internal/store"
)

const (
	testSummaryModel = "summary-model"

	concreteReply = "Found issue in `auth.py` at Line 42"
	genericReply  = "I looked at the code"
)

// eventRecorder captures every published event for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Publish(event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Event, len(r.events))
	copy(out, r.events)
	return out
}

func newTestEngine(t *testing.T, resolver llm.Resolver, notifier notify.Notifier, baseDir string) (*Engine, *store.MemoryStore) {
	t.Helper()

	memStore := store.NewMemoryStore()
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	eng, err := New(Deps{
		Resolver:          resolver,
		Store:             memStore,
		Notifier:          notifier,
		Metrics:           MustNewMetrics(prometheus.NewRegistry()),
		BaseDirectory:     baseDir,
		SummaryModel:      testSummaryModel,
		MaxParallelAgents: 2,
	})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	return eng, memStore
}

func newSummaryClient() *llm.MockClient {
	client := llm.NewMockClient(testSummaryModel)
	client.DefaultContent = "## Overview\nConsolidated findings."
	return client
}

func bugHunterAgent(model string) AgentConfig {
	return AgentConfig{AgentID: "bug_01", AgentName: "Bug Hunter", Model: model}
}

func coderAgent(model string) AgentConfig {
	return AgentConfig{AgentID: "coder_01", AgentName: "Coder", Model: model}
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	agent := bugHunterAgent("bug-model")

	tests := []struct {
		name string
		req  ExecuteRequest
	}{
		{
			name: "empty description",
			req:  ExecuteRequest{TaskDescription: "  ", Agents: []AgentConfig{agent}, WorkingDirectory: base},
		},
		{
			name: "no agents",
			req:  ExecuteRequest{TaskDescription: "Review auth.py", WorkingDirectory: base},
		},
		{
			name: "agent missing model",
			req: ExecuteRequest{
				TaskDescription:  "Review auth.py",
				Agents:           []AgentConfig{{AgentID: "a", AgentName: "A"}},
				WorkingDirectory: base,
			},
		},
		{
			name: "missing working directory",
			req:  ExecuteRequest{TaskDescription: "Review auth.py", Agents: []AgentConfig{agent}},
		},
		{
			name: "nonexistent working directory",
			req:  ExecuteRequest{TaskDescription: "Review auth.py", Agents: []AgentConfig{agent}, WorkingDirectory: "/does/not/exist"},
		},
		{
			name: "directory escapes base",
			req:  ExecuteRequest{TaskDescription: "Review auth.py", Agents: []AgentConfig{agent}, WorkingDirectory: "../.."},
		},
		{
			name: "absolute directory outside base",
			req:  ExecuteRequest{TaskDescription: "Review auth.py", Agents: []AgentConfig{agent}, WorkingDirectory: "/tmp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, memStore := newTestEngine(t, llm.MockResolver(newSummaryClient()), nil, base)

			result := eng.Execute(context.Background(), tt.req)
			if result.Accepted {
				t.Fatalf("expected rejection, got %+v", result)
			}
			if result.TaskID != "" {
				t.Fatalf("rejected request must not issue a task id, got %s", result.TaskID)
			}
			if result.Error == "" {
				t.Fatal("expected an error message")
			}

			tasks, err := memStore.List(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(tasks) != 0 {
				t.Fatalf("no task record must be created on rejection, got %d", len(tasks))
			}
		})
	}
}

func TestTaskCompletesEndToEnd(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	bugClient := llm.NewMockClient("bug-model").QueueResponse(concreteReply)
	recorder := &eventRecorder{}
	eng, memStore := newTestEngine(t, llm.MockResolver(bugClient, newSummaryClient()), recorder, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("bug-model")},
		WorkingDirectory: base,
		Sequential:       false,
	})
	if !result.Accepted || result.TaskID == "" {
		t.Fatalf("expected acceptance with task id, got %+v", result)
	}
	eng.Wait()

	task, err := memStore.Get(context.Background(), result.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.ErrorMessage)
	}
	if task.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", task.Progress)
	}
	if task.EndTime == nil {
		t.Fatal("expected end time")
	}
	if len(task.Conversations) != 2 {
		t.Fatalf("expected agent entry plus summary entry, got %d", len(task.Conversations))
	}
	if task.Conversations[0].AgentID != "bug_01" || task.Conversations[0].Content != concreteReply {
		t.Fatalf("unexpected agent entry: %+v", task.Conversations[0])
	}
	if task.Conversations[1].AgentID != SummaryAgentName {
		t.Fatalf("expected summary entry, got %+v", task.Conversations[1])
	}
	if task.Results["agents_involved"] != 1 || task.Results["conversation_count"] != 2 {
		t.Fatalf("unexpected results: %v", task.Results)
	}

	// The model saw the workspace summary and the degraded tool note.
	prompt := bugClient.Requests()[0].Messages[1].Content
	if !strings.Contains(prompt, "Review auth.py for bugs") {
		t.Fatalf("prompt missing task description:\n%s", prompt)
	}
	if !strings.Contains(prompt, "filesystem access unavailable") {
		t.Fatalf("prompt missing degraded tool note:\n%s", prompt)
	}

	sawComplete := false
	for _, event := range recorder.Events() {
		if _, ok := event.(notify.TaskComplete); ok {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Fatal("expected a task_complete event")
	}
}

func TestRetryOnceLaw(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	bugClient := llm.NewMockClient("bug-model").
		QueueResponse(genericReply).
		QueueResponse("Still nothing specific here")
	eng, memStore := newTestEngine(t, llm.MockResolver(bugClient, newSummaryClient()), nil, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("bug-model")},
		WorkingDirectory: base,
	})
	if !result.Accepted {
		t.Fatalf("unexpected rejection: %+v", result)
	}
	eng.Wait()

	if got := bugClient.CallCount(); got != 2 {
		t.Fatalf("expected exactly 2 model calls (initial + one retry), got %d", got)
	}

	task, _ := memStore.Get(context.Background(), result.TaskID)
	if task.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	// The retry's answer is accepted even though it is still generic.
	if task.Conversations[0].Content != "Still nothing specific here" {
		t.Fatalf("expected retry response accepted, got %q", task.Conversations[0].Content)
	}

	retryReq := bugClient.Requests()[1].Messages[1].Content
	if !strings.Contains(retryReq, "too generic") {
		t.Fatalf("expected stricter retry prompt:\n%s", retryReq)
	}
}

func TestConcreteResponseSkipsRetry(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	bugClient := llm.NewMockClient("bug-model").QueueResponse(concreteReply)
	eng, _ := newTestEngine(t, llm.MockResolver(bugClient, newSummaryClient()), nil, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("bug-model")},
		WorkingDirectory: base,
	})
	eng.Wait()

	if !result.Accepted {
		t.Fatalf("unexpected rejection: %+v", result)
	}
	if got := bugClient.CallCount(); got != 1 {
		t.Fatalf("expected a single model call, got %d", got)
	}
}

func TestSequentialOrderingInvariant(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	first := llm.NewMockClient("model-a").QueueResponse(concreteReply)
	second := llm.NewMockClient("model-b").QueueResponse("Confirmed: `auth.py` Line 42 needs a fix")
	eng, _ := newTestEngine(t, llm.MockResolver(first, second, newSummaryClient()), nil, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("model-a"), coderAgent("model-b")},
		WorkingDirectory: base,
		Sequential:       true,
	})
	eng.Wait()

	if !result.Accepted {
		t.Fatalf("unexpected rejection: %+v", result)
	}

	firstPrompt := first.Requests()[0].Messages[1].Content
	if strings.Contains(firstPrompt, "Prior agent findings") {
		t.Fatalf("first agent's prompt must not carry prior findings:\n%s", firstPrompt)
	}

	secondPrompt := second.Requests()[0].Messages[1].Content
	if !strings.Contains(secondPrompt, concreteReply) {
		t.Fatalf("second agent's prompt must quote the first agent's accepted response:\n%s", secondPrompt)
	}
	if !strings.Contains(secondPrompt, "Bug Hunter") {
		t.Fatalf("prior findings must be attributed:\n%s", secondPrompt)
	}
}

func TestParallelPromptsExcludePriors(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	first := llm.NewMockClient("model-a").QueueResponse(concreteReply)
	second := llm.NewMockClient("model-b").QueueResponse("Checked 4 call sites in `auth.py`")
	eng, memStore := newTestEngine(t, llm.MockResolver(first, second, newSummaryClient()), nil, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("model-a"), coderAgent("model-b")},
		WorkingDirectory: base,
		Sequential:       false,
	})
	eng.Wait()

	for _, client := range []*llm.MockClient{first, second} {
		prompt := client.Requests()[0].Messages[1].Content
		if strings.Contains(prompt, "Prior agent findings") {
			t.Fatalf("parallel prompts must not carry prior findings:\n%s", prompt)
		}
	}

	task, _ := memStore.Get(context.Background(), result.TaskID)
	if task.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	// Both agent entries plus the summary.
	if len(task.Conversations) != 3 {
		t.Fatalf("expected 3 conversation entries, got %d", len(task.Conversations))
	}
}

func TestHandoffOneHop(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	bugClient := llm.NewMockClient("bug-model").
		QueueResponse(concreteReply + "\n@Coder: double-check the fix")
	coderClient := llm.NewMockClient("coder-model").
		QueueResponse("Confirmed, class AuthManager handles it on Line 57").
		QueueResponse("My own pass: `auth.py` Line 60, function refresh_token is fine")
	recorder := &eventRecorder{}
	eng, memStore := newTestEngine(t, llm.MockResolver(bugClient, coderClient, newSummaryClient()), recorder, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("bug-model"), coderAgent("coder-model")},
		WorkingDirectory: base,
		Sequential:       true,
	})
	eng.Wait()

	task, err := memStore.Get(context.Background(), result.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.ErrorMessage)
	}

	if len(task.AgentMessages) != 1 {
		t.Fatalf("expected 1 agent message, got %d", len(task.AgentMessages))
	}
	msg := task.AgentMessages[0]
	if msg.FromAgent != "bug_01" || msg.ToAgent != "coder_01" {
		t.Fatalf("unexpected message routing: %+v", msg)
	}
	if msg.Message != "double-check the fix" {
		t.Fatalf("unexpected message text: %q", msg.Message)
	}
	if msg.Response == "" || msg.ResponseTimestamp == nil {
		t.Fatalf("expected response filled in: %+v", msg)
	}

	// The colleague's reply is spliced into the requester's entry.
	bugEntry := task.Conversations[0]
	if !strings.Contains(bugEntry.Content, "[Response from Coder]: Confirmed") {
		t.Fatalf("expected spliced colleague response:\n%s", bugEntry.Content)
	}

	// Handoff call plus the coder's own turn.
	if got := coderClient.CallCount(); got != 2 {
		t.Fatalf("expected 2 coder calls, got %d", got)
	}
	handoffPrompt := coderClient.Requests()[0].Messages[1].Content
	if !strings.Contains(handoffPrompt, "Bug Hunter asks") {
		t.Fatalf("expected framed colleague request:\n%s", handoffPrompt)
	}

	sawCommunication := false
	for _, event := range recorder.Events() {
		if comm, ok := event.(notify.AgentCommunication); ok {
			sawCommunication = true
			if comm.Communication.Response == "" {
				t.Fatal("agent_communication event must carry the filled response")
			}
		}
	}
	if !sawCommunication {
		t.Fatal("expected an agent_communication event")
	}
}

func TestGatewayErrorContained(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	failing := llm.NewMockClient("model-a").QueueError(errors.New("provider exploded"))
	healthy := llm.NewMockClient("model-b").QueueResponse(concreteReply)
	memStore := store.NewMemoryStore()
	metrics := MustNewMetrics(prometheus.NewRegistry())
	eng, err := New(Deps{
		Resolver:      llm.MockResolver(failing, healthy, newSummaryClient()),
		Store:         memStore,
		Metrics:       metrics,
		BaseDirectory: base,
		SummaryModel:  testSummaryModel,
	})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("model-a"), coderAgent("model-b")},
		WorkingDirectory: base,
		Sequential:       true,
	})
	eng.Wait()

	task, _ := memStore.Get(context.Background(), result.TaskID)
	if task.Status != store.StatusCompleted {
		t.Fatalf("a single agent failure must not fail the task, got %s (%s)", task.Status, task.ErrorMessage)
	}
	if !strings.HasPrefix(task.Conversations[0].Content, "Error:") {
		t.Fatalf("expected error-text entry for the failed agent, got %q", task.Conversations[0].Content)
	}
	if task.Conversations[1].Content != concreteReply {
		t.Fatalf("subsequent agent must still run, got %q", task.Conversations[1].Content)
	}
	if got := testutil.ToFloat64(metrics.turnFailures.WithLabelValues("permanent")); got != 1 {
		t.Fatalf("expected the failure counted under its classified type, got %v", got)
	}
}

func TestSummaryFailureSkipped(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	bugClient := llm.NewMockClient("bug-model").QueueResponse(concreteReply)
	summaryClient := llm.NewMockClient(testSummaryModel).QueueError(errors.New("summary model down"))
	eng, memStore := newTestEngine(t, llm.MockResolver(bugClient, summaryClient), nil, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("bug-model")},
		WorkingDirectory: base,
	})
	eng.Wait()

	task, _ := memStore.Get(context.Background(), result.TaskID)
	if task.Status != store.StatusCompleted {
		t.Fatalf("summary failure must not fail the task, got %s (%s)", task.Status, task.ErrorMessage)
	}
	if len(task.Conversations) != 1 {
		t.Fatalf("expected no summary entry, got %d entries", len(task.Conversations))
	}
}

func TestProgressMonotonicity(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	first := llm.NewMockClient("model-a").QueueResponse(concreteReply)
	second := llm.NewMockClient("model-b").QueueResponse("Checked 4 call sites in `auth.py`")
	recorder := &eventRecorder{}
	eng, _ := newTestEngine(t, llm.MockResolver(first, second, newSummaryClient()), recorder, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("model-a"), coderAgent("model-b")},
		WorkingDirectory: base,
		Sequential:       true,
	})
	eng.Wait()

	if !result.Accepted {
		t.Fatalf("unexpected rejection: %+v", result)
	}

	last := -1
	final := -1
	for _, event := range recorder.Events() {
		update, ok := event.(notify.ProgressUpdate)
		if !ok {
			continue
		}
		if update.Progress < last {
			t.Fatalf("progress regressed: %d after %d", update.Progress, last)
		}
		last = update.Progress
		final = update.Progress
	}
	if final != 100 {
		t.Fatalf("expected final progress 100, got %d", final)
	}
}

// slowPhaseStore delays the first turn-completion phase write so a second
// parallel turn can overtake it.
type slowPhaseStore struct {
	*store.MemoryStore
	delay time.Duration
}

func (s *slowPhaseStore) SetPhase(ctx context.Context, taskID string, progress int, phase string) error {
	if progress == 55 {
		time.Sleep(s.delay)
	}
	return s.MemoryStore.SetPhase(ctx, taskID, progress, phase)
}

func TestParallelProgressMonotonicity(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	first := llm.NewMockClient("model-a").QueueResponse(concreteReply)
	second := llm.NewMockClient("model-b").QueueResponse("Checked 4 call sites in `auth.py`")
	recorder := &eventRecorder{}
	slow := &slowPhaseStore{MemoryStore: store.NewMemoryStore(), delay: 200 * time.Millisecond}
	eng, err := New(Deps{
		Resolver:          llm.MockResolver(first, second, newSummaryClient()),
		Store:             slow,
		Notifier:          recorder,
		Metrics:           MustNewMetrics(prometheus.NewRegistry()),
		BaseDirectory:     base,
		SummaryModel:      testSummaryModel,
		MaxParallelAgents: 2,
	})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("model-a"), coderAgent("model-b")},
		WorkingDirectory: base,
		Sequential:       false,
	})
	eng.Wait()

	if !result.Accepted {
		t.Fatalf("unexpected rejection: %+v", result)
	}

	last := -1
	for _, event := range recorder.Events() {
		update, ok := event.(notify.ProgressUpdate)
		if !ok {
			continue
		}
		if update.Progress < last {
			t.Fatalf("progress regressed: emitted %d after %d", update.Progress, last)
		}
		last = update.Progress
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
}

// rendezvousClient releases completions only once the expected number of
// calls is in flight, forcing true overlap.
type rendezvousClient struct {
	model string
	ready *sync.WaitGroup
}

func (c *rendezvousClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.ready.Done()
	c.ready.Wait()
	return &llm.CompletionResponse{Content: "Confirmed, class AuthManager handles it on Line 57", StopReason: "stop"}, nil
}

func (c *rendezvousClient) Model() string { return c.model }

func TestConcurrentHandoffsExtendTargetContext(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	var inFlight sync.WaitGroup
	inFlight.Add(2)
	target := &rendezvousClient{model: "coder-model", ready: &inFlight}
	resolver := func(model string) (llm.Client, error) { return target, nil }
	eng, _ := newTestEngine(t, resolver, nil, base)

	req := ExecuteRequest{
		TaskDescription: "Review auth.py for bugs",
		Agents:          []AgentConfig{bugHunterAgent("bug-model"), coderAgent("coder-model")},
	}
	run := &taskRun{
		engine:   eng,
		taskID:   "task-test",
		req:      req,
		table:    BuildNameTable(req.Agents),
		contexts: make(map[string][]llm.Message),
	}

	var calls sync.WaitGroup
	for _, msg := range []string{"double-check the lock", "double-check the retry"} {
		msg := msg
		calls.Add(1)
		go func() {
			defer calls.Done()
			if _, err := run.askTarget(context.Background(), bugHunterAgent("bug-model"), coderAgent("coder-model"), msg); err != nil {
				t.Errorf("handoff exchange failed: %v", err)
			}
		}()
	}
	calls.Wait()

	run.contextsMu.Lock()
	got := len(run.contexts["coder_01"])
	run.contextsMu.Unlock()
	// System prompt plus two question/answer pairs; neither exchange may
	// overwrite the other.
	if got != 5 {
		t.Fatalf("expected 5 standing context messages, got %d", got)
	}
}

// gateClient blocks each completion until released, so tests can cancel a
// task while a turn is in flight.
type gateClient struct {
	model   string
	started chan struct{}
	release chan struct{}
}

func (c *gateClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.started <- struct{}{}
	<-c.release
	return &llm.CompletionResponse{Content: concreteReply, StopReason: "stop"}, nil
}

func (c *gateClient) Model() string { return c.model }

func TestCancelStopsAtNextAgentBoundary(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	gate := &gateClient{
		model:   "slow-model",
		started: make(chan struct{}, 4),
		release: make(chan struct{}, 4),
	}
	summaryClient := newSummaryClient()
	resolver := func(model string) (llm.Client, error) {
		switch model {
		case "slow-model":
			return gate, nil
		case testSummaryModel:
			return summaryClient, nil
		}
		return nil, errors.New("unknown model")
	}
	eng, memStore := newTestEngine(t, resolver, nil, base)

	result := eng.Execute(context.Background(), ExecuteRequest{
		TaskDescription:  "Review auth.py for bugs",
		Agents:           []AgentConfig{bugHunterAgent("slow-model"), coderAgent("slow-model")},
		WorkingDirectory: base,
		Sequential:       true,
	})
	if !result.Accepted {
		t.Fatalf("unexpected rejection: %+v", result)
	}

	// Wait for the first turn to be in flight, then cancel and let it finish.
	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never started")
	}
	if err := eng.Cancel(result.TaskID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	gate.release <- struct{}{}
	eng.Wait()

	task, _ := memStore.Get(context.Background(), result.TaskID)
	if task.Status != store.StatusError || task.ErrorMessage != "cancelled" {
		t.Fatalf("expected cancelled error state, got %s (%q)", task.Status, task.ErrorMessage)
	}
	// The in-flight turn completed and was recorded; the second never ran.
	if len(task.Conversations) != 1 {
		t.Fatalf("expected exactly the in-flight turn recorded, got %d", len(task.Conversations))
	}
	select {
	case <-gate.started:
		t.Fatal("second agent turn must not start after cancellation")
	default:
	}
	if summaryClient.CallCount() != 0 {
		t.Fatal("summary must not run after cancellation")
	}
}

func TestCancelUnknownTask(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, llm.MockResolver(newSummaryClient()), nil, t.TempDir())
	if err := eng.Cancel("task-unknown"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestPriorResponseTruncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", maxPriorResponseChars+500)
	prompt := buildTurnPrompt("task", "workspace", "", []priorResponse{{agentName: "A", response: long}})
	if strings.Contains(prompt, long) {
		t.Fatal("prior response must be truncated")
	}
	if !strings.Contains(prompt, "... [truncated]") {
		t.Fatal("expected truncation marker")
	}
	if !strings.Contains(prompt, long[:maxPriorResponseChars]) {
		t.Fatal("expected the capped prefix to be present")
	}
}
