package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// Both backends must satisfy the same contract; every test runs against each.
func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func newTestTask() *TaskStatus {
	return &TaskStatus{
		TaskID:        NewTaskID(),
		Status:        StatusRunning,
		Progress:      0,
		AgentsWorking: []string{"bug_01"},
		StartTime:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := newTestTask()
			if err := s.Create(ctx, task); err != nil {
				t.Fatalf("create: %v", err)
			}

			got, err := s.Get(ctx, task.TaskID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.TaskID != task.TaskID || got.Status != StatusRunning {
				t.Fatalf("unexpected task: %+v", got)
			}
			if len(got.AgentsWorking) != 1 || got.AgentsWorking[0] != "bug_01" {
				t.Fatalf("unexpected agents_working: %v", got.AgentsWorking)
			}
		})
	}
}

func TestStoreGetUnknownTask(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "task-missing")
			if !errors.Is(err, ErrTaskNotFound) {
				t.Fatalf("expected ErrTaskNotFound, got %v", err)
			}
		})
	}
}

func TestStoreReadIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := newTestTask()
			if err := s.Create(ctx, task); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := s.AppendConversation(ctx, task.TaskID, ConversationEntry{
				AgentID: "bug_01", Content: "finding", Role: "assistant",
				Timestamp: time.Now().UTC().Truncate(time.Millisecond),
			}); err != nil {
				t.Fatalf("append: %v", err)
			}

			first, err := s.Get(ctx, task.TaskID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			second, err := s.Get(ctx, task.TaskID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("reads differ:\n%+v\n%+v", first, second)
			}

			// Mutating the returned copy must not leak into the store.
			first.Conversations[0].Content = "tampered"
			third, err := s.Get(ctx, task.TaskID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if third.Conversations[0].Content != "finding" {
				t.Fatal("read copy mutation leaked into store")
			}
		})
	}
}

func TestStorePhaseAndStatusUpdates(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := newTestTask()
			if err := s.Create(ctx, task); err != nil {
				t.Fatalf("create: %v", err)
			}

			if err := s.SetPhase(ctx, task.TaskID, 10, "Analyzing repository context"); err != nil {
				t.Fatalf("set phase: %v", err)
			}
			got, _ := s.Get(ctx, task.TaskID)
			if got.Progress != 10 || got.CurrentPhase != "Analyzing repository context" {
				t.Fatalf("unexpected phase state: %+v", got)
			}

			if err := s.SetResults(ctx, task.TaskID, map[string]any{"agents_involved": float64(1)}); err != nil {
				t.Fatalf("set results: %v", err)
			}
			got, _ = s.Get(ctx, task.TaskID)
			if got.Status != StatusCompleted || got.Progress != 100 {
				t.Fatalf("expected completed at 100, got %+v", got)
			}
			if got.EndTime == nil {
				t.Fatal("expected end time to be set")
			}
			if got.Results["agents_involved"] != float64(1) {
				t.Fatalf("unexpected results: %v", got.Results)
			}
		})
	}
}

func TestStoreSetError(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := newTestTask()
			if err := s.Create(ctx, task); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := s.SetError(ctx, task.TaskID, "cancelled"); err != nil {
				t.Fatalf("set error: %v", err)
			}

			got, _ := s.Get(ctx, task.TaskID)
			if got.Status != StatusError || got.ErrorMessage != "cancelled" {
				t.Fatalf("unexpected error state: %+v", got)
			}
			if got.EndTime == nil {
				t.Fatal("expected end time to be set")
			}
		})
	}
}

func TestStoreAgentMessageLifecycle(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := newTestTask()
			if err := s.Create(ctx, task); err != nil {
				t.Fatalf("create: %v", err)
			}

			msg := AgentMessage{
				FromAgent: "bug_01",
				ToAgent:   "coder_01",
				Message:   "please check auth.py",
				Timestamp: time.Now().UTC().Truncate(time.Millisecond),
				TaskID:    task.TaskID,
				MessageID: NewMessageID(),
			}
			if err := s.AppendAgentMessage(ctx, task.TaskID, msg); err != nil {
				t.Fatalf("append agent message: %v", err)
			}

			got, _ := s.Get(ctx, task.TaskID)
			if len(got.AgentMessages) != 1 || got.AgentMessages[0].Response != "" {
				t.Fatalf("unexpected messages: %+v", got.AgentMessages)
			}
			if got.AgentMessages[0].ResponseTimestamp != nil {
				t.Fatal("response timestamp must be unset before fill")
			}

			if err := s.FillAgentMessageResponse(ctx, task.TaskID, msg.MessageID, "done, two issues found"); err != nil {
				t.Fatalf("fill response: %v", err)
			}
			got, _ = s.Get(ctx, task.TaskID)
			if got.AgentMessages[0].Response != "done, two issues found" {
				t.Fatalf("unexpected response: %+v", got.AgentMessages[0])
			}
			if got.AgentMessages[0].ResponseTimestamp == nil {
				t.Fatal("expected response timestamp after fill")
			}

			if err := s.FillAgentMessageResponse(ctx, task.TaskID, "msg-missing", "x"); err == nil {
				t.Fatal("expected error for unknown message id")
			}
		})
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			older := newTestTask()
			older.StartTime = time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
			newer := newTestTask()
			newer.StartTime = time.Now().UTC().Truncate(time.Millisecond)

			if err := s.Create(ctx, older); err != nil {
				t.Fatalf("create older: %v", err)
			}
			if err := s.Create(ctx, newer); err != nil {
				t.Fatalf("create newer: %v", err)
			}

			tasks, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(tasks) != 2 {
				t.Fatalf("expected 2 tasks, got %d", len(tasks))
			}
			if tasks[0].TaskID != newer.TaskID {
				t.Fatalf("expected newest first, got %s", tasks[0].TaskID)
			}
		})
	}
}

func TestStoreDuplicateCreate(t *testing.T) {
	t.Parallel()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := newTestTask()
			if err := s.Create(ctx, task); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := s.Create(ctx, task); err == nil {
				t.Fatal("expected duplicate create to fail")
			}
		})
	}
}
