package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory storage.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*TaskStatus
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*TaskStatus),
	}
}

func (s *MemoryStore) Create(ctx context.Context, task *TaskStatus) error {
	if task == nil || task.TaskID == "" {
		return fmt.Errorf("task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.TaskID]; exists {
		return fmt.Errorf("task already exists: %s", task.TaskID)
	}
	s.tasks[task.TaskID] = task.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, taskID string) (*TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task.Clone(), nil
}

func (s *MemoryStore) SetPhase(ctx context.Context, taskID string, progress int, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Progress = progress
	task.CurrentPhase = phase
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, taskID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Status = status
	return nil
}

func (s *MemoryStore) SetError(ctx context.Context, taskID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Status = StatusError
	task.ErrorMessage = message
	now := time.Now()
	task.EndTime = &now
	return nil
}

func (s *MemoryStore) SetResults(ctx context.Context, taskID string, results map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Status = StatusCompleted
	task.Progress = 100
	task.Results = results
	now := time.Now()
	task.EndTime = &now
	return nil
}

func (s *MemoryStore) AppendConversation(ctx context.Context, taskID string, entry ConversationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Conversations = append(task.Conversations, entry)
	return nil
}

func (s *MemoryStore) AppendAgentMessage(ctx context.Context, taskID string, msg AgentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.AgentMessages = append(task.AgentMessages, msg)
	return nil
}

func (s *MemoryStore) FillAgentMessageResponse(ctx context.Context, taskID, messageID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	for i := range task.AgentMessages {
		if task.AgentMessages[i].MessageID == messageID {
			now := time.Now()
			task.AgentMessages[i].Response = response
			task.AgentMessages[i].ResponseTimestamp = &now
			return nil
		}
	}
	return fmt.Errorf("agent message not found: %s", messageID)
}

func (s *MemoryStore) List(ctx context.Context) ([]*TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*TaskStatus, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].StartTime.After(tasks[j].StartTime)
	})
	return tasks, nil
}
