// Package store owns the mutable record of a running task: status,
// progress, conversation log, agent-to-agent communication log, results.
// The engine treats every write as durable-on-return.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the forward-only task state machine:
// pending -> running -> {completed | error}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsTerminal reports whether a task in this status will never change again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ConversationEntry is one validated agent turn, or the synthetic
// executive-summary entry.
type ConversationEntry struct {
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
}

// AgentMessage is an agent-to-agent communication record. Response and
// ResponseTimestamp are filled in exactly once when the target replies;
// the record is otherwise immutable after creation.
type AgentMessage struct {
	FromAgent         string     `json:"from_agent"`
	ToAgent           string     `json:"to_agent"`
	Message           string     `json:"message"`
	Timestamp         time.Time  `json:"timestamp"`
	TaskID            string     `json:"task_id"`
	MessageID         string     `json:"message_id"`
	Response          string     `json:"response,omitempty"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty"`
}

// TaskStatus is the task's mutable root record.
type TaskStatus struct {
	TaskID        string              `json:"task_id"`
	Status        Status              `json:"status"`
	Progress      int                 `json:"progress"`
	CurrentPhase  string              `json:"current_phase"`
	AgentsWorking []string            `json:"agents_working"`
	StartTime     time.Time           `json:"start_time"`
	EndTime       *time.Time          `json:"end_time,omitempty"`
	Conversations []ConversationEntry `json:"conversations"`
	AgentMessages []AgentMessage      `json:"agent_messages"`
	Results       map[string]any      `json:"results,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
}

// NewTaskID returns a fresh unique task identifier.
func NewTaskID() string {
	return fmt.Sprintf("task-%s", uuid.New().String())
}

// NewMessageID returns a fresh unique agent-message identifier.
func NewMessageID() string {
	return fmt.Sprintf("msg-%s", uuid.New().String())
}

// Clone returns a deep copy so callers can read without racing the engine.
func (t *TaskStatus) Clone() *TaskStatus {
	if t == nil {
		return nil
	}
	cp := *t
	if t.EndTime != nil {
		end := *t.EndTime
		cp.EndTime = &end
	}
	cp.AgentsWorking = append([]string(nil), t.AgentsWorking...)
	cp.Conversations = append([]ConversationEntry(nil), t.Conversations...)
	cp.AgentMessages = make([]AgentMessage, len(t.AgentMessages))
	for i, m := range t.AgentMessages {
		cp.AgentMessages[i] = m
		if m.ResponseTimestamp != nil {
			ts := *m.ResponseTimestamp
			cp.AgentMessages[i].ResponseTimestamp = &ts
		}
	}
	if t.Results != nil {
		cp.Results = make(map[string]any, len(t.Results))
		for k, v := range t.Results {
			cp.Results[k] = v
		}
	}
	return &cp
}
