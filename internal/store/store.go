package store

import (
	"context"
	"errors"
)

// ErrTaskNotFound is returned for reads and writes against unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// Store is the task state contract the engine depends on. Every method is
// synchronous and durable on return; the engine never buffers writes.
type Store interface {
	// Create registers a new task record. The record's TaskID must be set.
	Create(ctx context.Context, task *TaskStatus) error

	// Get returns a copy of the task record.
	Get(ctx context.Context, taskID string) (*TaskStatus, error)

	// SetPhase updates progress and current phase.
	SetPhase(ctx context.Context, taskID string, progress int, phase string) error

	// SetStatus transitions the task status.
	SetStatus(ctx context.Context, taskID string, status Status) error

	// SetError marks the task failed with a message and records end time.
	SetError(ctx context.Context, taskID string, message string) error

	// SetResults stores the completion summary, marks the task completed
	// and records end time.
	SetResults(ctx context.Context, taskID string, results map[string]any) error

	// AppendConversation appends one conversation entry.
	AppendConversation(ctx context.Context, taskID string, entry ConversationEntry) error

	// AppendAgentMessage appends one agent-to-agent message record.
	AppendAgentMessage(ctx context.Context, taskID string, msg AgentMessage) error

	// FillAgentMessageResponse sets Response/ResponseTimestamp on the
	// message with the given id. This is the one permitted mutation of an
	// AgentMessage after creation.
	FillAgentMessageResponse(ctx context.Context, taskID, messageID, response string) error

	// List returns copies of all task records, newest first.
	List(ctx context.Context) ([]*TaskStatus, error)
}
