// Package notify carries the structured progress events a task run produces
// and fans them out to subscribed observers. Delivery is best effort.
package notify

import "github.com/copp1723/swarm-sub001/internal/store"

const (
	EventTypeProgressUpdate     = "progress_update"
	EventTypeAgentCommunication = "agent_communication"
	EventTypeTaskComplete       = "task_complete"
	EventTypeTaskError          = "task_error"
)

// Event is one structured notification about a task run.
type Event interface {
	EventType() string
	EventTaskID() string
}

// ProgressUpdate reports a phase boundary or agent turn completion.
type ProgressUpdate struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
	Phase    string `json:"phase"`
}

func NewProgressUpdate(taskID string, progress int, status store.Status, phase string) ProgressUpdate {
	return ProgressUpdate{
		Type:     EventTypeProgressUpdate,
		TaskID:   taskID,
		Progress: progress,
		Status:   string(status),
		Phase:    phase,
	}
}

func (e ProgressUpdate) EventType() string   { return EventTypeProgressUpdate }
func (e ProgressUpdate) EventTaskID() string { return e.TaskID }

// AgentCommunication carries a full agent-to-agent message record.
type AgentCommunication struct {
	Type          string             `json:"type"`
	TaskID        string             `json:"task_id"`
	Communication store.AgentMessage `json:"communication"`
}

func NewAgentCommunication(taskID string, msg store.AgentMessage) AgentCommunication {
	return AgentCommunication{
		Type:          EventTypeAgentCommunication,
		TaskID:        taskID,
		Communication: msg,
	}
}

func (e AgentCommunication) EventType() string   { return EventTypeAgentCommunication }
func (e AgentCommunication) EventTaskID() string { return e.TaskID }

// TaskComplete is terminal: the task finished successfully.
type TaskComplete struct {
	Type   string         `json:"type"`
	TaskID string         `json:"task_id"`
	Result map[string]any `json:"result"`
}

func NewTaskComplete(taskID string, result map[string]any) TaskComplete {
	return TaskComplete{
		Type:   EventTypeTaskComplete,
		TaskID: taskID,
		Result: result,
	}
}

func (e TaskComplete) EventType() string   { return EventTypeTaskComplete }
func (e TaskComplete) EventTaskID() string { return e.TaskID }

// TaskError is terminal: the task failed.
type TaskError struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

func NewTaskError(taskID, errMsg string) TaskError {
	return TaskError{
		Type:   EventTypeTaskError,
		TaskID: taskID,
		Error:  errMsg,
	}
}

func (e TaskError) EventType() string   { return EventTypeTaskError }
func (e TaskError) EventTaskID() string { return e.TaskID }

// isTerminalEvent reports whether the event marks the end of a task run.
// Terminal events get delivery priority when a subscriber buffer is full.
func isTerminalEvent(event Event) bool {
	switch event.EventType() {
	case EventTypeTaskComplete, EventTypeTaskError:
		return true
	default:
		return false
	}
}
