// Package engine turns a task description and a list of agent configurations
// into an ordered (or concurrent) sequence of model calls: it grounds prompts
// in a workspace census, routes inline agent-to-agent requests, validates
// response quality with one retry, and produces a consolidated executive
// summary, emitting progress events and an append-only audit trail throughout.
package engine

// AgentConfig describes one agent persona for a task. Supplied by the caller
// and immutable for the run.
type AgentConfig struct {
	AgentID   string `json:"agent_id" binding:"required"`
	AgentName string `json:"agent_name" binding:"required"`
	Model     string `json:"model" binding:"required"`
}

// ExecuteRequest is the caller-facing task submission.
type ExecuteRequest struct {
	TaskDescription  string        `json:"task_description"`
	Agents           []AgentConfig `json:"agents"`
	WorkingDirectory string        `json:"working_directory"`
	Sequential       bool          `json:"sequential"`
}

// ExecuteResult is the synchronous answer to Execute. When Accepted is false
// no task record was created and Error explains the rejection.
type ExecuteResult struct {
	TaskID   string `json:"task_id,omitempty"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// AgentRequest is a parsed inline "@Name: message" directive resolved to a
// concrete target agent.
type AgentRequest struct {
	TargetAgentID string
	Message       string
}
