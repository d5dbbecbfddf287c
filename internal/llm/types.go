// Package llm implements the completion-provider gateway: a provider-agnostic
// Client interface, an OpenAI-compatible HTTP client, and a retry wrapper.
package llm

import "context"

// Client represents any completion provider.
type Client interface {
	// Complete sends role-tagged messages and returns the generated text.
	// A provider failure returns a non-nil error; an empty or refused
	// response returns a response with empty Content and a nil error.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier this client targets.
	Model() string
}

// Message is a single role-tagged conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// CompletionRequest contains all parameters for a completion call.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Content    string     `json:"content"`
	StopReason string     `json:"stop_reason"`
	Usage      TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config carries provider connection settings shared across models.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    int // seconds
	MaxRetries int
	Headers    map[string]string
}

// Resolver maps a model identifier to a Client. The execution engine uses a
// Resolver rather than a fixed client so each agent can target its own model
// and tests can substitute fakes per run.
type Resolver func(model string) (Client, error)
