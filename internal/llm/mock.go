package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient implements Client for testing. Responses are returned in the
// order they were queued; every request is recorded for inspection.
type MockClient struct {
	mu        sync.Mutex
	model     string
	responses []mockResponse
	requests  []CompletionRequest
	// DefaultContent is returned once queued responses are exhausted.
	DefaultContent string
}

type mockResponse struct {
	content string
	err     error
}

// NewMockClient creates a mock client for the given model.
func NewMockClient(model string) *MockClient {
	return &MockClient{model: model, DefaultContent: "mock response"}
}

// QueueResponse appends a successful scripted response.
func (m *MockClient) QueueResponse(content string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{content: content})
	return m
}

// QueueError appends a scripted failure.
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
	return m
}

// Complete returns the next scripted response.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.responses) == 0 {
		return &CompletionResponse{
			Content:    m.DefaultContent,
			StopReason: "stop",
			Usage:      TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}

	next := m.responses[0]
	m.responses = m.responses[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &CompletionResponse{
		Content:    next.content,
		StopReason: "stop",
		Usage:      TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// Model returns the mock's model identifier.
func (m *MockClient) Model() string {
	return m.model
}

// Requests returns a copy of every recorded request.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of Complete calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MockResolver returns a Resolver backed by a fixed set of mock clients,
// erroring for unknown models.
func MockResolver(clients ...*MockClient) Resolver {
	byModel := make(map[string]*MockClient, len(clients))
	for _, client := range clients {
		byModel[client.Model()] = client
	}
	return func(model string) (Client, error) {
		client, ok := byModel[model]
		if !ok {
			return nil, fmt.Errorf("no client configured for model %q", model)
		}
		return client, nil
	}
}
