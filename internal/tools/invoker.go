// Package tools provides the side-effecting lookups agents can request
// during a run. The engine treats the whole capability as optional: a nil
// Invoker degrades to an explicit "unavailable" note in the prompt.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/copp1723/swarm-sub001/internal/logging"
)

// ErrToolUnavailable reports that no tool with the requested name is
// registered. Callers are expected to degrade rather than fail the task.
var ErrToolUnavailable = errors.New("tool unavailable")

// Invoker executes a named tool with loosely typed arguments.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// Tool is a single invocable capability.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry is a thread-safe name-keyed tool collection implementing Invoker.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logging.Logger
}

func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logging.OrNop(logger),
	}
}

// NewDefaultRegistry returns a registry with the built-in tools registered.
func NewDefaultRegistry(logger logging.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(NewListDirectoryTool())
	return r
}

func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolUnavailable, name)
	}

	r.logger.Debug("Invoking tool: %s", name)
	result, err := tool.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("Tool %s failed: %v", name, err)
		return "", err
	}
	return result, nil
}
