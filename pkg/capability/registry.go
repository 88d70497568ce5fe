package capability

import (
	"context"
	"sort"
	"sync"

	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/errors"
	"github.com/amontoro/strategos/pkg/resilience"
)

// Registry maps capability names to tool implementations. It is shared
// read-only across all agents in a run; agents call into it, never mutate it
// mid-run.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]core.Tool
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]core.Tool)}
}

// Register adds a tool under its name. Registering a duplicate name fails.
func (r *Registry) Register(tool core.Tool) error {
	if tool == nil || tool.Name() == "" {
		return errors.New(errors.CodeInvalidInput, "tool with a name is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[tool.Name()]; ok {
		return errors.New(errors.CodeInvalidInput, "tool already registered", nil).
			WithContext("tool", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (core.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "capability not registered", nil).
			WithContext("capability", name)
	}
	return tool, nil
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered capability names, sorted.
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

// retryingTool wraps a tool with exponential-backoff retry. Retry policy
// belongs to the capability layer, not to the scheduler.
type retryingTool struct {
	tool core.Tool
	cfg  resilience.RetryConfig
}

// WithRetry returns a tool that retries recoverable failures of the wrapped
// tool according to cfg.
func WithRetry(tool core.Tool, cfg resilience.RetryConfig) core.Tool {
	return &retryingTool{tool: tool, cfg: cfg}
}

func (t *retryingTool) Name() string { return t.tool.Name() }

func (t *retryingTool) Call(ctx context.Context, input any) (any, error) {
	return t.cfg.DoWithResult(ctx, func() (any, error) {
		return t.tool.Call(ctx, input)
	})
}
