package agent

import (
	"context"
	"sort"

	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/errors"
)

// ProcessFunc executes the agent's black-box behavior for one invocation.
type ProcessFunc func(ctx context.Context, input core.Input) (map[string]any, error)

// Instance is an immutable agent bound to a role, a model, an instruction
// text, a shared dependency bundle, and a resolved capability set. Its
// capability set never changes after construction; reassigning capabilities
// produces a new instance so any live reference (for example one held by an
// in-flight step) keeps observing the set it was dispatched with.
type Instance struct {
	role         string
	model        string
	instructions string
	bundle       *Bundle
	capabilities map[string]struct{}
	capList      []string
	process      ProcessFunc
}

func newInstance(cfg RoleConfig, bundle *Bundle, capabilities []string, process ProcessFunc) *Instance {
	set := make(map[string]struct{}, len(capabilities))
	list := make([]string, 0, len(capabilities))
	for _, name := range capabilities {
		if _, ok := set[name]; ok {
			continue
		}
		set[name] = struct{}{}
		list = append(list, name)
	}
	sort.Strings(list)
	return &Instance{
		role:         cfg.Name,
		model:        cfg.Model,
		instructions: cfg.Instructions,
		bundle:       bundle,
		capabilities: set,
		capList:      list,
		process:      process,
	}
}

// Role returns the role name this instance is bound to.
func (a *Instance) Role() string { return a.role }

// Model returns the model identifier.
func (a *Instance) Model() string { return a.model }

// Instructions returns the role instruction text.
func (a *Instance) Instructions() string { return a.instructions }

// Capabilities returns the resolved capability set, sorted.
func (a *Instance) Capabilities() []string {
	return append([]string(nil), a.capList...)
}

// HasCapability reports whether the instance was granted name.
func (a *Instance) HasCapability(name string) bool {
	_, ok := a.capabilities[name]
	return ok
}

// Tool resolves a granted capability against the shared registry. A tool
// outside the instance's capability set is refused even when registered.
func (a *Instance) Tool(name string) (core.Tool, error) {
	if !a.HasCapability(name) {
		return nil, errors.New(errors.CodeNotFound, "capability not granted to role", nil).
			WithContext("role", a.role).
			WithContext("capability", name)
	}
	return a.bundle.Tools().Get(name)
}

// Process executes the agent's behavior for one step invocation.
func (a *Instance) Process(ctx context.Context, input core.Input) (map[string]any, error) {
	if a.process == nil {
		return nil, errors.New(errors.CodeInternal, "agent has no processor", nil).
			WithContext("role", a.role)
	}
	return a.process(ctx, input)
}

var _ core.Agent = (*Instance)(nil)
