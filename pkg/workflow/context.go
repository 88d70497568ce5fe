package workflow

// ExecutionContext is the mutable state a workflow run threads through its
// steps. Input is the caller's initial payload and is never written after
// construction. State and Output accumulate one entry per completed step,
// keyed by step id. Scratch is free-form working space for agents.
type ExecutionContext struct {
	Input   map[string]any
	Output  map[string]any
	State   map[string]any
	Scratch map[string]any
}

// NewExecutionContext creates an execution context seeded with the given
// input. A nil input yields an empty input map.
func NewExecutionContext(input map[string]any) *ExecutionContext {
	in := make(map[string]any, len(input))
	for k, v := range input {
		in[k] = v
	}
	return &ExecutionContext{
		Input:   in,
		Output:  make(map[string]any),
		State:   make(map[string]any),
		Scratch: make(map[string]any),
	}
}

// SetState records a step's result under its step id. Re-running a step id
// overwrites the previous entry.
func (ec *ExecutionContext) SetState(stepID string, result map[string]any) {
	ec.State[stepID] = result
	ec.Output[stepID] = result
}

// StepResult returns the recorded result for a step id.
func (ec *ExecutionContext) StepResult(stepID string) (map[string]any, bool) {
	result, ok := ec.State[stepID].(map[string]any)
	return result, ok
}

// View renders the context as the map agents receive. The nesting is part of
// the agent contract: input, output, state, and scratch appear under those
// exact keys.
func (ec *ExecutionContext) View() map[string]any {
	return map[string]any{
		"input":   ec.Input,
		"output":  ec.Output,
		"state":   ec.State,
		"scratch": ec.Scratch,
	}
}
