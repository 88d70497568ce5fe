package agent

import (
	"context"
	"sync"

	"github.com/amontoro/strategos/pkg/core"
)

// EchoProvider is a ProcessorProvider whose agents echo their invocation
// back as the result. Used by tests and the CLI dry-run mode; real
// deployments plug in a provider that performs the model call.
func EchoProvider(role RoleConfig, capabilities []string, bundle *Bundle) (ProcessFunc, error) {
	caps := append([]string(nil), capabilities...)
	return func(_ context.Context, input core.Input) (map[string]any, error) {
		return map[string]any{
			"role":         role.Name,
			"model":        role.Model,
			"operation":    input.Operation,
			"step":         input.Step,
			"iteration":    input.Iteration,
			"capabilities": caps,
		}, nil
	}, nil
}

// ScriptedProvider returns a provider whose agents replay canned responses
// per role, in order. When a role's script is exhausted its last response
// repeats. Roles without a script fall back to echoing.
func ScriptedProvider(script map[string][]map[string]any) ProcessorProvider {
	var mu sync.Mutex
	cursors := make(map[string]int)

	return func(role RoleConfig, capabilities []string, bundle *Bundle) (ProcessFunc, error) {
		responses, ok := script[role.Name]
		if !ok || len(responses) == 0 {
			return EchoProvider(role, capabilities, bundle)
		}
		return func(_ context.Context, input core.Input) (map[string]any, error) {
			mu.Lock()
			defer mu.Unlock()
			idx := cursors[role.Name]
			if idx >= len(responses) {
				idx = len(responses) - 1
			} else {
				cursors[role.Name] = idx + 1
			}
			return responses[idx], nil
		}, nil
	}
}
