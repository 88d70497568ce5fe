package workflow

import (
	"context"

	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/errors"
	"github.com/amontoro/strategos/pkg/playbook"
)

// runStandard dispatches a single agent with a single operation. The agent
// receives the full execution context view; its result map becomes the
// step's result unchanged.
func (s *Scheduler) runStandard(ctx context.Context, step playbook.Step, ec *ExecutionContext) (map[string]any, error) {
	inst, err := s.agentFor(step.Agent)
	if err != nil {
		return nil, err
	}
	operation := step.Operation
	if operation == "" {
		operation = playbook.DefaultOperation
	}
	out, err := inst.Process(ctx, core.Input{
		Operation: operation,
		Context:   ec.View(),
		Step:      step.ID,
		Params:    step.Params,
	})
	if err != nil {
		if se, ok := err.(*errors.StrategosError); ok {
			return nil, se.WithContext("role", step.Agent)
		}
		return nil, errors.New(errors.CodeStepExecution, "agent process failed", err).
			WithContext("role", step.Agent).
			WithContext("operation", operation)
	}
	return out, nil
}
