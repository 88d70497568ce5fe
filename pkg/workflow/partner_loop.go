package workflow

import (
	"context"

	"github.com/amontoro/strategos/pkg/agent"
	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/errors"
	"github.com/amontoro/strategos/pkg/playbook"
)

// runPartnerLoop iterates the step's ordered role list for up to Iterations
// rounds. Within a round each role runs in order and its result is written
// into the running state under "previous_result" before the next role runs,
// so later roles in the same round observe it. A termination predicate, when
// configured, is evaluated after each completed round and may stop the loop
// before its iteration budget. The result carries every round's per-label
// results plus the final running state.
func (s *Scheduler) runPartnerLoop(ctx context.Context, step playbook.Step, ec *ExecutionContext) (map[string]any, error) {
	// Bindings resolve once, before the first round. Role labels map through
	// agents_map when present, so a loop can cast one agent in two seats.
	instances := make([]*agent.Instance, len(step.Roles))
	operations := make([]string, len(step.Roles))
	for i, lr := range step.Roles {
		role := lr.Role
		if mapped, ok := step.AgentsMap[lr.Role]; ok {
			role = mapped
		}
		inst, err := s.agentFor(role)
		if err != nil {
			return nil, err
		}
		instances[i] = inst
		operations[i] = lr.Operation
		if operations[i] == "" {
			operations[i] = playbook.DefaultOperation
		}
	}

	terminate, err := s.predicates.Resolve(step.TerminationCondition)
	if err != nil {
		return nil, errors.AsStrategosError(err).WithContext("step_id", step.ID)
	}

	// The running state starts as the execution context view plus any step
	// params and survives across rounds.
	running := ec.View()
	for key, value := range step.Params {
		running[key] = value
	}

	rounds := make([]map[string]any, 0, step.Iterations)
	for round := 1; round <= step.Iterations; round++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(errors.CodeRunCancelled, "run cancelled during partner loop", err).
				WithContext("step_id", step.ID).
				WithContext("iteration", round)
		}

		before := snapshotState(running)
		roundResults := make(map[string]any, len(step.Roles))
		for i, lr := range step.Roles {
			out, err := instances[i].Process(ctx, core.Input{
				Operation: operations[i],
				Context:   running,
				Step:      step.ID,
				Iteration: round,
				Params:    step.Params,
			})
			if err != nil {
				if se, ok := err.(*errors.StrategosError); ok {
					return nil, se.WithContext("role", lr.Role).WithContext("iteration", round)
				}
				return nil, errors.New(errors.CodeStepExecution, "partner loop role failed", err).
					WithContext("role", lr.Role).
					WithContext("iteration", round)
			}
			roundResults[lr.Role] = out
			running["previous_result"] = out
			running["previous_role"] = lr.Role
		}
		rounds = append(rounds, roundResults)

		if terminate != nil && terminate(before, snapshotState(running)) {
			break
		}
	}

	return map[string]any{
		"iterations":  rounds,
		"final_state": running,
	}, nil
}

func snapshotState(state map[string]any) map[string]any {
	snap := make(map[string]any, len(state))
	for key, value := range state {
		snap[key] = value
	}
	return snap
}
