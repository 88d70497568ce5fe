package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/errors"
	"github.com/amontoro/strategos/pkg/playbook"
)

// runParallel fans the step out to every role:operation pair concurrently
// and awaits all of them. The join is best-effort: one branch failing never
// cancels its siblings, and every branch appears in the fan-in map —
// failures as {"error", "code"} entries under the branch's role label.
// Without an aggregation strategy, any branch failure fails the step after
// the join, with the complete map attached as partial results. A configured
// strategy decides for itself how failures fold (first_success tolerates
// them, for example).
func (s *Scheduler) runParallel(ctx context.Context, step playbook.Step, ec *ExecutionContext) (map[string]any, error) {
	pairs, err := step.Pairs()
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, err.Error(), nil).
			WithContext("step_id", step.ID)
	}

	// Bindings and the context view snapshot before fan-out, so every branch
	// observes the same state and a mid-step Rebind cannot split the step.
	labels := make([]string, len(pairs))
	bound := make([]core.Agent, len(pairs))
	used := make(map[string]bool, len(pairs))
	for i, pair := range pairs {
		inst, err := s.agentFor(pair.Role)
		if err != nil {
			return nil, err
		}
		bound[i] = inst
		label := pair.Role
		if used[label] {
			label = pair.Role + ":" + pair.Operation
		}
		for used[label] {
			label = fmt.Sprintf("%s#%d", label, i)
		}
		used[label] = true
		labels[i] = label
	}
	view := ec.View()

	results := make(map[string]map[string]any, len(pairs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(label string, inst core.Agent, pair playbook.Pair) {
			defer wg.Done()
			out, err := inst.Process(ctx, core.Input{
				Operation: pair.Operation,
				Context:   view,
				Step:      step.ID,
				Params:    step.Params,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				code := errors.CodeStepExecution
				if se, ok := err.(*errors.StrategosError); ok {
					code = se.Code
				}
				results[label] = map[string]any{
					"error": err.Error(),
					"code":  string(code),
				}
				return
			}
			results[label] = out
		}(labels[i], bound[i], pair)
	}
	wg.Wait()

	if step.OutputAggregation == nil {
		raw := make(map[string]any, len(results))
		failed := []string(nil)
		for label, result := range results {
			raw[label] = result
			if branchFailed(result) {
				failed = append(failed, label)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			return nil, errors.New(errors.CodeStepExecution, "parallel branch failed", nil).
				WithContext("failed_roles", failed).
				WithContext("results", raw)
		}
		return raw, nil
	}

	fold, ok := s.aggregators.Get(step.OutputAggregation.Strategy)
	if !ok {
		// preflight rejects unknown strategies; kept for direct handler use.
		return nil, errors.New(errors.CodeInvalidInput, "unknown aggregation strategy", nil).
			WithContext("step_id", step.ID).
			WithContext("strategy", step.OutputAggregation.Strategy)
	}
	aggregated, err := fold(results)
	if err != nil {
		if se, ok := err.(*errors.StrategosError); ok {
			return nil, se.WithContext("strategy", step.OutputAggregation.Strategy)
		}
		return nil, errors.New(errors.CodeStepExecution, "aggregation failed", err).
			WithContext("strategy", step.OutputAggregation.Strategy)
	}
	return aggregated, nil
}
