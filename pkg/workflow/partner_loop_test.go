package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/amontoro/strategos/pkg/agent"
	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/playbook"
)

func loopPlaybook(step playbook.Step, roles ...string) *playbook.Playbook {
	step.ID = "loop"
	step.Type = playbook.StepPartnerLoop
	return &playbook.Playbook{
		Name:     "partner",
		Agents:   roles,
		Workflow: []playbook.Step{step},
	}
}

// observingProvider records the previous_result each invocation of the named
// role observes, and otherwise delegates to the wrapped provider.
func observingProvider(wrapped agent.ProcessorProvider, role string, seen *[]any, mu *sync.Mutex) agent.ProcessorProvider {
	return func(cfg agent.RoleConfig, capabilities []string, bundle *agent.Bundle) (agent.ProcessFunc, error) {
		process, err := wrapped(cfg, capabilities, bundle)
		if err != nil {
			return nil, err
		}
		if cfg.Name != role {
			return process, nil
		}
		return func(ctx context.Context, input core.Input) (map[string]any, error) {
			mu.Lock()
			*seen = append(*seen, input.Context["previous_result"])
			mu.Unlock()
			return process(ctx, input)
		}, nil
	}
}

func TestPartnerLoopSameRoundThreading(t *testing.T) {
	scripted := agent.ScriptedProvider(map[string][]map[string]any{
		"proposer": {{"v": 1}, {"v": 2}},
		"critic":   {{"c": 1}, {"c": 2}},
	})
	var mu sync.Mutex
	var criticSaw []any
	provider := observingProvider(scripted, "critic", &criticSaw, &mu)
	agents := testAgents(t, provider, "proposer", "critic")
	sched := NewScheduler(agents)

	pb := loopPlaybook(playbook.Step{
		Roles:      []playbook.LoopRole{{Role: "proposer"}, {Role: "critic"}},
		Iterations: 2,
	}, "proposer", "critic")

	result, err := sched.Run(context.Background(), pb, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(criticSaw) != 2 {
		t.Fatalf("expected critic to run twice, got %d", len(criticSaw))
	}
	// The critic observes the proposer's result from the same round.
	round1, _ := criticSaw[0].(map[string]any)
	if round1["v"] != 1 {
		t.Fatalf("round 1: expected proposer result {v:1}, got %v", criticSaw[0])
	}
	round2, _ := criticSaw[1].(map[string]any)
	if round2["v"] != 2 {
		t.Fatalf("round 2: expected proposer result {v:2}, got %v", criticSaw[1])
	}

	loop, _ := result.Output["loop"].(map[string]any)
	rounds, _ := loop["iterations"].([]map[string]any)
	if len(rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %v", loop["iterations"])
	}
	firstRound, _ := rounds[0]["proposer"].(map[string]any)
	if firstRound["v"] != 1 {
		t.Fatalf("expected proposer round 1 recorded, got %v", rounds[0])
	}
	final, _ := loop["final_state"].(map[string]any)
	last, _ := final["previous_result"].(map[string]any)
	if last["c"] != 2 {
		t.Fatalf("expected critic's last result threaded, got %v", final["previous_result"])
	}
	if final["previous_role"] != "critic" {
		t.Fatalf("expected critic as last role, got %v", final["previous_role"])
	}
}

func TestPartnerLoopHasKeyTermination(t *testing.T) {
	scripted := agent.ScriptedProvider(map[string][]map[string]any{
		"proposer": {{"draft": 1}, {"verdict": "ship"}, {"draft": 3}},
	})
	agents := testAgents(t, scripted, "proposer")
	sched := NewScheduler(agents)

	pb := loopPlaybook(playbook.Step{
		Roles:                []playbook.LoopRole{{Role: "proposer"}},
		Iterations:           5,
		TerminationCondition: "has_key:verdict",
	}, "proposer")

	result, err := sched.Run(context.Background(), pb, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	loop, _ := result.Output["loop"].(map[string]any)
	if rounds, _ := loop["iterations"].([]map[string]any); len(rounds) != 2 {
		t.Fatalf("expected early termination after 2 rounds, got %v", loop["iterations"])
	}
}

func TestPartnerLoopConvergedTermination(t *testing.T) {
	scripted := agent.ScriptedProvider(map[string][]map[string]any{
		"proposer": {{"v": 1}},
	})
	agents := testAgents(t, scripted, "proposer")
	sched := NewScheduler(agents)

	pb := loopPlaybook(playbook.Step{
		Roles:                []playbook.LoopRole{{Role: "proposer"}},
		Iterations:           5,
		TerminationCondition: "converged",
	}, "proposer")

	result, err := sched.Run(context.Background(), pb, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	loop, _ := result.Output["loop"].(map[string]any)
	// Round 1 introduces previous_result; round 2 repeats it and converges.
	if rounds, _ := loop["iterations"].([]map[string]any); len(rounds) != 2 {
		t.Fatalf("expected convergence after 2 rounds, got %v", loop["iterations"])
	}
}

func TestPartnerLoopRunsFullBudget(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	counting := func(cfg agent.RoleConfig, capabilities []string, bundle *agent.Bundle) (agent.ProcessFunc, error) {
		return func(_ context.Context, input core.Input) (map[string]any, error) {
			mu.Lock()
			calls++
			current := calls
			mu.Unlock()
			return map[string]any{"call": current, "round": input.Iteration}, nil
		}, nil
	}
	agents := testAgents(t, counting, "proposer", "critic")
	sched := NewScheduler(agents)

	pb := loopPlaybook(playbook.Step{
		Roles:      []playbook.LoopRole{{Role: "proposer"}, {Role: "critic"}},
		Iterations: 3,
	}, "proposer", "critic")

	result, err := sched.Run(context.Background(), pb, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 6 {
		t.Fatalf("expected 6 role invocations, got %d", calls)
	}
	loop, _ := result.Output["loop"].(map[string]any)
	rounds, _ := loop["iterations"].([]map[string]any)
	if len(rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %v", loop["iterations"])
	}
	if _, ok := rounds[2]["critic"]; !ok {
		t.Fatalf("expected critic recorded in final round, got %v", rounds[2])
	}
}

func TestPartnerLoopAgentsMap(t *testing.T) {
	agents := testAgents(t, agent.EchoProvider, "debater")
	sched := NewScheduler(agents)

	pb := loopPlaybook(playbook.Step{
		Roles:      []playbook.LoopRole{{Role: "red"}, {Role: "blue"}},
		AgentsMap:  map[string]string{"red": "debater", "blue": "debater"},
		Iterations: 1,
	}, "debater")

	result, err := sched.Run(context.Background(), pb, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	loop, _ := result.Output["loop"].(map[string]any)
	final, _ := loop["final_state"].(map[string]any)
	// Labels, not bound agent names, thread through previous_role.
	if final["previous_role"] != "blue" {
		t.Fatalf("expected blue as last label, got %v", final["previous_role"])
	}
}
