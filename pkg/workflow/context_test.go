package workflow

import (
	"testing"
)

func TestExecutionContextView(t *testing.T) {
	ec := NewExecutionContext(map[string]any{"topic": "pricing"})
	view := ec.View()
	for _, key := range []string{"input", "output", "state", "scratch"} {
		if _, ok := view[key]; !ok {
			t.Fatalf("view is missing key %q", key)
		}
	}
	input, ok := view["input"].(map[string]any)
	if !ok {
		t.Fatalf("view input is not a map")
	}
	if input["topic"] != "pricing" {
		t.Fatalf("unexpected input: %v", input)
	}
}

func TestExecutionContextSetStateOverwrites(t *testing.T) {
	ec := NewExecutionContext(nil)
	ec.SetState("s1", map[string]any{"v": 1})
	ec.SetState("s1", map[string]any{"v": 2})

	if len(ec.State) != 1 {
		t.Fatalf("expected 1 state entry, got %d", len(ec.State))
	}
	result, ok := ec.StepResult("s1")
	if !ok {
		t.Fatalf("expected s1 result")
	}
	if result["v"] != 2 {
		t.Fatalf("expected overwrite, got %v", result["v"])
	}
	if output, _ := ec.Output["s1"].(map[string]any); output["v"] != 2 {
		t.Fatalf("output did not track overwrite: %v", ec.Output["s1"])
	}
}

func TestExecutionContextNilInput(t *testing.T) {
	ec := NewExecutionContext(nil)
	if ec.Input == nil || ec.Output == nil || ec.State == nil || ec.Scratch == nil {
		t.Fatalf("expected all sections initialized")
	}
}
