package agent

import (
	"context"
	"reflect"
	"testing"

	"github.com/amontoro/strategos/pkg/capability"
	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/errors"
)

func testFactory(t *testing.T, provider ProcessorProvider) *Factory {
	t.Helper()
	roles := []RoleConfig{
		{Name: "researcher", Model: "gpt-lite", Instructions: "research the topic"},
		{Name: "writer", Model: "gpt-lite", Instructions: "write the report"},
	}
	resolver := capability.NewResolver([]capability.DependencyRule{
		{Primary: "web_search", Requires: "http_client"},
		{Primary: "http_client", Requires: "rate_limiter"},
	})
	factory, err := NewFactory(roles, NewBundle(capability.NewRegistry()), resolver, provider)
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	return factory
}

func TestFactoryCreateResolvesClosure(t *testing.T) {
	factory := testFactory(t, EchoProvider)
	inst, err := factory.Create("researcher", []string{"web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"http_client", "rate_limiter", "web_search"}
	if got := inst.Capabilities(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected closure %v, got %v", want, got)
	}
	if !inst.HasCapability("rate_limiter") {
		t.Fatalf("expected transitive capability granted")
	}
}

func TestFactoryAppliesRoleDenylist(t *testing.T) {
	roles := []RoleConfig{
		{Name: "intern", Model: "gpt-lite", ToolsDenied: []string{"rate_limiter", "web_*"}},
	}
	resolver := capability.NewResolver([]capability.DependencyRule{
		{Primary: "web_search", Requires: "http_client"},
	})
	factory, err := NewFactory(roles, NewBundle(capability.NewRegistry()), resolver, EchoProvider)
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	inst, err := factory.Create("intern", []string{"web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"http_client"}
	if got := inst.Capabilities(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected denied capabilities pruned, got %v", got)
	}
}

func TestFactoryUnknownRole(t *testing.T) {
	factory := testFactory(t, EchoProvider)
	_, err := factory.Create("ghost", nil)
	se, ok := err.(*errors.StrategosError)
	if !ok || se.Code != errors.CodeRoleNotFound {
		t.Fatalf("expected ROLE_NOT_FOUND, got %v", err)
	}
}

func TestInstancesAreImmutable(t *testing.T) {
	factory := testFactory(t, EchoProvider)
	first, err := factory.Create("researcher", []string{"web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := factory.Create("researcher", nil)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct instances")
	}
	if len(first.Capabilities()) != 3 {
		t.Fatalf("first instance changed: %v", first.Capabilities())
	}
	if len(second.Capabilities()) != 0 {
		t.Fatalf("expected empty capability set, got %v", second.Capabilities())
	}

	// Mutating the returned slice must not leak into the instance.
	caps := first.Capabilities()
	caps[0] = "tampered"
	if first.Capabilities()[0] == "tampered" {
		t.Fatalf("capability slice leaked")
	}
}

func TestToolRefusesUngrantedCapability(t *testing.T) {
	registry := capability.NewRegistry()
	if err := registry.Register(&staticTool{name: "web_search"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	factory, err := NewFactory(
		[]RoleConfig{{Name: "researcher", Model: "m"}},
		NewBundle(registry), nil, EchoProvider)
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	inst, err := factory.Create("researcher", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := inst.Tool("web_search"); err == nil {
		t.Fatalf("expected refusal for ungranted capability")
	}

	granted, err := factory.Create("researcher", []string{"web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := granted.Tool("web_search"); err != nil {
		t.Fatalf("expected granted capability resolvable: %v", err)
	}
}

type staticTool struct{ name string }

func (s *staticTool) Name() string { return s.name }
func (s *staticTool) Call(_ context.Context, input any) (any, error) {
	return input, nil
}

func TestEchoProvider(t *testing.T) {
	factory := testFactory(t, EchoProvider)
	inst, err := factory.Create("writer", []string{"web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := inst.Process(context.Background(), core.Input{
		Operation: "draft",
		Step:      "s1",
		Iteration: 2,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out["role"] != "writer" || out["operation"] != "draft" || out["iteration"] != 2 {
		t.Fatalf("unexpected echo: %v", out)
	}
}

func TestScriptedProviderReplaysAndRepeats(t *testing.T) {
	provider := ScriptedProvider(map[string][]map[string]any{
		"researcher": {{"v": 1}, {"v": 2}},
	})
	factory := testFactory(t, provider)
	inst, err := factory.Create("researcher", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, want := range []int{1, 2, 2} {
		out, err := inst.Process(context.Background(), core.Input{})
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
		if out["v"] != want {
			t.Fatalf("call %d: expected v=%d, got %v", i, want, out["v"])
		}
	}

	// Roles without a script echo.
	writer, err := factory.Create("writer", nil)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	out, err := writer.Process(context.Background(), core.Input{Operation: "draft"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out["operation"] != "draft" {
		t.Fatalf("expected echo fallback, got %v", out)
	}
}

func TestParseRoles(t *testing.T) {
	data := []byte(`
roles:
  - name: researcher
    model: gpt-lite
    instructions: research the topic
  - name: writer
    model: gpt-lite
`)
	roles, err := ParseRoles(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(roles) != 2 || roles[0].Name != "researcher" {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}

func TestParseRolesRejectsDuplicates(t *testing.T) {
	data := []byte(`
roles:
  - name: researcher
  - name: researcher
`)
	if _, err := ParseRoles(data); err == nil {
		t.Fatalf("expected duplicate role error")
	}
}
