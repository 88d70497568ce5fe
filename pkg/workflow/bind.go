package workflow

import (
	"github.com/amontoro/strategos/pkg/agent"
	"github.com/amontoro/strategos/pkg/playbook"
)

// BindAgents materializes one agent instance per role the playbook declares,
// granting each the closure of the playbook's tools_allowed set. The
// returned map is what NewScheduler takes as its bindings.
func BindAgents(factory *agent.Factory, pb *playbook.Playbook) (map[string]*agent.Instance, error) {
	bound := make(map[string]*agent.Instance, len(pb.Agents))
	for _, role := range pb.Agents {
		inst, err := factory.Create(role, pb.ToolsAllowed)
		if err != nil {
			return nil, err
		}
		bound[role] = inst
	}
	return bound, nil
}
