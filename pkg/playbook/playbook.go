// Package playbook defines the declarative workflow schema: the roles a
// workflow needs, the capabilities it authorizes, and the linked collection
// of steps the scheduler walks.
package playbook

import (
	"fmt"
	"strings"

	"github.com/amontoro/strategos/pkg/errors"
)

// StepType tags the closed set of step shapes. Unknown tags are rejected at
// load time, before any agent work begins.
type StepType string

const (
	// StepStandard runs a single agent with a single operation.
	StepStandard StepType = "standard"
	// StepParallel fans out to several agent:operation pairs and joins them.
	StepParallel StepType = "parallel"
	// StepPartnerLoop iterates an ordered list of roles for a bounded
	// number of rounds, threading each result to the next role.
	StepPartnerLoop StepType = "partner_loop"
)

// Aggregation selects how parallel results fold into a single value.
type Aggregation struct {
	Strategy string `yaml:"strategy" json:"strategy"`
}

// LoopRole is one entry in a partner loop's ordered role list.
type LoopRole struct {
	Role      string `yaml:"role" json:"role"`
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"`
}

// Pair is a parsed "Role:operation" parallel dispatch target.
type Pair struct {
	Role      string
	Operation string
}

// Step is one node in the workflow chain. Absence of Next is the sole
// termination signal; there is no conditional branching between steps.
type Step struct {
	ID                   string            `yaml:"step_id" json:"step_id"`
	Type                 StepType          `yaml:"type" json:"type"`
	Next                 string            `yaml:"next,omitempty" json:"next,omitempty"`
	Agent                string            `yaml:"agent,omitempty" json:"agent,omitempty"`
	Operation            string            `yaml:"operation,omitempty" json:"operation,omitempty"`
	Params               map[string]any    `yaml:"params,omitempty" json:"params,omitempty"`
	Agents               []string          `yaml:"agents,omitempty" json:"agents,omitempty"`
	OutputAggregation    *Aggregation      `yaml:"output_aggregation,omitempty" json:"output_aggregation,omitempty"`
	Roles                []LoopRole        `yaml:"roles,omitempty" json:"roles,omitempty"`
	AgentsMap            map[string]string `yaml:"agents_map,omitempty" json:"agents_map,omitempty"`
	Iterations           int               `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	TerminationCondition string            `yaml:"termination_condition,omitempty" json:"termination_condition,omitempty"`
}

// Playbook is the declarative workflow definition. It is loaded once per run
// and read-only thereafter.
type Playbook struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Agents       []string `yaml:"agents" json:"agents"`
	ToolsAllowed []string `yaml:"tools_allowed,omitempty" json:"tools_allowed,omitempty"`
	Workflow     []Step   `yaml:"workflow" json:"workflow"`
}

// DefaultOperation is used when a parallel pair or loop role omits one.
const DefaultOperation = "process"

// Pairs parses the step's "Role:operation" dispatch list. A bare role name
// defaults to the "process" operation.
func (s Step) Pairs() ([]Pair, error) {
	pairs := make([]Pair, 0, len(s.Agents))
	for _, raw := range s.Agents {
		role, op, found := strings.Cut(raw, ":")
		role = strings.TrimSpace(role)
		op = strings.TrimSpace(op)
		if role == "" || (found && op == "") {
			return nil, fmt.Errorf("invalid agent pair %q", raw)
		}
		if op == "" {
			op = DefaultOperation
		}
		pairs = append(pairs, Pair{Role: role, Operation: op})
	}
	return pairs, nil
}

// Step returns the step with the given id.
func (p *Playbook) Step(id string) (Step, bool) {
	for _, step := range p.Workflow {
		if step.ID == id {
			return step, true
		}
	}
	return Step{}, false
}

// First returns the workflow's designated start: the first step in the
// collection.
func (p *Playbook) First() Step {
	return p.Workflow[0]
}

// Validate checks the playbook is well-formed for execution: unique step
// ids, known step types, resolvable next pointers, and per-type payloads
// that reference only declared roles. It runs before any agent is created.
func (p *Playbook) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("playbook name is required", "")
	}
	if len(p.Workflow) == 0 {
		return invalid("playbook has no steps", "")
	}

	declared := make(map[string]bool, len(p.Agents))
	for _, role := range p.Agents {
		if strings.TrimSpace(role) == "" {
			return invalid("playbook declares an empty role name", "")
		}
		declared[role] = true
	}

	ids := make(map[string]bool, len(p.Workflow))
	for _, step := range p.Workflow {
		if strings.TrimSpace(step.ID) == "" {
			return invalid("step is missing step_id", "")
		}
		if ids[step.ID] {
			return invalid("duplicate step_id", step.ID)
		}
		ids[step.ID] = true
	}

	for _, step := range p.Workflow {
		if err := p.validateStep(step, declared); err != nil {
			return err
		}
	}

	for _, step := range p.Workflow {
		if step.Next != "" && !ids[step.Next] {
			return invalid(fmt.Sprintf("next %q does not name a step", step.Next), step.ID)
		}
	}
	return nil
}

func (p *Playbook) validateStep(step Step, declared map[string]bool) error {
	switch step.Type {
	case StepStandard:
		if strings.TrimSpace(step.Agent) == "" {
			return invalid("standard step requires an agent", step.ID)
		}
		if !declared[step.Agent] {
			return invalid(fmt.Sprintf("agent %q is not declared by the playbook", step.Agent), step.ID)
		}
	case StepParallel:
		pairs, err := step.Pairs()
		if err != nil {
			return invalid(err.Error(), step.ID)
		}
		if len(pairs) == 0 {
			return invalid("parallel step requires at least one agent pair", step.ID)
		}
		for _, pair := range pairs {
			if !declared[pair.Role] {
				return invalid(fmt.Sprintf("agent %q is not declared by the playbook", pair.Role), step.ID)
			}
		}
	case StepPartnerLoop:
		if step.Iterations < 1 {
			return invalid("partner loop requires iterations >= 1", step.ID)
		}
		if len(step.Roles) == 0 {
			return invalid("partner loop requires an ordered role list", step.ID)
		}
		for _, lr := range step.Roles {
			if strings.TrimSpace(lr.Role) == "" {
				return invalid("partner loop role label is empty", step.ID)
			}
			bound := lr.Role
			if mapped, ok := step.AgentsMap[lr.Role]; ok {
				bound = mapped
			}
			if !declared[bound] {
				return invalid(fmt.Sprintf("agent %q is not declared by the playbook", bound), step.ID)
			}
		}
	default:
		return errors.New(errors.CodeUnknownStepType, "unknown step type", nil).
			WithContext("step_id", step.ID).
			WithContext("type", string(step.Type))
	}
	return nil
}

func invalid(msg, stepID string) error {
	err := errors.New(errors.CodeInvalidInput, msg, nil)
	if stepID != "" {
		err = err.WithContext("step_id", stepID)
	}
	return err
}
