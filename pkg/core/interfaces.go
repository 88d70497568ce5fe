package core

import "context"

// Tool is a concrete capability implementation an agent may call.
type Tool interface {
	Name() string
	Call(ctx context.Context, input any) (any, error)
}

// BeliefEngine is the probabilistic belief-update collaborator. The
// orchestration core never interprets its results; agents call into it
// read-only through the dependency bundle.
type BeliefEngine interface {
	Update(ctx context.Context, evidence map[string]any) error
	Estimate(ctx context.Context, hypothesis string) (float64, error)
}

// Input is the record every agent invocation receives. Context carries the
// execution context view (or the partner-loop running state), Step the id of
// the dispatching step, and Iteration the round index for partner loops.
type Input struct {
	Operation string
	Context   map[string]any
	Step      string
	Iteration int
	Params    map[string]any
}

// Agent is the minimal executable unit of a workflow run: a black-box
// process call bound to a role and a resolved capability set.
type Agent interface {
	Role() string
	Model() string
	Capabilities() []string
	Process(ctx context.Context, input Input) (map[string]any, error)
}
