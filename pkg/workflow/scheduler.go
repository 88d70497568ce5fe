// Package workflow executes declarative playbooks: a scheduler walks the
// step chain, dispatches each step to its type handler, and accumulates
// results in an execution context shared across the run.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amontoro/strategos/pkg/agent"
	"github.com/amontoro/strategos/pkg/capability"
	"github.com/amontoro/strategos/pkg/core"
	"github.com/amontoro/strategos/pkg/errors"
	"github.com/amontoro/strategos/pkg/playbook"
	"github.com/amontoro/strategos/pkg/resilience"
	"github.com/amontoro/strategos/pkg/telemetry"
)

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Result is the outcome of a workflow run. Output holds one entry per
// completed step, keyed by step id. On failure, FailedStep names the step
// that ended the run and Output still carries every step completed before
// it.
type Result struct {
	RunID      string
	Status     Status
	Output     map[string]any
	Context    *ExecutionContext
	FailedStep string
}

type stepHandler func(ctx context.Context, step playbook.Step, ec *ExecutionContext) (map[string]any, error)

// Scheduler walks a playbook's step chain and dispatches each step to the
// handler registered for its type. One scheduler serves many runs; the
// per-run state lives in the execution context, never on the scheduler.
type Scheduler struct {
	mu     sync.RWMutex
	agents map[string]*agent.Instance

	resolver    *capability.Resolver
	stepTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *telemetry.WorkflowMetrics
	audit       AuditStore
	aggregators *AggregatorRegistry
	predicates  *PredicateRegistry
	handlers    map[playbook.StepType]stepHandler
}

// SchedulerOption configures a scheduler at construction.
type SchedulerOption func(*Scheduler)

// WithStepTimeout bounds every step dispatch. Zero disables the boundary.
func WithStepTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.stepTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResolver enables static capability validation of tools_allowed before
// any step runs.
func WithResolver(r *capability.Resolver) SchedulerOption {
	return func(s *Scheduler) { s.resolver = r }
}

// WithMetrics records run and step outcomes.
func WithMetrics(m *telemetry.WorkflowMetrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithAuditStore records step transitions to the given store.
func WithAuditStore(store AuditStore) SchedulerOption {
	return func(s *Scheduler) { s.audit = store }
}

// WithAggregators replaces the built-in aggregation strategy registry.
func WithAggregators(r *AggregatorRegistry) SchedulerOption {
	return func(s *Scheduler) {
		if r != nil {
			s.aggregators = r
		}
	}
}

// WithPredicates replaces the built-in termination predicate registry.
func WithPredicates(r *PredicateRegistry) SchedulerOption {
	return func(s *Scheduler) {
		if r != nil {
			s.predicates = r
		}
	}
}

// NewScheduler creates a scheduler over the given role→agent bindings.
func NewScheduler(agents map[string]*agent.Instance, opts ...SchedulerOption) *Scheduler {
	bound := make(map[string]*agent.Instance, len(agents))
	for role, inst := range agents {
		bound[role] = inst
	}
	s := &Scheduler{
		agents:      bound,
		logger:      slog.Default(),
		tracer:      otel.Tracer("strategos/workflow"),
		aggregators: NewAggregatorRegistry(),
		predicates:  NewPredicateRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = map[playbook.StepType]stepHandler{
		playbook.StepStandard:    s.runStandard,
		playbook.StepParallel:    s.runParallel,
		playbook.StepPartnerLoop: s.runPartnerLoop,
	}
	return s
}

// Rebind replaces the agent bound to a role. In-flight steps keep the
// instance they were dispatched with; the new binding applies from the next
// dispatch on.
func (s *Scheduler) Rebind(role string, inst *agent.Instance) error {
	if role == "" || inst == nil {
		return errors.New(errors.CodeInvalidInput, "rebind requires a role and an instance", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[role] = inst
	return nil
}

// agentFor resolves the agent currently bound to a role.
func (s *Scheduler) agentFor(role string) (*agent.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.agents[role]
	if !ok || inst == nil {
		return nil, errors.New(errors.CodeRoleNotBound, "no agent bound to role", nil).
			WithContext("role", role)
	}
	return inst, nil
}

// Run executes the playbook from its first step until a step with no next
// pointer completes, a step fails, or the context is cancelled. The returned
// Result is non-nil whenever execution started, including on failure.
func (s *Scheduler) Run(ctx context.Context, pb *playbook.Playbook, input map[string]any) (*Result, error) {
	if pb == nil {
		return nil, errors.New(errors.CodeInvalidInput, "playbook is nil", nil)
	}
	if err := s.preflight(pb); err != nil {
		return nil, err
	}

	ctx, runID := core.EnsureRunID(ctx)
	ctx, runSpan := s.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.playbook", pb.Name),
			attribute.String("workflow.run_id", runID),
		))
	defer runSpan.End()

	logger := s.logger.With("playbook", pb.Name, "run_id", runID)
	logger.InfoContext(ctx, "workflow run started", "steps", len(pb.Workflow))

	ec := NewExecutionContext(input)
	result := &Result{RunID: runID, Status: StatusRunning, Context: ec}
	visited := make(map[string]bool, len(pb.Workflow))

	step := pb.First()
	for {
		if err := ctx.Err(); err != nil {
			cancelErr := errors.New(errors.CodeRunCancelled, "run cancelled between steps", err).
				WithContext("step_id", step.ID)
			return s.finishFailed(ctx, runSpan, logger, pb, result, step.ID, cancelErr)
		}
		if visited[step.ID] {
			cycleErr := errors.New(errors.CodeCyclicWorkflow, "next-step chain revisited a step", nil).
				WithContext("step_id", step.ID)
			return s.finishFailed(ctx, runSpan, logger, pb, result, step.ID, cycleErr)
		}
		visited[step.ID] = true

		out, err := s.runStep(ctx, pb, step, ec, runID, logger)
		if err != nil {
			return s.finishFailed(ctx, runSpan, logger, pb, result, step.ID, err)
		}
		ec.SetState(step.ID, out)

		if step.Next == "" {
			break
		}
		next, ok := pb.Step(step.Next)
		if !ok {
			// Validate guarantees resolvable next pointers; reaching here
			// means the playbook mutated mid-run.
			danglingErr := errors.New(errors.CodeInternal, "next pointer does not resolve", nil).
				WithContext("step_id", step.ID).
				WithContext("next", step.Next)
			return s.finishFailed(ctx, runSpan, logger, pb, result, step.ID, danglingErr)
		}
		step = next
	}

	result.Status = StatusCompleted
	result.Output = ec.Output
	runSpan.SetStatus(codes.Ok, "")
	s.metrics.RecordRun(ctx, pb.Name, string(StatusCompleted))
	logger.InfoContext(ctx, "workflow run completed", "steps_executed", len(visited))
	return result, nil
}

// RunWorkflow executes the playbook and returns the accumulated output map,
// one entry per completed step. It is the synchronous entry point for
// callers that do not need the full Result.
func (s *Scheduler) RunWorkflow(ctx context.Context, pb *playbook.Playbook, input map[string]any) (map[string]any, error) {
	result, err := s.Run(ctx, pb, input)
	if err != nil {
		return nil, err
	}
	return result.Output, nil
}

// preflight rejects playbooks the scheduler cannot run before any agent
// work begins: malformed shapes, unsatisfied tool dependencies, unknown
// aggregation strategies, and unresolvable termination conditions.
func (s *Scheduler) preflight(pb *playbook.Playbook) error {
	if err := pb.Validate(); err != nil {
		return err
	}
	if s.resolver != nil && len(pb.ToolsAllowed) > 0 {
		if missing := s.resolver.Validate(pb.ToolsAllowed); len(missing) > 0 {
			details := make([]string, 0, len(missing))
			for _, m := range missing {
				details = append(details, m.String())
			}
			return errors.New(errors.CodeMissingToolDependency, "tools_allowed does not satisfy capability dependencies", nil).
				WithContext("missing", details)
		}
	}
	for _, step := range pb.Workflow {
		if step.Type == playbook.StepParallel && step.OutputAggregation != nil {
			if !s.aggregators.Has(step.OutputAggregation.Strategy) {
				return errors.New(errors.CodeInvalidInput, "unknown aggregation strategy", nil).
					WithContext("step_id", step.ID).
					WithContext("strategy", step.OutputAggregation.Strategy)
			}
		}
		if step.Type == playbook.StepPartnerLoop {
			if _, err := s.predicates.Resolve(step.TerminationCondition); err != nil {
				return errors.AsStrategosError(err).WithContext("step_id", step.ID)
			}
		}
	}
	return nil
}

func (s *Scheduler) runStep(ctx context.Context, pb *playbook.Playbook, step playbook.Step, ec *ExecutionContext, runID string, logger *slog.Logger) (map[string]any, error) {
	handler, ok := s.handlers[step.Type]
	if !ok {
		return nil, errors.New(errors.CodeUnknownStepType, "no handler for step type", nil).
			WithContext("step_id", step.ID).
			WithContext("type", string(step.Type))
	}

	ctx, span := s.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.step_id", step.ID),
			attribute.String("workflow.step_type", string(step.Type)),
		))
	defer span.End()

	started := time.Now()
	s.recordAudit(ctx, AuditEvent{
		RunID:     runID,
		Playbook:  pb.Name,
		StepID:    step.ID,
		StepType:  string(step.Type),
		Status:    "started",
		StartedAt: started,
	})
	logger.InfoContext(ctx, "step started", "step_id", step.ID, "type", string(step.Type))

	value, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: s.stepTimeout},
		func(ctx context.Context) (any, error) {
			return handler(ctx, step, ec)
		})
	elapsed := time.Since(started)

	if err != nil {
		se, ok := err.(*errors.StrategosError)
		if !ok {
			se = errors.New(errors.CodeStepExecution, "step execution failed", err)
		}
		se = se.WithContext("step_id", step.ID)
		span.RecordError(se)
		span.SetStatus(codes.Error, string(se.Code))
		s.metrics.RecordStep(ctx, string(step.Type), "failed", elapsed)
		s.metrics.RecordError(ctx, se, string(step.Type))
		s.recordAudit(ctx, AuditEvent{
			RunID:      runID,
			Playbook:   pb.Name,
			StepID:     step.ID,
			StepType:   string(step.Type),
			Status:     "failed",
			Error:      se.Error(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		})
		logger.ErrorContext(ctx, "step failed", "step_id", step.ID, "code", string(se.Code), "error", se)
		return nil, se
	}

	out, _ := value.(map[string]any)
	span.SetStatus(codes.Ok, "")
	s.metrics.RecordStep(ctx, string(step.Type), "completed", elapsed)
	s.recordAudit(ctx, AuditEvent{
		RunID:      runID,
		Playbook:   pb.Name,
		StepID:     step.ID,
		StepType:   string(step.Type),
		Status:     "completed",
		Output:     out,
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
	logger.InfoContext(ctx, "step completed", "step_id", step.ID, "elapsed", elapsed.String())
	return out, nil
}

func (s *Scheduler) finishFailed(ctx context.Context, runSpan trace.Span, logger *slog.Logger, pb *playbook.Playbook, result *Result, stepID string, err error) (*Result, error) {
	se := errors.AsStrategosError(err)
	result.Status = StatusFailed
	result.FailedStep = stepID
	result.Output = result.Context.Output
	runSpan.RecordError(se)
	runSpan.SetStatus(codes.Error, string(se.Code))
	s.metrics.RecordRun(ctx, pb.Name, string(StatusFailed))
	logger.ErrorContext(ctx, "workflow run failed", "step_id", stepID, "code", string(se.Code))
	return result, se
}

func (s *Scheduler) recordAudit(ctx context.Context, event AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "step_id", event.StepID, "error", err)
	}
}
