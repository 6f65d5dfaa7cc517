// Package engine drives a workflow run: a step-graph state machine with a
// supervisor node that plans lazily, gates risky steps behind protocol
// policies and human approval, and dispatches plan steps to registered
// capabilities.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stepward/stepward/internal/capability"
	"github.com/stepward/stepward/internal/logging"
	"github.com/stepward/stepward/internal/planning"
	"github.com/stepward/stepward/internal/protocol"
	"github.com/stepward/stepward/internal/risk"
	"github.com/stepward/stepward/internal/streaming"
	"github.com/stepward/stepward/pkg/schema"
)

// DefaultMaxNodeExecutions bounds the driving loop.
const DefaultMaxNodeExecutions = 50

// HumanGate is the engine's view of the decision service. Decide blocks
// until the request is approved, rejected, or the wait bound elapses; only
// transport faults surface as errors.
type HumanGate interface {
	Decide(ctx context.Context, message string) (schema.DecisionOutcome, error)
}

// Deps holds the engine's collaborators.
type Deps struct {
	Capabilities *capability.Registry
	Planner      *planning.Parser
	Enforcer     *protocol.Enforcer
	Gate         HumanGate
	Hub          streaming.EventHub
	Logger       *slog.Logger
	MaxNodes     int
}

// Engine executes workflow runs. A single run is strictly sequential; the
// engine itself is safe to share across independent runs.
type Engine struct {
	deps Deps
}

// New creates an Engine. Capabilities and Planner are required; a nil
// Enforcer means no protocol policies, a nil Gate disables the human gate
// only while InterventionConfig.Enabled is false.
func New(deps Deps) (*Engine, error) {
	if deps.Capabilities == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine requires a capability registry")
	}
	if deps.Planner == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine requires a plan parser")
	}
	if deps.Enforcer == nil {
		deps.Enforcer = protocol.NewEnforcer(deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxNodes <= 0 {
		deps.MaxNodes = DefaultMaxNodeExecutions
	}
	return &Engine{deps: deps}, nil
}

// Route computes the next node for the given state. Pure: calling it twice
// on the same state yields the same target.
func Route(state *schema.WorkflowState) schema.Node {
	if state.CurrentStep == string(schema.NodeEnd) || state.Status == schema.WorkflowStatusCompleted {
		return schema.NodeEnd
	}
	if state.AllStepsCompleted() {
		return schema.NodeEnd
	}
	if state.LastNode == schema.NodeSupervisor {
		if step, ok := state.Plan.Step(state.CurrentStep); ok {
			return schema.Node(step.Capability)
		}
	}
	return schema.NodeSupervisor
}

// Run drives the state machine until the run completes, halts, or the node
// ceiling is exceeded. The final state is always returned; the error is
// non-nil only for faults the caller must see (execution limit, unknown
// node, node failures). Rejection and timeout of the human gate are
// regular Halted outcomes, not errors.
func (e *Engine) Run(ctx context.Context, state *schema.WorkflowState) (*schema.WorkflowState, error) {
	ctx = logging.WithRunID(ctx, state.RunID)
	e.publish(ctx, state, schema.EventWorkflowStarted, nil)

	for executions := 0; ; executions++ {
		if executions >= e.deps.MaxNodes {
			err := schema.NewErrorf(schema.ErrCodeExecutionLimit,
				"node execution ceiling (%d) reached", e.deps.MaxNodes)
			state.Status = schema.WorkflowStatusHalted
			state.Logs = append(state.Logs, err.Error())
			e.deps.Logger.ErrorContext(ctx, "run exceeded node ceiling", slog.Int("ceiling", e.deps.MaxNodes))
			e.publish(ctx, state, schema.EventWorkflowHalted, map[string]any{"reason": err.Code})
			return state, err
		}

		node := Route(state)
		if node == schema.NodeEnd {
			if state.Status != schema.WorkflowStatusHalted {
				state.Status = schema.WorkflowStatusCompleted
				state.Logs = append(state.Logs, "Workflow complete.")
				e.publish(ctx, state, schema.EventWorkflowCompleted, nil)
			} else {
				e.publish(ctx, state, schema.EventWorkflowHalted, nil)
			}
			return state, nil
		}

		update, err := e.execute(ctx, node, state)
		if err != nil {
			state.Status = schema.WorkflowStatusHalted
			state.Logs = append(state.Logs, fmt.Sprintf("Fault in node %q: %s", node, err.Error()))
			e.deps.Logger.ErrorContext(ctx, "node execution failed",
				slog.String("node", string(node)),
				slog.String("error", err.Error()),
			)
			e.publish(ctx, state, schema.EventWorkflowHalted, map[string]any{"error": err.Error()})
			return state, err
		}

		state.Apply(update)
		e.publish(ctx, state, schema.EventNodeExecuted, map[string]any{
			"status":          string(state.Status),
			"current_step":    state.CurrentStep,
			"completed_steps": len(state.CompletedSteps),
		})

		if state.Status == schema.WorkflowStatusHalted {
			e.publish(ctx, state, schema.EventWorkflowHalted, nil)
			return state, nil
		}
	}
}

// execute dispatches a node. The supervisor and terminal nodes are handled
// explicitly; every other node must resolve to a registered capability or
// the run dies with an UNKNOWN_NODE fault.
func (e *Engine) execute(ctx context.Context, node schema.Node, state *schema.WorkflowState) (schema.StateUpdate, error) {
	switch node {
	case schema.NodeSupervisor:
		return e.supervise(ctx, state)
	case schema.NodeEnd:
		return schema.StateUpdate{}, schema.NewError(schema.ErrCodeUnknownNode, "terminal node dispatched for execution")
	default:
		return e.runCapability(ctx, node, state)
	}
}

// supervise advances the plan: creates it on first pass, then gates and
// completes the current step.
func (e *Engine) supervise(ctx context.Context, state *schema.WorkflowState) (schema.StateUpdate, error) {
	supervisor := schema.NodeSupervisor

	if state.Plan.Empty() {
		return e.createPlan(ctx, state)
	}

	step, ok := state.Plan.Step(state.CurrentStep)
	if !ok || state.Completed(step.Name) {
		end := string(schema.NodeEnd)
		return schema.StateUpdate{
			CurrentStep: &end,
			Logs:        []string{"Supervisor: no valid next step, ending workflow."},
			LastNode:    &supervisor,
		}, nil
	}

	ctx = logging.WithStep(ctx, step.Name)
	logs := []string{fmt.Sprintf("Supervisor: current step is %q", step.Name)}

	level := risk.Assess(step, state)
	logs = append(logs, fmt.Sprintf("Supervisor: assessed risk for %q as %s", step.Name, level))
	e.deps.Logger.InfoContext(ctx, "step risk assessed", slog.String("risk", level.String()))

	if !e.deps.Enforcer.Enforce(ctx, step.Name, state) {
		halted := schema.WorkflowStatusHalted
		end := string(schema.NodeEnd)
		logs = append(logs, fmt.Sprintf("Supervisor: step %q violates protocols, halting workflow.", step.Name))
		e.publish(ctx, state, schema.EventProtocolViolation, map[string]any{"step": step.Name})
		return schema.StateUpdate{
			Status:      &halted,
			CurrentStep: &end,
			Logs:        logs,
			LastNode:    &supervisor,
		}, nil
	}

	if state.Intervention.Enabled && level >= state.Intervention.RiskThreshold {
		outcome, err := e.askHuman(ctx, step, level)
		if err != nil {
			return schema.StateUpdate{}, err
		}
		logs = append(logs, fmt.Sprintf("Supervisor: human decision for %q: %s", step.Name, outcome))
		if outcome != schema.OutcomeApproved {
			halted := schema.WorkflowStatusHalted
			logs = append(logs, fmt.Sprintf("Supervisor: step %q not approved, halting workflow.", step.Name))
			return schema.StateUpdate{
				Status:   &halted,
				Logs:     logs,
				LastNode: &supervisor,
			}, nil
		}
	}

	next := state.Plan.Next(step.Name)
	if next == string(schema.NodeEnd) {
		logs = append(logs, "Supervisor: all steps completed, ending workflow.")
	} else {
		logs = append(logs, fmt.Sprintf("Supervisor: moving from %q to %q", step.Name, next))
	}
	e.publish(ctx, state, schema.EventStepCompleted, map[string]any{"step": step.Name})

	return schema.StateUpdate{
		CurrentStep:    &next,
		CompletedSteps: []string{step.Name},
		Logs:           logs,
		LastNode:       &supervisor,
	}, nil
}

// createPlan invokes the planner capability once and parses its output.
func (e *Engine) createPlan(ctx context.Context, state *schema.WorkflowState) (schema.StateUpdate, error) {
	planner, err := e.deps.Capabilities.Get(capability.PlannerName)
	if err != nil {
		return schema.StateUpdate{}, err
	}

	text, err := planner.Execute(ctx, schema.PlanStep{}, state)
	if err != nil {
		return schema.StateUpdate{}, schema.NewErrorf(schema.ErrCodeExecution,
			"planner failed: %s", err.Error()).WithCause(err)
	}

	plan, err := e.deps.Planner.Parse(ctx, text)
	if err != nil {
		return schema.StateUpdate{}, err
	}

	first := plan.Steps[0].Name
	supervisor := schema.NodeSupervisor
	e.deps.Logger.InfoContext(ctx, "plan created", slog.Int("steps", len(plan.Steps)))
	e.publish(ctx, state, schema.EventPlanCreated, map[string]any{"steps": plan.StepNames()})

	return schema.StateUpdate{
		Plan:        &plan,
		CurrentStep: &first,
		Logs: []string{
			fmt.Sprintf("Supervisor: created plan with %d steps.", len(plan.Steps)),
		},
		LastNode: &supervisor,
	}, nil
}

// askHuman requests approval for a gated step via the decision service.
func (e *Engine) askHuman(ctx context.Context, step schema.PlanStep, level schema.RiskLevel) (schema.DecisionOutcome, error) {
	if e.deps.Gate == nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"human intervention enabled but no decision gate wired").WithStep(step.Name)
	}

	message := fmt.Sprintf("High risk step %q (risk: %s). Approve to proceed.", step.Name, level)
	e.deps.Logger.InfoContext(ctx, "awaiting human decision", slog.String("message", message))

	outcome, err := e.deps.Gate.Decide(ctx, message)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"decision service unavailable: %s", err.Error()).WithStep(step.Name).WithCause(err)
	}
	e.deps.Logger.InfoContext(ctx, "human decision received", slog.String("outcome", string(outcome)))
	return outcome, nil
}

// runCapability executes the current step's capability and records its
// result keyed by the step name.
func (e *Engine) runCapability(ctx context.Context, node schema.Node, state *schema.WorkflowState) (schema.StateUpdate, error) {
	step, ok := state.Plan.Step(state.CurrentStep)
	if !ok {
		return schema.StateUpdate{}, schema.NewErrorf(schema.ErrCodeUnknownNode,
			"node %q dispatched with no matching plan step %q", node, state.CurrentStep)
	}

	c, err := e.deps.Capabilities.Get(string(node))
	if err != nil {
		return schema.StateUpdate{}, err
	}

	ctx = logging.WithStep(ctx, step.Name)
	result, err := c.Execute(ctx, step, state)
	if err != nil {
		return schema.StateUpdate{}, schema.NewErrorf(schema.ErrCodeExecution,
			"capability %q failed: %s", node, err.Error()).WithStep(step.Name).WithCause(err)
	}

	return schema.StateUpdate{
		Results:  map[string]string{step.Name: result},
		Logs:     []string{fmt.Sprintf("%s: completed %q. Result: %s", node, step.Name, result)},
		LastNode: &node,
	}, nil
}

func (e *Engine) publish(ctx context.Context, state *schema.WorkflowState, eventType string, payload map[string]any) {
	if e.deps.Hub == nil {
		return
	}
	event := streaming.Event{
		RunID:   state.RunID,
		Node:    string(state.LastNode),
		Step:    state.CurrentStep,
		Type:    eventType,
		Payload: payload,
	}
	if err := e.deps.Hub.Publish(ctx, event); err != nil {
		e.deps.Logger.WarnContext(ctx, "publish run event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}
