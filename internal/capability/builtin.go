package capability

import (
	"context"
	"fmt"

	"github.com/stepward/stepward/pkg/schema"
)

// PlannerName is the capability the supervisor invokes once to produce the
// plan. Its output is opaque text containing a JSON plan document.
const PlannerName = "planner"

// defaultPlanJSON is the canonical research plan emitted by the built-in
// planner. The revision step reuses the writing capability.
const defaultPlanJSON = `{
  "steps": [
    {"name": "literature_review", "description": "Conduct comprehensive literature review", "capability": "literature_review", "risk_level": "medium"},
    {"name": "data_analysis", "description": "Analyze collected data", "capability": "data_analysis", "risk_level": "high"},
    {"name": "writing", "description": "Write initial draft of findings", "capability": "writing", "risk_level": "medium"},
    {"name": "peer_review", "description": "Conduct peer review of the draft", "capability": "peer_review", "risk_level": "high"},
    {"name": "revision", "description": "Revise based on peer review feedback", "capability": "writing", "risk_level": "medium"}
  ]
}`

// Builtins returns the default capability set: the planner plus the four
// research executors.
func Builtins() []Capability {
	return []Capability{
		Func{
			CapName: PlannerName,
			Desc:    "Produce a structured research plan for the task",
			Fn: func(_ context.Context, _ schema.PlanStep, state *schema.WorkflowState) (string, error) {
				return fmt.Sprintf("Structured plan for %q:\n%s", state.Topic, defaultPlanJSON), nil
			},
		},
		Func{
			CapName: "literature_review",
			Desc:    "Search academic databases for relevant literature",
			Fn: func(_ context.Context, step schema.PlanStep, _ *schema.WorkflowState) (string, error) {
				return fmt.Sprintf("Found 5 relevant papers about %s", step.Description), nil
			},
		},
		Func{
			CapName: "data_analysis",
			Desc:    "Perform data analysis on the given dataset",
			Fn: func(_ context.Context, step schema.PlanStep, _ *schema.WorkflowState) (string, error) {
				return fmt.Sprintf("Analysis complete. Key findings: %s", step.Description), nil
			},
		},
		Func{
			CapName: "writing",
			Desc:    "Write a section of the research paper",
			Fn: func(_ context.Context, step schema.PlanStep, _ *schema.WorkflowState) (string, error) {
				return fmt.Sprintf("Drafted a section on %s", step.Description), nil
			},
		},
		Func{
			CapName: "peer_review",
			Desc:    "Conduct peer review of the draft",
			Fn: func(_ context.Context, _ schema.PlanStep, state *schema.WorkflowState) (string, error) {
				// Review consumes the writing result, not its own description.
				draft := state.Results["writing"]
				return fmt.Sprintf("Peer review complete. Suggestions: %s", draft), nil
			},
		},
	}
}

// DefaultRegistry returns a registry pre-loaded with the builtins.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, c := range Builtins() {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}
