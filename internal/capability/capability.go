// Package capability holds the pluggable step executors the engine
// dispatches to. A capability receives the step and the accumulated run
// state and returns opaque result text; its internal behavior is not part
// of the engine's contract.
package capability

import (
	"context"

	"github.com/stepward/stepward/pkg/schema"
)

// Capability is an executable unit behind a workflow node.
type Capability interface {
	Name() string
	Description() string
	Execute(ctx context.Context, step schema.PlanStep, state *schema.WorkflowState) (string, error)
}

// Info is a summary of a registered capability for listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Func adapts a plain function into a Capability.
type Func struct {
	CapName string
	Desc    string
	Fn      func(ctx context.Context, step schema.PlanStep, state *schema.WorkflowState) (string, error)
}

func (f Func) Name() string        { return f.CapName }
func (f Func) Description() string { return f.Desc }

func (f Func) Execute(ctx context.Context, step schema.PlanStep, state *schema.WorkflowState) (string, error) {
	return f.Fn(ctx, step, state)
}
