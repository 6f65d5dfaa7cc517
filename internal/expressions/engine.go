package expressions

import "context"

// Engine evaluates expressions over workflow run data.
// Three implementations: Expr and CEL back protocol policy rules,
// GoJQ projects planner output into the typed plan.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
