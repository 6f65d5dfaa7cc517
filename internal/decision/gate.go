package decision

import (
	"context"

	"github.com/stepward/stepward/internal/logging"
	"github.com/stepward/stepward/pkg/schema"
)

// Gate adapts the Broker to the engine's approval interface for
// single-process deployments: request a decision, then block on it.
type Gate struct {
	Broker *Broker
}

// Decide submits a human-approval request and waits for its resolution.
func (g Gate) Decide(ctx context.Context, message string) (schema.DecisionOutcome, error) {
	id := g.Broker.Request(ctx, message)
	ctx = logging.WithDecisionID(ctx, id)
	return g.Broker.Await(ctx, id), nil
}
