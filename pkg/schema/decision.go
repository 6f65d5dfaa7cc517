package schema

import "time"

// DecisionOutcome is the resolution state of a human-approval request.
// Rejected and TimedOut are distinct outcomes end-to-end: Rejected means the
// decision left the pending set without an approval, TimedOut means the wait
// bound elapsed first.
type DecisionOutcome string

const (
	OutcomePending  DecisionOutcome = "pending"
	OutcomeApproved DecisionOutcome = "approved"
	OutcomeRejected DecisionOutcome = "rejected"
	OutcomeTimedOut DecisionOutcome = "timed_out"
)

// DecisionRecord correlates a human-approval request with its eventual
// resolution. The ID is an opaque token; the broker owns the record until it
// is resolved or expires.
type DecisionRecord struct {
	ID        string          `json:"id"`
	Message   string          `json:"message"`
	Outcome   DecisionOutcome `json:"outcome"`
	CreatedAt time.Time       `json:"created_at"`
}
