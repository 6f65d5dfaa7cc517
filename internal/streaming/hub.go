package streaming

import "context"

// Event is a real-time progress event emitted during a workflow run or by
// the decision broker.
type Event struct {
	RunID      string `json:"run_id,omitempty"`
	Node       string `json:"node,omitempty"`
	Step       string `json:"step,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
	Type       string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	RunID      string   `json:"run_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run and decision events.
type EventHub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
