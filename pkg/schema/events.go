package schema

// Event type constants for the progress stream.
const (
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowHalted    = "workflow_halted"

	EventPlanCreated   = "plan_created"
	EventNodeExecuted  = "node_executed"
	EventStepCompleted = "step_completed"

	EventProtocolViolation = "protocol_violation"

	EventDecisionRequested = "decision_requested"
	EventDecisionResolved  = "decision_resolved"
	EventDecisionTimedOut  = "decision_timed_out"
	EventDecisionExpired   = "decision_expired"
)
