package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel grades how dangerous a plan step is. Levels form a total order;
// threshold checks compare with >=.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

// ParseRiskLevel converts a string level ("low", "medium", "high", "critical")
// into a RiskLevel. Matching is case-insensitive.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(s) {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "critical":
		return RiskCritical, nil
	default:
		return 0, NewErrorf(ErrCodeValidation, "unknown risk level %q", s)
	}
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// PlanStep is a single unit of the research plan. Immutable once the plan
// is published; only the completed marking in WorkflowState evolves.
type PlanStep struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Capability  string    `json:"capability"`
	Risk        RiskLevel `json:"risk_level"`
}

// Plan is an ordered sequence of steps with unique names.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// Empty reports whether the plan has no steps.
func (p Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Step returns the step with the given name, or false if absent.
func (p Plan) Step(name string) (PlanStep, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return PlanStep{}, false
}

// Next returns the name of the step following the named one, or NodeEnd's
// name when the named step is last or absent.
func (p Plan) Next(name string) string {
	for i, s := range p.Steps {
		if s.Name == name && i+1 < len(p.Steps) {
			return p.Steps[i+1].Name
		}
	}
	return string(NodeEnd)
}

// StepNames returns the names of all steps in plan order.
func (p Plan) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

// WorkflowStatus represents the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusHalted     WorkflowStatus = "halted"
)

// Node identifies one executable unit in the workflow state machine: the
// supervisor, a capability executor, or the terminal node.
type Node string

const (
	NodeSupervisor Node = "supervisor"
	NodeEnd        Node = "end"
)

// InterventionConfig controls the human-approval gate. Immutable for the
// lifetime of a run.
type InterventionConfig struct {
	Enabled       bool      `json:"enabled"`
	RiskThreshold RiskLevel `json:"risk_threshold"`
}

// WorkflowState is the canonical state of a single workflow run. It has a
// single owner (the engine's driving loop) and is mutated only between
// suspension points, never concurrently.
type WorkflowState struct {
	RunID          string             `json:"run_id"`
	Topic          string             `json:"topic"`
	Status         WorkflowStatus     `json:"status"`
	CurrentStep    string             `json:"current_step"`
	Plan           Plan               `json:"plan"`
	Results        map[string]string  `json:"results"`
	CompletedSteps []string           `json:"completed_steps"`
	Logs           []string           `json:"logs"`
	LastNode       Node               `json:"last_node"`
	Intervention   InterventionConfig `json:"intervention"`
}

// NewWorkflowState creates the initial state for a run.
func NewWorkflowState(runID, topic string, cfg InterventionConfig) *WorkflowState {
	return &WorkflowState{
		RunID:        runID,
		Topic:        topic,
		Status:       WorkflowStatusInProgress,
		CurrentStep:  string(NodeSupervisor),
		Results:      make(map[string]string),
		Logs:         []string{"Workflow started."},
		LastNode:     NodeSupervisor,
		Intervention: cfg,
	}
}

// Completed reports whether the named step has been marked complete.
func (s *WorkflowState) Completed(name string) bool {
	for _, done := range s.CompletedSteps {
		if done == name {
			return true
		}
	}
	return false
}

// AllStepsCompleted reports whether every plan step has been marked complete.
// False for an empty plan: nothing has run yet.
func (s *WorkflowState) AllStepsCompleted() bool {
	if s.Plan.Empty() {
		return false
	}
	for _, step := range s.Plan.Steps {
		if !s.Completed(step.Name) {
			return false
		}
	}
	return true
}

// LastResult returns the most recently produced result text: the current
// step's own result when its capability has already run, otherwise the
// result of the last completed step. "" when nothing has run yet.
func (s *WorkflowState) LastResult() string {
	if r, ok := s.Results[s.CurrentStep]; ok {
		return r
	}
	if len(s.CompletedSteps) == 0 {
		return ""
	}
	return s.Results[s.CompletedSteps[len(s.CompletedSteps)-1]]
}

// StateUpdate is a partial update returned by a node execution. Each node
// names exactly the fields it changes; the engine applies the update
// field-by-field to the canonical state. Results, CompletedSteps and Logs
// are merged/appended, the pointer fields replace.
type StateUpdate struct {
	Status         *WorkflowStatus
	CurrentStep    *string
	Plan           *Plan
	Results        map[string]string
	CompletedSteps []string
	Logs           []string
	LastNode       *Node
}

// Apply merges the update into the state.
func (s *WorkflowState) Apply(u StateUpdate) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.CurrentStep != nil {
		s.CurrentStep = *u.CurrentStep
	}
	if u.Plan != nil {
		s.Plan = *u.Plan
	}
	for k, v := range u.Results {
		s.Results[k] = v
	}
	s.CompletedSteps = append(s.CompletedSteps, u.CompletedSteps...)
	s.Logs = append(s.Logs, u.Logs...)
	if u.LastNode != nil {
		s.LastNode = *u.LastNode
	}
}
