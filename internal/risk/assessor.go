// Package risk grades plan steps before execution. Assessment is a pure
// function of the step and the results accumulated so far.
package risk

import (
	"strings"

	"github.com/stepward/stepward/pkg/schema"
)

// marker escalates the assessed risk when its substring appears in the most
// recent result text. Matching is case-sensitive; first match wins.
type marker struct {
	substr string
	level  schema.RiskLevel
}

// Checked in order: conflict > inconsistency > revision.
var markers = []marker{
	{"conflicting", schema.RiskHigh},
	{"inconsistencies", schema.RiskMedium},
	{"revisions", schema.RiskHigh},
}

// Assess returns the effective risk level for the step. The most recently
// produced result is scanned for escalation markers; absent any marker the
// step's statically declared level stands.
func Assess(step schema.PlanStep, state *schema.WorkflowState) schema.RiskLevel {
	last := state.LastResult()
	for _, m := range markers {
		if strings.Contains(last, m.substr) {
			return m.level
		}
	}
	return step.Risk
}
