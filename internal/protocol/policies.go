package protocol

import (
	"context"
	"strings"

	"github.com/stepward/stepward/internal/expressions"
	"github.com/stepward/stepward/pkg/schema"
)

// SafetyPolicy vetoes actions on a block list. An empty list passes
// everything.
type SafetyPolicy struct {
	blocked []string
}

// NewSafetyPolicy creates a SafetyPolicy blocking the given action names.
func NewSafetyPolicy(blocked []string) *SafetyPolicy {
	return &SafetyPolicy{blocked: blocked}
}

func (p *SafetyPolicy) Name() string { return "safety" }

func (p *SafetyPolicy) Check(_ context.Context, action string, _ *schema.WorkflowState) bool {
	for _, b := range p.blocked {
		if action == b {
			return false
		}
	}
	return true
}

// EthicalPolicy vetoes a step when any accumulated result contains a flagged
// phrase. An empty phrase list passes everything.
type EthicalPolicy struct {
	flagged []string
}

// NewEthicalPolicy creates an EthicalPolicy with the given flagged phrases.
func NewEthicalPolicy(flagged []string) *EthicalPolicy {
	return &EthicalPolicy{flagged: flagged}
}

func (p *EthicalPolicy) Name() string { return "ethical" }

func (p *EthicalPolicy) Check(_ context.Context, _ string, state *schema.WorkflowState) bool {
	if state == nil {
		return true
	}
	for _, text := range state.Results {
		for _, phrase := range p.flagged {
			if strings.Contains(text, phrase) {
				return false
			}
		}
	}
	return true
}

// RulePolicy evaluates a configured expression (Expr or CEL) as a policy.
// The rule must produce a boolean; any evaluation error or non-boolean
// result fails closed.
type RulePolicy struct {
	name   string
	rule   string
	engine expressions.Engine
}

// NewRulePolicy creates a policy from an expression rule.
func NewRulePolicy(name, rule string, engine expressions.Engine) (*RulePolicy, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "rule policy name is empty")
	}
	if rule == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule policy %q has empty rule", name)
	}
	if engine == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule policy %q has no engine", name)
	}
	return &RulePolicy{name: name, rule: rule, engine: engine}, nil
}

func (p *RulePolicy) Name() string { return p.name }

func (p *RulePolicy) Check(ctx context.Context, action string, state *schema.WorkflowState) bool {
	out, err := p.engine.Evaluate(ctx, p.rule, ruleData(action, state))
	if err != nil {
		return false
	}
	pass, ok := out.(bool)
	return ok && pass
}

// ruleData flattens the run state into the expression environment shared by
// the Expr and CEL engines.
func ruleData(action string, state *schema.WorkflowState) map[string]any {
	data := map[string]any{
		"action":       action,
		"status":       "",
		"current_step": "",
		"results":      map[string]any{},
		"completed":    []string{},
	}
	if state == nil {
		return data
	}
	results := make(map[string]any, len(state.Results))
	for k, v := range state.Results {
		results[k] = v
	}
	data["status"] = string(state.Status)
	data["current_step"] = state.CurrentStep
	data["results"] = results
	data["completed"] = append([]string(nil), state.CompletedSteps...)
	return data
}
