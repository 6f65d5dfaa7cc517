// Package planning turns planner capability output into a typed Plan. The
// planner returns opaque text; the parser locates the embedded JSON
// document, validates it against the plan schema, and projects the step
// list with jq.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stepward/stepward/internal/expressions"
	"github.com/stepward/stepward/pkg/schema"
)

// planSchemaJSON is the JSON Schema for plan documents.
// Embedded as a constant to avoid filesystem dependencies.
const planSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepward.dev/schemas/plan.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["name", "capability", "risk_level"],
      "properties": {
        "name": {
          "type": "string",
          "minLength": 1
        },
        "description": { "type": "string" },
        "capability": {
          "type": "string",
          "minLength": 1
        },
        "risk_level": {
          "type": "string",
          "enum": ["low", "medium", "high", "critical"]
        }
      },
      "additionalProperties": false
    }
  }
}`

// stepProjection pulls the step fields out of the validated document in
// declaration order.
const stepProjection = `[.steps[] | {name, description, capability, risk_level}]`

// Parser validates and extracts plans from planner output.
// Safe for concurrent use.
type Parser struct {
	planSchema *jsonschema.Schema
	jq         *expressions.GoJQEngine
}

// NewParser creates a Parser with the plan schema pre-compiled.
func NewParser() (*Parser, error) {
	c := jsonschema.NewCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal plan schema: %w", err)
	}
	if err := c.AddResource("https://stepward.dev/schemas/plan.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add plan schema resource: %w", err)
	}

	compiled, err := c.Compile("https://stepward.dev/schemas/plan.json")
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}

	return &Parser{
		planSchema: compiled,
		jq:         expressions.NewGoJQEngine(),
	}, nil
}

// Parse extracts the plan from planner output text. The text may carry
// prose around the JSON document; everything from the first "{" to the
// last "}" is treated as the document.
func (p *Parser) Parse(ctx context.Context, text string) (schema.Plan, error) {
	doc, err := extractDocument(text)
	if err != nil {
		return schema.Plan{}, err
	}

	if err := p.planSchema.Validate(doc); err != nil {
		return schema.Plan{}, schema.NewErrorf(schema.ErrCodeValidation,
			"plan document rejected by schema: %s", err.Error()).WithCause(err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return schema.Plan{}, schema.NewError(schema.ErrCodeValidation, "plan document is not an object")
	}

	projected, err := p.jq.Evaluate(ctx, stepProjection, obj)
	if err != nil {
		return schema.Plan{}, err
	}

	items, ok := projected.([]any)
	if !ok {
		return schema.Plan{}, schema.NewError(schema.ErrCodeValidation, "plan projection did not produce a list")
	}

	plan := schema.Plan{Steps: make([]schema.PlanStep, 0, len(items))}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		step, err := toStep(item)
		if err != nil {
			return schema.Plan{}, err
		}
		if seen[step.Name] {
			return schema.Plan{}, schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate step name %q in plan", step.Name).WithStep(step.Name)
		}
		seen[step.Name] = true
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

// extractDocument isolates and decodes the JSON object embedded in the text.
func extractDocument(text string) (any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, schema.NewError(schema.ErrCodeValidation, "planner output contains no JSON document")
	}

	var doc any
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"planner output is not valid JSON: %s", err.Error()).WithCause(err)
	}
	return doc, nil
}

// toStep maps one projected item to a typed PlanStep. The schema has
// already vouched for field presence and types.
func toStep(item any) (schema.PlanStep, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return schema.PlanStep{}, schema.NewError(schema.ErrCodeValidation, "plan step is not an object")
	}

	name, _ := m["name"].(string)
	description, _ := m["description"].(string)
	capability, _ := m["capability"].(string)
	riskStr, _ := m["risk_level"].(string)

	risk, err := schema.ParseRiskLevel(riskStr)
	if err != nil {
		return schema.PlanStep{}, err
	}

	return schema.PlanStep{
		Name:        name,
		Description: description,
		Capability:  capability,
		Risk:        risk,
	}, nil
}
