package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepward/stepward/pkg/schema"
)

func policyData() map[string]any {
	return map[string]any{
		"action":       "data_analysis",
		"status":       "in_progress",
		"current_step": "data_analysis",
		"results":      map[string]any{"lit_review": "Found 5 relevant papers"},
		"completed":    []string{"lit_review"},
	}
}

func TestExprEngine_Evaluate(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"action check", `action != "forbidden"`, true},
		{"completed membership", `"lit_review" in completed`, true},
		{"result inspection", `results.lit_review contains "papers"`, true},
		{"arithmetic", `len(completed) < 3`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(ctx, tt.expr, policyData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExprEngine_Errors(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "", policyData())
	require.Error(t, err)

	_, err = e.Evaluate(ctx, "][", policyData())
	require.Error(t, err)
	swErr, ok := err.(*schema.StepwardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, swErr.Code)
}

func TestExprEngine_CachesPrograms(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, `action == "data_analysis"`, policyData())
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, `action == "data_analysis"`, policyData())
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
}

func TestCELEngine_Evaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"action check", `action != "forbidden"`, true},
		{"completed membership", `"lit_review" in completed`, true},
		{"size", `size(completed) == 1`, true},
		{"status", `status == "in_progress"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(ctx, tt.expr, policyData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELEngine_MissingKeysDefaulted(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	got, err := e.Evaluate(context.Background(), `action == "" && size(completed) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestCELEngine_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `undeclared_var > 1`, policyData())
	require.Error(t, err)
	swErr, ok := err.(*schema.StepwardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, swErr.Code)
}

func TestGoJQEngine_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	doc := map[string]any{
		"steps": []any{
			map[string]any{"name": "lit_review", "capability": "literature_review"},
			map[string]any{"name": "writing", "capability": "writing"},
		},
	}

	got, err := e.Evaluate(ctx, ".steps | length", doc)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got)

	// Multiple outputs are collected into a slice.
	got, err = e.Evaluate(ctx, ".steps[].name", doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"lit_review", "writing"}, got)

	// No output yields nil.
	got, err = e.Evaluate(ctx, ".steps[] | select(.name == \"missing\")", doc)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGoJQEngine_ParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), ".steps[", map[string]any{})
	require.Error(t, err)
	swErr, ok := err.(*schema.StepwardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, swErr.Code)
}

func TestGoJQEngine_EnvBlocked(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Evaluate(context.Background(), `env.HOME`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, got)
}
