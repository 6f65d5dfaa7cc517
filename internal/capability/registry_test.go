package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepward/stepward/pkg/schema"
)

func TestRegistry_RegisterGet(t *testing.T) {
	r := NewRegistry()

	c := Func{CapName: "writing", Desc: "writes", Fn: func(context.Context, schema.PlanStep, *schema.WorkflowState) (string, error) {
		return "draft", nil
	}}
	require.NoError(t, r.Register(c))
	assert.True(t, r.Has("writing"))

	got, err := r.Get("writing")
	require.NoError(t, err)
	assert.Equal(t, "writing", got.Name())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("missing")
	require.Error(t, err)
	swErr, ok := err.(*schema.StepwardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeUnknownNode, swErr.Code)
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry()
	c := Func{CapName: "x", Fn: func(context.Context, schema.PlanStep, *schema.WorkflowState) (string, error) { return "", nil }}
	require.NoError(t, r.Register(c))

	err := r.Register(c)
	require.Error(t, err)
	swErr, ok := err.(*schema.StepwardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, swErr.Code)
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(nil))
	require.Error(t, r.Register(Func{CapName: ""}))
}

func TestDefaultRegistry(t *testing.T) {
	r, err := DefaultRegistry()
	require.NoError(t, err)

	for _, name := range []string{PlannerName, "literature_review", "data_analysis", "writing", "peer_review"} {
		assert.True(t, r.Has(name), name)
	}

	infos := r.List()
	require.Len(t, infos, 5)
	// Sorted by name.
	assert.Equal(t, "data_analysis", infos[0].Name)
}

func TestBuiltins_PeerReviewConsumesWriting(t *testing.T) {
	r, err := DefaultRegistry()
	require.NoError(t, err)

	state := schema.NewWorkflowState("run-1", "ai and jobs", schema.InterventionConfig{})
	state.Results["writing"] = "Drafted a section on findings"

	reviewer, err := r.Get("peer_review")
	require.NoError(t, err)

	out, err := reviewer.Execute(context.Background(), schema.PlanStep{Name: "peer_review"}, state)
	require.NoError(t, err)
	assert.Equal(t, "Peer review complete. Suggestions: Drafted a section on findings", out)
}

func TestBuiltins_PlannerEmitsJSONPlan(t *testing.T) {
	r, err := DefaultRegistry()
	require.NoError(t, err)

	planner, err := r.Get(PlannerName)
	require.NoError(t, err)

	state := schema.NewWorkflowState("run-1", "impact of AI on job markets", schema.InterventionConfig{})
	out, err := planner.Execute(context.Background(), schema.PlanStep{}, state)
	require.NoError(t, err)
	assert.Contains(t, out, `"literature_review"`)
	assert.Contains(t, out, "impact of AI on job markets")
}
