package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepward/stepward/pkg/schema"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryHub_PublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, Event{RunID: "run-1", Type: schema.EventNodeExecuted}))

	e := recvEvent(t, ch)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, schema.EventNodeExecuted, e.Type)
}

func TestMemoryHub_FilterByRun(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{RunID: "run-2"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, Event{RunID: "run-1", Type: schema.EventNodeExecuted}))
	require.NoError(t, hub.Publish(ctx, Event{RunID: "run-2", Type: schema.EventStepCompleted}))

	e := recvEvent(t, ch)
	assert.Equal(t, "run-2", e.RunID)
	assert.Empty(t, ch)
}

func TestMemoryHub_FilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{EventTypes: []string{schema.EventDecisionResolved}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, Event{DecisionID: "d-1", Type: schema.EventDecisionRequested}))
	require.NoError(t, hub.Publish(ctx, Event{DecisionID: "d-1", Type: schema.EventDecisionResolved}))

	e := recvEvent(t, ch)
	assert.Equal(t, schema.EventDecisionResolved, e.Type)
}

func TestMemoryHub_CancelStopsDelivery(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	cancel()

	require.NoError(t, hub.Publish(ctx, Event{Type: schema.EventNodeExecuted}))
	assert.Empty(t, ch)
}
