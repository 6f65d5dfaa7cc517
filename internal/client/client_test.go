package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepward/stepward/internal/decision"
	"github.com/stepward/stepward/internal/server"
	"github.com/stepward/stepward/pkg/schema"
)

// newTestClient wires a Client against a real decision service instance.
func newTestClient(t *testing.T, timeout time.Duration) (*Client, *decision.Broker) {
	t.Helper()
	broker := decision.NewBroker(decision.Config{
		Timeout:      timeout,
		PollInterval: 5 * time.Millisecond,
	}, nil, nil)

	srv := server.NewServer(server.Deps{Broker: broker})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := New(Config{BaseURL: ts.URL + "/"})
	require.NoError(t, err)
	return c, broker
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestDecideApproved(t *testing.T) {
	c, broker := newTestClient(t, time.Second)
	ctx := context.Background()

	done := make(chan schema.DecisionOutcome, 1)
	go func() {
		outcome, err := c.Decide(ctx, "Approve data_analysis?")
		if err != nil {
			done <- ""
			return
		}
		done <- outcome
	}()

	// Approve as soon as the request lands.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pending := broker.ListPending(); len(pending) > 0 {
			require.NoError(t, broker.Resolve(ctx, pending[0].ID, true))
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case outcome := <-done:
		assert.Equal(t, schema.OutcomeApproved, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("Decide did not return")
	}
}

func TestDecideRejected(t *testing.T) {
	c, broker := newTestClient(t, time.Second)
	ctx := context.Background()

	done := make(chan schema.DecisionOutcome, 1)
	go func() {
		outcome, _ := c.Decide(ctx, "Approve risky step?")
		done <- outcome
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pending := broker.ListPending(); len(pending) > 0 {
			require.NoError(t, broker.Resolve(ctx, pending[0].ID, false))
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case outcome := <-done:
		assert.Equal(t, schema.OutcomeRejected, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("Decide did not return")
	}
}

func TestDecideTimedOut(t *testing.T) {
	c, _ := newTestClient(t, 30*time.Millisecond)

	outcome, err := c.Decide(context.Background(), "Nobody is listening")
	require.NoError(t, err, "timeout is a regular outcome, not an error")
	assert.Equal(t, schema.OutcomeTimedOut, outcome)
}

func TestDecideServiceUnreachable(t *testing.T) {
	c, err := New(Config{
		BaseURL:    "http://127.0.0.1:1",
		HTTPClient: &http.Client{Timeout: 100 * time.Millisecond},
	})
	require.NoError(t, err)

	_, err = c.Decide(context.Background(), "anyone there?")
	require.Error(t, err)

	var serr *schema.StepwardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeExecution, serr.Code)
}

func TestListPendingAndSubmit(t *testing.T) {
	c, broker := newTestClient(t, time.Second)
	ctx := context.Background()

	first := broker.Request(ctx, "step one")
	broker.Request(ctx, "step two")

	pending, err := c.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)
	assert.Equal(t, "step one", pending[0].Message)

	status, err := c.Submit(ctx, first, true)
	require.NoError(t, err)
	assert.Contains(t, status, first)

	pending, err = c.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmitUnknownID(t *testing.T) {
	c, _ := newTestClient(t, time.Second)

	_, err := c.Submit(context.Background(), "no-such-id", true)
	require.Error(t, err)

	var serr *schema.StepwardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestUnexpectedStatusCarriesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "broker exploded"}`))
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = c.ListPending(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "broker exploded")
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}
