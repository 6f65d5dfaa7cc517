package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepward/stepward/internal/streaming"
	"github.com/stepward/stepward/pkg/schema"
)

// fast poll/timeout settings so await tests finish in milliseconds.
func testBroker(t *testing.T, timeout time.Duration) *Broker {
	t.Helper()
	return NewBroker(Config{
		Timeout:      timeout,
		PollInterval: 5 * time.Millisecond,
	}, nil, nil)
}

func TestBroker_RequestVisibleInPending(t *testing.T) {
	b := testBroker(t, time.Second)
	ctx := context.Background()

	id1 := b.Request(ctx, "approve data_analysis")
	id2 := b.Request(ctx, "approve peer_review")
	require.NotEqual(t, id1, id2)

	pending := b.ListPending()
	require.Len(t, pending, 2)
	// Insertion order preserved.
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, "approve data_analysis", pending[0].Message)
	assert.Equal(t, schema.OutcomePending, pending[0].Outcome)
	assert.Equal(t, id2, pending[1].ID)
}

func TestBroker_ResolveApproved(t *testing.T) {
	b := testBroker(t, time.Second)
	ctx := context.Background()

	id := b.Request(ctx, "approve writing")
	require.NoError(t, b.Resolve(ctx, id, true))

	assert.Empty(t, b.ListPending())
	assert.Equal(t, schema.OutcomeApproved, b.Await(ctx, id))
}

func TestBroker_ResolveRejectedDistinctFromTimeout(t *testing.T) {
	b := testBroker(t, time.Second)
	ctx := context.Background()

	id := b.Request(ctx, "approve writing")
	require.NoError(t, b.Resolve(ctx, id, false))

	// Explicit rejection reads as Rejected, not TimedOut.
	assert.Equal(t, schema.OutcomeRejected, b.Await(ctx, id))
}

func TestBroker_ResolveUnknownID(t *testing.T) {
	b := testBroker(t, time.Second)
	ctx := context.Background()

	keep := b.Request(ctx, "keep me")

	err := b.Resolve(ctx, "never-requested", true)
	require.Error(t, err)
	swErr, ok := err.(*schema.StepwardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, swErr.Code)

	// Other pending ids unaffected.
	pending := b.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, keep, pending[0].ID)
}

func TestBroker_ResolveTwice(t *testing.T) {
	b := testBroker(t, time.Second)
	ctx := context.Background()

	id := b.Request(ctx, "approve once")
	require.NoError(t, b.Resolve(ctx, id, true))

	err := b.Resolve(ctx, id, true)
	require.Error(t, err)
	swErr, ok := err.(*schema.StepwardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, swErr.Code)
}

func TestBroker_AwaitObservesResolveWithinPollInterval(t *testing.T) {
	b := testBroker(t, time.Second)
	ctx := context.Background()

	id := b.Request(ctx, "approve data_analysis")

	done := make(chan schema.DecisionOutcome, 1)
	go func() {
		done <- b.Await(ctx, id)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Resolve(ctx, id, true))

	select {
	case outcome := <-done:
		assert.Equal(t, schema.OutcomeApproved, outcome)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("await did not observe resolution within the poll interval")
	}
}

func TestBroker_AwaitTimesOutAndRemovesPending(t *testing.T) {
	b := testBroker(t, 30*time.Millisecond)
	ctx := context.Background()

	id := b.Request(ctx, "nobody answers")

	outcome := b.Await(ctx, id)
	assert.Equal(t, schema.OutcomeTimedOut, outcome)

	// Immediately absent from pending; it never reappears.
	assert.Empty(t, b.ListPending())

	// A late resolve is a client error.
	err := b.Resolve(ctx, id, true)
	require.Error(t, err)
}

func TestBroker_AwaitContextCancelledReadsAsTimeout(t *testing.T) {
	b := testBroker(t, time.Minute)

	id := b.Request(context.Background(), "cancelled wait")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, schema.OutcomeTimedOut, b.Await(ctx, id))
	assert.Empty(t, b.ListPending())
}

func TestBroker_ResolveWinsRaceAtExpiry(t *testing.T) {
	b := testBroker(t, 20*time.Millisecond)
	ctx := context.Background()

	id := b.Request(ctx, "race")
	// Resolve strictly before expiry is observed.
	require.NoError(t, b.Resolve(ctx, id, true))

	assert.Equal(t, schema.OutcomeApproved, b.Await(ctx, id))
}

func TestBroker_ExpireStale(t *testing.T) {
	hub := streaming.NewMemoryHub()
	b := NewBroker(Config{Timeout: time.Second, PollInterval: 5 * time.Millisecond}, hub, nil)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, streaming.Filter{EventTypes: []string{schema.EventDecisionExpired}})
	require.NoError(t, err)
	defer cancel()

	old := b.Request(ctx, "stale")
	fresh := b.Request(ctx, "fresh")

	// Age the first record artificially.
	b.mu.Lock()
	rec := b.pending[old]
	rec.createdAt = rec.createdAt.Add(-time.Hour)
	b.pending[old] = rec
	b.mu.Unlock()

	expired := b.ExpireStale(ctx, time.Minute)
	assert.Equal(t, []string{old}, expired)

	pending := b.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, fresh, pending[0].ID)

	select {
	case e := <-ch:
		assert.Equal(t, old, e.DecisionID)
	case <-time.After(time.Second):
		t.Fatal("expected expiry event")
	}
}

func TestJanitor_RejectsBadSchedule(t *testing.T) {
	b := testBroker(t, time.Second)
	_, err := NewJanitor(b, "not a cron spec", nil)
	require.Error(t, err)
}

func TestJanitor_StartStop(t *testing.T) {
	b := testBroker(t, time.Second)
	j, err := NewJanitor(b, "* * * * *", nil)
	require.NoError(t, err)

	require.NoError(t, j.Start())
	require.NoError(t, j.Start()) // idempotent
	j.Stop()
	j.Stop() // idempotent
}
