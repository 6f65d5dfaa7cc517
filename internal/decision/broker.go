package decision

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepward/stepward/internal/streaming"
	"github.com/stepward/stepward/pkg/schema"
)

const (
	// DefaultTimeout is the wait bound for a single decision: 300 poll
	// cycles at one-second granularity.
	DefaultTimeout = 300 * time.Second

	// DefaultPollInterval bounds the staleness of an observed resolution.
	DefaultPollInterval = time.Second
)

// Config tunes the broker's wait behavior.
type Config struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// record is a pending decision awaiting resolution.
type record struct {
	message   string
	createdAt time.Time
}

// Broker owns the decision state: the set of requests awaiting a human
// response and the set already approved. An id is a member of at most one of
// the two sets at any time; once removed from pending it is never re-added.
// All methods are safe for concurrent use; the single mutex is never held
// across a poll wait.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]record
	order    []string        // pending ids in insertion order
	approved map[string]bool // approved-only; rejection leaves no trace

	timeout  time.Duration
	interval time.Duration
	hub      streaming.EventHub
	logger   *slog.Logger
}

// NewBroker creates a Broker. hub may be nil to disable event publishing.
func NewBroker(cfg Config, hub streaming.EventHub, logger *slog.Logger) *Broker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		pending:  make(map[string]record),
		approved: make(map[string]bool),
		timeout:  cfg.Timeout,
		interval: cfg.PollInterval,
		hub:      hub,
		logger:   logger,
	}
}

// Request allocates a fresh correlation id and inserts a pending record.
// It returns immediately; the decision becomes visible to ListPending.
func (b *Broker) Request(ctx context.Context, message string) string {
	id := uuid.NewString()

	b.mu.Lock()
	b.pending[id] = record{message: message, createdAt: time.Now().UTC()}
	b.order = append(b.order, id)
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "decision requested",
		slog.String("decision_id", id),
		slog.String("message", message),
	)
	b.publish(ctx, streaming.Event{
		DecisionID: id,
		Type:       schema.EventDecisionRequested,
		Payload:    map[string]any{"message": message},
	})
	return id
}

// ListPending returns a snapshot of all pending records in insertion order.
func (b *Broker) ListPending() []schema.DecisionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]schema.DecisionRecord, 0, len(b.order))
	for _, id := range b.order {
		rec, ok := b.pending[id]
		if !ok {
			continue
		}
		out = append(out, schema.DecisionRecord{
			ID:        id,
			Message:   rec.message,
			Outcome:   schema.OutcomePending,
			CreatedAt: rec.createdAt,
		})
	}
	return out
}

// Resolve removes the id from pending and, only if approved, records it in
// the approved set. A rejected decision is simply dropped: absence without
// an approval reads as rejection. Resolving an unknown or already-resolved
// id fails with NOT_FOUND.
func (b *Broker) Resolve(ctx context.Context, id string, approved bool) error {
	b.mu.Lock()
	if _, ok := b.pending[id]; !ok {
		b.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "decision %q not pending", id)
	}
	b.remove(id)
	if approved {
		b.approved[id] = true
	}
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "decision resolved",
		slog.String("decision_id", id),
		slog.Bool("approved", approved),
	)
	b.publish(ctx, streaming.Event{
		DecisionID: id,
		Type:       schema.EventDecisionResolved,
		Payload:    map[string]any{"approved": approved},
	})
	return nil
}

// Await blocks until the id is resolved or the wait bound elapses, polling
// the decision state at the configured interval. On timeout (or context
// cancellation) the id is removed from pending if still present and
// OutcomeTimedOut is returned. A resolution observed at expiry wins over the
// timeout. Await never fails: timeout and rejection are regular outcomes.
func (b *Broker) Await(ctx context.Context, id string) schema.DecisionOutcome {
	deadline := time.Now().Add(b.timeout)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if outcome, done := b.check(id); done {
			return outcome
		}
		select {
		case <-ctx.Done():
			return b.expire(ctx, id)
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				return b.expire(ctx, id)
			}
		}
	}
}

// check inspects the two sets once. done is false while the id is still
// pending. The approved marker is consumed on observation: each decision
// has exactly one waiter.
func (b *Broker) check(id string) (schema.DecisionOutcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[id]; ok {
		return schema.OutcomePending, false
	}
	if b.approved[id] {
		delete(b.approved, id)
		return schema.OutcomeApproved, true
	}
	return schema.OutcomeRejected, true
}

// expire handles wait-bound expiry. A resolve that landed strictly before
// the expiry is observed here and wins; otherwise the pending record is
// removed and the outcome is TimedOut.
func (b *Broker) expire(ctx context.Context, id string) schema.DecisionOutcome {
	b.mu.Lock()
	if _, ok := b.pending[id]; !ok {
		// Resolved while the timer fired: resolve wins.
		approved := b.approved[id]
		delete(b.approved, id)
		b.mu.Unlock()
		if approved {
			return schema.OutcomeApproved
		}
		return schema.OutcomeRejected
	}
	b.remove(id)
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "decision timed out", slog.String("decision_id", id))
	b.publish(ctx, streaming.Event{
		DecisionID: id,
		Type:       schema.EventDecisionTimedOut,
	})
	return schema.OutcomeTimedOut
}

// ExpireStale removes pending records older than olderThan and returns the
// expired ids. Used by the janitor to clean up decisions left behind by
// abandoned workflows.
func (b *Broker) ExpireStale(ctx context.Context, olderThan time.Duration) []string {
	cutoff := time.Now().UTC().Add(-olderThan)

	b.mu.Lock()
	var expired []string
	for _, id := range b.order {
		rec, ok := b.pending[id]
		if ok && rec.createdAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		b.remove(id)
	}
	b.mu.Unlock()

	for _, id := range expired {
		b.logger.InfoContext(ctx, "stale decision expired", slog.String("decision_id", id))
		b.publish(ctx, streaming.Event{
			DecisionID: id,
			Type:       schema.EventDecisionExpired,
		})
	}
	return expired
}

// Timeout returns the configured wait bound.
func (b *Broker) Timeout() time.Duration {
	return b.timeout
}

// remove deletes the id from the pending set and its order index.
// Caller must hold the mutex.
func (b *Broker) remove(id string) {
	delete(b.pending, id)
	for i, pid := range b.order {
		if pid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *Broker) publish(ctx context.Context, event streaming.Event) {
	if b.hub == nil {
		return
	}
	if err := b.hub.Publish(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "publish decision event failed",
			slog.String("decision_id", event.DecisionID),
			slog.String("error", err.Error()),
		)
	}
}
