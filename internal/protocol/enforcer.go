// Package protocol gates step execution behind a fixed, enumerable set of
// named policies. Policies are pure predicates over (action, state); the
// enforcer ANDs them. Adding a policy is a registration, not a new caller
// contract.
package protocol

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/stepward/stepward/pkg/schema"
)

// Policy is a single named check. Check must be side-effect-free and
// deterministic for a given (action, state) pair.
type Policy interface {
	Name() string
	Check(ctx context.Context, action string, state *schema.WorkflowState) bool
}

// Enforcer is a thread-safe policy registry.
type Enforcer struct {
	mu       sync.RWMutex
	policies map[string]Policy
	order    []string
	logger   *slog.Logger
}

// NewEnforcer creates an empty Enforcer.
func NewEnforcer(logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{
		policies: make(map[string]Policy),
		logger:   logger,
	}
}

// Register adds a policy. Returns error on duplicate name.
func (e *Enforcer) Register(policy Policy) error {
	if policy == nil {
		return schema.NewError(schema.ErrCodeValidation, "policy is nil")
	}
	name := policy.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "policy name is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "policy %q already registered", name)
	}
	e.policies[name] = policy
	e.order = append(e.order, name)
	return nil
}

// Enforce returns true iff every registered policy passes for the action.
// Policies are side-effect-free, so evaluation order carries no meaning;
// registration order is used and the first veto short-circuits.
func (e *Enforcer) Enforce(ctx context.Context, action string, state *schema.WorkflowState) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, name := range e.order {
		if !e.policies[name].Check(ctx, action, state) {
			e.logger.WarnContext(ctx, "policy veto",
				slog.String("policy", name),
				slog.String("action", action),
			)
			return false
		}
	}
	return true
}

// Policies returns the registered policy names, sorted.
func (e *Enforcer) Policies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.order))
	copy(names, e.order)
	sort.Strings(names)
	return names
}
