package engine

import (
	"errors"
	"fmt"

	"prodbudget-backend/internal/ordering"
)

// Every error here aborts the enclosing mutation boundary; the transaction
// rolls back and no partial aggregates are visible.
var (
	// ErrCrossDomain: budget-variant and template-variant entities mixed.
	ErrCrossDomain = errors.New("cross-domain violation")
	// ErrInvalidReference: fringe/markup/contact belongs to another budget or user.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrCycleDetected: a move would make a sub-account its own ancestor.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrPropagationTimedOut: the budget row lock outlived the request deadline.
	ErrPropagationTimedOut = errors.New("propagation timed out")
	// ErrAggregateInvariant: the post-flush sanity check found a mismatch.
	// Only checked when DebugChecks is on.
	ErrAggregateInvariant = errors.New("aggregate invariant broken")
)

// CascadeError identifies the node whose aggregation failed.
type CascadeError struct {
	Node NodeRef
	Err  error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade failure at %s %d: %v", e.Node.Kind, e.Node.ID, e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }

// ErrorCode maps an engine (or ordering) error onto the wire taxonomy.
// ok is false for errors outside the taxonomy.
func ErrorCode(err error) (code string, status int, ok bool) {
	var cascade *CascadeError
	switch {
	case errors.Is(err, ordering.ErrInvariant):
		return "order_invariant_violated", 400, true
	case errors.Is(err, ErrCrossDomain):
		return "cross_domain_violation", 400, true
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference", 400, true
	case errors.Is(err, ErrCycleDetected):
		return "cycle_detected", 400, true
	case errors.Is(err, ErrPropagationTimedOut):
		return "propagation_timed_out", 503, true
	case errors.As(err, &cascade):
		return "cascade_failure", 500, true
	case errors.Is(err, ErrAggregateInvariant):
		return "aggregate_invariant_broken", 500, true
	}
	return "", 0, false
}
