package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's error taxonomy. Callers match with
// errors.Is; wrapping sites add context with fmt.Errorf("...: %w", err).
var (
	// ErrConflict: a claim lost the CAS race. Not an execution failure —
	// the orchestrator stops silently.
	ErrConflict = errors.New("proposal claim conflict")

	// ErrInvalidTransition: an attempted status edge is not in the
	// transition table. State is left unchanged.
	ErrInvalidTransition = errors.New("invalid proposal status transition")

	// ErrPaused: the safety gate is tripped (kill switch or tenant pause).
	// Nothing was mutated; safe to retry later.
	ErrPaused = errors.New("execution paused by safety gate")

	// ErrInsufficientStock: the shadow ledger refused a reservation.
	ErrInsufficientStock = errors.New("insufficient available stock")

	// ErrCircuitOpen: the downstream breaker is open; no network attempt
	// was made.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrReversalUnavailable: rollback requested on a reversal record not
	// in AVAILABLE status.
	ErrReversalUnavailable = errors.New("reversal record not available")

	// ErrProposalNotFound: lookup miss in the proposal store.
	ErrProposalNotFound = errors.New("proposal not found")
)

// TransitionError wraps ErrInvalidTransition with the offending edge.
func TransitionError(from, to ProposalStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
