// Package governance records reversal points before externally visible
// mutations and replays type-specific undo procedures. Rollback is
// at-most-once: a record leaves AVAILABLE exactly once.
package governance

import (
	"context"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// Store persists reversal records and the audit trail they link into.
type Store interface {
	// AppendReversal writes a new AVAILABLE record. Append-only.
	AppendReversal(ctx context.Context, r *contracts.ReversalRecord) error

	// GetReversal returns a record or contracts.ErrReversalUnavailable
	// when the id is unknown.
	GetReversal(ctx context.Context, id string) (*contracts.ReversalRecord, error)

	// ClaimReversal CAS-moves a record from AVAILABLE to the given
	// terminal status. A record not in AVAILABLE fails with
	// contracts.ErrReversalUnavailable, preventing double-undo.
	ClaimReversal(ctx context.Context, id string, to contracts.ReversalStatus, errMsg string) error

	// SetReversalOutcome overwrites the terminal status of a record the
	// caller has already claimed (EXECUTED -> FAILED when the dispatched
	// undo itself fails).
	SetReversalOutcome(ctx context.Context, id string, to contracts.ReversalStatus, errMsg string) error

	// AppendAudit writes one audit row. Append-only.
	AppendAudit(ctx context.Context, e *contracts.AuditEntry) error
}
