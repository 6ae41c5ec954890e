// Package proposal owns proposal records and their lifecycle. All status
// writes go through the transition table in pkg/contracts; Claim is the sole
// concurrency guard against double-execution.
package proposal

import (
	"context"
	"time"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// Store persists proposals with optimistic concurrency on Version.
type Store interface {
	// Create inserts a new proposal at version 1. Status defaults to
	// PENDING when unset.
	Create(ctx context.Context, p *contracts.Proposal) error

	// Get returns a proposal or contracts.ErrProposalNotFound.
	Get(ctx context.Context, id string) (*contracts.Proposal, error)

	// Claim atomically sets status to EXECUTING and increments version
	// iff current status is APPROVED and version equals expectedVersion.
	// Any other state fails with contracts.ErrConflict: another actor
	// already claimed, or the allowed source state no longer holds.
	Claim(ctx context.Context, id string, expectedVersion int64) (*contracts.Proposal, error)

	// Transition moves a proposal along a legal edge, bumping version.
	// Illegal edges fail with contracts.ErrInvalidTransition and leave
	// state unchanged; a lost version race fails with ErrConflict.
	Transition(ctx context.Context, id string, to contracts.ProposalStatus, rationale string) (*contracts.Proposal, error)

	// ListExecutingSince returns proposals stuck in EXECUTING whose last
	// update is older than cutoff. Feeds the liveness sweep.
	ListExecutingSince(ctx context.Context, cutoff time.Time) ([]*contracts.Proposal, error)
}
