package contracts

import "time"

// ReversalType names the undo procedure a connector must expose to unwind a
// mutation.
type ReversalType string

// ReversalType constants.
const (
	ReversalCancelCampaign ReversalType = "CANCEL_CAMPAIGN"
	ReversalRevertPrice    ReversalType = "REVERT_PRICE"
	ReversalCancelListing  ReversalType = "CANCEL_LISTING"
)

// ReversalStatus is the consumption state of a reversal record.
type ReversalStatus string

// ReversalStatus constants.
const (
	ReversalAvailable ReversalStatus = "AVAILABLE"
	ReversalExecuted  ReversalStatus = "EXECUTED"
	ReversalFailed    ReversalStatus = "FAILED"
)

// ReversalRecord is a pre-mutation snapshot enabling a later compensating
// action. Created at mutation time, consumed at most once by a successful
// rollback.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type ReversalRecord struct {
	ID       string       `json:"id"`
	AuditID  string       `json:"audit_id"` // links to the audit entry of the original mutation
	TenantID string       `json:"tenant_id"`
	Type     ReversalType `json:"type"`

	// OriginalState is an opaque JSON snapshot sufficient to reconstruct
	// the pre-mutation state (old price, listing id, campaign id).
	OriginalState string `json:"original_state"`

	Status    ReversalStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AuditEntry is one append-only audit row; every externally visible mutation
// and every terminal proposal transition records one.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type AuditEntry struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenant_id"`
	ProposalID string       `json:"proposal_id"`
	Action     string       `json:"action"` // e.g. "price_change", "status_failed", "rollback"
	Detail     string       `json:"detail,omitempty"`
	Actor      ActorContext `json:"actor"`
	CreatedAt  time.Time    `json:"created_at"`
}
