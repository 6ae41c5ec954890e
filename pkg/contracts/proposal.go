// Package contracts holds the shared domain types of the execution engine:
// proposals and their lifecycle, action payloads, actor identity, connector
// outcome classification, and the error taxonomy every component speaks.
package contracts

import "time"

// ProposalStatus defines the lifecycle of a proposal.
type ProposalStatus string

// ProposalStatus constants.
const (
	StatusPending   ProposalStatus = "PENDING"
	StatusApproved  ProposalStatus = "APPROVED"
	StatusExecuting ProposalStatus = "EXECUTING"
	StatusExecuted  ProposalStatus = "EXECUTED"
	StatusFailed    ProposalStatus = "FAILED"
	StatusRejected  ProposalStatus = "REJECTED"
	StatusExpired   ProposalStatus = "EXPIRED"
)

// validTransitions is the closed transition table. Terminal states have no
// outgoing edges. FAILED -> PENDING is the explicit re-queue edge only.
var validTransitions = map[ProposalStatus][]ProposalStatus{
	StatusPending:   {StatusApproved, StatusRejected, StatusExecuting},
	StatusApproved:  {StatusExecuting, StatusExpired},
	StatusExecuting: {StatusExecuted, StatusFailed},
	StatusFailed:    {StatusPending},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to ProposalStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges at all.
func (s ProposalStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// RiskLevel grades a proposal's blast radius.
type RiskLevel string

// RiskLevel constants.
const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Proposal is a recorded intent for an agent action awaiting, or having
// received, approval. Proposals are never deleted; they only reach terminal
// states.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Proposal struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	Status   ProposalStatus `json:"status"`

	// Version is a monotonic counter bumped on every status write. The
	// claim CAS keys on it; see proposal.Store.Claim.
	Version int64 `json:"version"`

	RiskLevel RiskLevel     `json:"risk_level"`
	Payload   ActionPayload `json:"payload"`

	// OriginExecutionID is the causal trace link back to the agent run
	// that produced this proposal.
	OriginExecutionID string `json:"origin_execution_id,omitempty"`

	// Rationale carries the human-readable reason for the latest terminal
	// transition (failure cause, simulation verdict).
	Rationale string `json:"rationale,omitempty"`

	Actor     ActorContext `json:"actor"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ActorContext is the forensic identity attached to every mutation.
// Read-only once issued.
type ActorContext struct {
	AgentType       string   `json:"agent_type"`
	ClientID        string   `json:"client_id"`
	DelegationChain []string `json:"delegation_chain,omitempty"`
	Scopes          []string `json:"scopes,omitempty"`
}
