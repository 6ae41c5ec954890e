package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome of an authorization request.
type Outcome string

// Outcome constants.
const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeDenied   Outcome = "DENIED"
	OutcomeTimeout  Outcome = "TIMEOUT"
)

// RequestStatus is the lifecycle of a pending authorization.
type RequestStatus string

// RequestStatus constants.
const (
	RequestPending  RequestStatus = "PENDING"
	RequestResolved RequestStatus = "RESOLVED"
)

// Request is one suspended authorization awaiting out-of-band resolution.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Request struct {
	ID         string        `json:"id"`
	ProposalID string        `json:"proposal_id"`
	TenantID   string        `json:"tenant_id"`
	Input      PolicyInput   `json:"input"`
	Status     RequestStatus `json:"status"`
	Outcome    Outcome       `json:"outcome,omitempty"`
	ResolvedBy string        `json:"resolved_by,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// Notifier emits the out-of-band authorization request (dashboard push,
// email, chat message). The external subsystem owns how the human is
// prompted.
type Notifier interface {
	NotifyAuthorizationRequired(ctx context.Context, req *Request)
}

// ResumeFunc is invoked when a pending request resolves. The orchestrator
// registers one per suspended proposal; the gate never blocks a worker
// waiting for a human.
type ResumeFunc func(proposalID string, outcome Outcome)

// DefaultTimeout after which an unresolved request times out (deny).
const DefaultTimeout = 5 * time.Minute

// Gate evaluates the tenant policy and tracks suspended authorizations.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*Request // keyed by proposal id
	resume   map[string]ResumeFunc
	policies func(tenantID string) Policy
	notifier Notifier
	timeout  time.Duration
	clock    func() time.Time
}

// NewGate creates a gate. policies resolves the per-tenant policy; notifier
// may be nil.
func NewGate(policies func(tenantID string) Policy, notifier Notifier, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		pending:  make(map[string]*Request),
		resume:   make(map[string]ResumeFunc),
		policies: policies,
		notifier: notifier,
		timeout:  timeout,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// Evaluate runs the tenant policy over the proposal's risk profile. If
// approval is required it records a pending request, emits the out-of-band
// notification and returns required=true; the caller must suspend without a
// terminal transition and register resume via OnResolved.
func (g *Gate) Evaluate(ctx context.Context, tenantID, proposalID string, in PolicyInput, resume ResumeFunc) (required bool, err error) {
	policy := g.policies(tenantID)
	if policy == nil {
		return false, nil
	}
	required, err = policy.RequiresApproval(in)
	if err != nil {
		// Fail closed: broken policy suspends rather than executes.
		required = true
	}
	if !required {
		return false, nil
	}

	now := g.clock()
	req := &Request{
		ID:         uuid.New().String(),
		ProposalID: proposalID,
		TenantID:   tenantID,
		Input:      in,
		Status:     RequestPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(g.timeout),
	}

	g.mu.Lock()
	g.pending[proposalID] = req
	if resume != nil {
		g.resume[proposalID] = resume
	}
	g.mu.Unlock()

	if g.notifier != nil {
		g.notifier.NotifyAuthorizationRequired(ctx, req)
	}
	return true, err
}

// OnResolved is the resumption hook the external authorization subsystem
// calls. Unknown or already-resolved proposal ids are rejected.
func (g *Gate) OnResolved(proposalID string, outcome Outcome, resolvedBy string) error {
	g.mu.Lock()
	req, ok := g.pending[proposalID]
	if !ok || req.Status != RequestPending {
		g.mu.Unlock()
		return fmt.Errorf("no pending authorization for proposal %q", proposalID)
	}
	req.Status = RequestResolved
	req.Outcome = outcome
	req.ResolvedBy = resolvedBy
	resume := g.resume[proposalID]
	delete(g.resume, proposalID)
	g.mu.Unlock()

	if resume != nil {
		resume(proposalID, outcome)
	}
	return nil
}

// SweepTimeouts resolves every expired pending request as TIMEOUT and
// returns the affected proposal ids. Run periodically.
func (g *Gate) SweepTimeouts() []string {
	now := g.clock()

	g.mu.Lock()
	var expired []*Request
	for _, req := range g.pending {
		if req.Status == RequestPending && now.After(req.ExpiresAt) {
			req.Status = RequestResolved
			req.Outcome = OutcomeTimeout
			expired = append(expired, req)
		}
	}
	resumes := make(map[string]ResumeFunc, len(expired))
	for _, req := range expired {
		if fn, ok := g.resume[req.ProposalID]; ok {
			resumes[req.ProposalID] = fn
			delete(g.resume, req.ProposalID)
		}
	}
	g.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, req := range expired {
		ids = append(ids, req.ProposalID)
		if fn, ok := resumes[req.ProposalID]; ok {
			fn(req.ProposalID, OutcomeTimeout)
		}
	}
	return ids
}

// Pending returns the pending request for a proposal, if any.
func (g *Gate) Pending(proposalID string) (*Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.pending[proposalID]
	if !ok || req.Status != RequestPending {
		return nil, false
	}
	clone := *req
	return &clone, true
}

// PendingCount returns the number of suspended authorizations.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, req := range g.pending {
		if req.Status == RequestPending {
			count++
		}
	}
	return count
}
