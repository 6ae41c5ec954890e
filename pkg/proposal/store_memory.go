package proposal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu        sync.Mutex
	proposals map[string]*contracts.Proposal
	clock     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[string]*contracts.Proposal),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, p *contracts.Proposal) error {
	if err := p.Payload.Validate(); err != nil {
		return fmt.Errorf("reject proposal at boundary: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if _, exists := s.proposals[p.ID]; exists {
		return fmt.Errorf("proposal %s already exists", p.ID)
	}
	if p.Status == "" {
		p.Status = contracts.StatusPending
	}
	p.Version = 1
	now := s.clock().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	clone := *p
	s.proposals[p.ID] = &clone
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*contracts.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, contracts.ErrProposalNotFound
	}
	clone := *p
	return &clone, nil
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, id string, expectedVersion int64) (*contracts.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, contracts.ErrProposalNotFound
	}
	if p.Status != contracts.StatusApproved || p.Version != expectedVersion {
		return nil, contracts.ErrConflict
	}
	p.Status = contracts.StatusExecuting
	p.Version++
	p.UpdatedAt = s.clock().UTC()
	clone := *p
	return &clone, nil
}

// Transition implements Store.
func (s *MemoryStore) Transition(_ context.Context, id string, to contracts.ProposalStatus, rationale string) (*contracts.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, contracts.ErrProposalNotFound
	}
	if !contracts.CanTransition(p.Status, to) {
		return nil, contracts.TransitionError(p.Status, to)
	}
	p.Status = to
	p.Version++
	p.Rationale = rationale
	p.UpdatedAt = s.clock().UTC()
	clone := *p
	return &clone, nil
}

// ListExecutingSince implements Store.
func (s *MemoryStore) ListExecutingSince(_ context.Context, cutoff time.Time) ([]*contracts.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*contracts.Proposal
	for _, p := range s.proposals {
		if p.Status == contracts.StatusExecuting && p.UpdatedAt.Before(cutoff) {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}
