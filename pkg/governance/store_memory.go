package governance

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
	reversals map[string]*contracts.ReversalRecord
	audit     []*contracts.AuditEntry
	clock     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reversals: make(map[string]*contracts.ReversalRecord),
		clock:     time.Now,
	}
}

// AppendReversal implements Store.
func (s *MemoryStore) AppendReversal(_ context.Context, r *contracts.ReversalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = contracts.ReversalAvailable
	}
	now := s.clock().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	clone := *r
	s.reversals[r.ID] = &clone
	return nil
}

// GetReversal implements Store.
func (s *MemoryStore) GetReversal(_ context.Context, id string) (*contracts.ReversalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reversals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrReversalUnavailable, id)
	}
	clone := *r
	return &clone, nil
}

// ClaimReversal implements Store.
func (s *MemoryStore) ClaimReversal(_ context.Context, id string, to contracts.ReversalStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reversals[id]
	if !ok || r.Status != contracts.ReversalAvailable {
		return fmt.Errorf("%w: %s", contracts.ErrReversalUnavailable, id)
	}
	r.Status = to
	r.Error = errMsg
	r.UpdatedAt = s.clock().UTC()
	return nil
}

// SetReversalOutcome implements Store.
func (s *MemoryStore) SetReversalOutcome(_ context.Context, id string, to contracts.ReversalStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reversals[id]
	if !ok {
		return fmt.Errorf("%w: %s", contracts.ErrReversalUnavailable, id)
	}
	r.Status = to
	r.Error = errMsg
	r.UpdatedAt = s.clock().UTC()
	return nil
}

// AppendAudit implements Store.
func (s *MemoryStore) AppendAudit(_ context.Context, e *contracts.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = s.clock().UTC()
	clone := *e
	s.audit = append(s.audit, &clone)
	return nil
}

// Reversals returns a copy of every record. Test helper.
func (s *MemoryStore) Reversals() []*contracts.ReversalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*contracts.ReversalRecord, 0, len(s.reversals))
	for _, r := range s.reversals {
		clone := *r
		out = append(out, &clone)
	}
	return out
}

// AuditEntries returns a copy of the trail. Test helper.
func (s *MemoryStore) AuditEntries() []*contracts.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*contracts.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}
