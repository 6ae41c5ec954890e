package kv

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	holder    string
	counter   int64
	expiresAt time.Time
}

// MemoryStore is a process-local Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	clock   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic TTL tests.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

// live returns the entry at key, dropping it first if expired.
func (s *MemoryStore) live(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && s.clock().After(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// TryAcquire implements Store.
func (s *MemoryStore) TryAcquire(_ context.Context, key, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) != nil {
		return false, nil
	}
	s.entries[key] = &memoryEntry{holder: holder, expiresAt: s.clock().Add(ttl)}
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &memoryEntry{}
		s.entries[key] = e
	}
	e.counter += delta
	e.expiresAt = s.clock().Add(ttl)
	return e.counter, nil
}

// IncrementCapped implements Store.
func (s *MemoryStore) IncrementCapped(_ context.Context, key string, delta, max int64, ttl time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	current := int64(0)
	if e != nil {
		current = e.counter
	}
	if current+delta > max {
		return false, current, nil
	}
	if e == nil {
		e = &memoryEntry{}
		s.entries[key] = e
	}
	e.counter = current + delta
	e.expiresAt = s.clock().Add(ttl)
	return true, e.counter, nil
}

// Decrement implements Store.
func (s *MemoryStore) Decrement(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return 0, nil
	}
	e.counter -= delta
	if e.counter <= 0 {
		delete(s.entries, key)
		return 0, nil
	}
	return e.counter, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return 0, nil
	}
	return e.counter, nil
}

// Holder returns the current lock holder for key, empty if unheld.
// Test helper.
func (s *MemoryStore) Holder(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return ""
	}
	return e.holder
}
