// Package conflict provides short-lived mutual exclusion over business
// resources (SKUs, campaigns). Locks are TTL-bounded so a crashed holder can
// never block a resource permanently.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glasswing-labs/keel/pkg/kv"
)

// DefaultLockTTL bounds how long an orchestrator crash can hold a resource.
const DefaultLockTTL = 2 * time.Minute

// Policy controls behavior when the lock backend is unreachable.
type Policy struct {
	// FailOpen grants acquisition on backend outage instead of blocking
	// business operations. This is a deliberate availability-over-strict-
	// correctness trade-off and must be paired with idempotent downstream
	// operations. Known consistency gap under lock-store outage.
	FailOpen bool
	TTL      time.Duration
}

// DefaultPolicy preserves the fail-open trade-off of the original system.
func DefaultPolicy() Policy {
	return Policy{FailOpen: true, TTL: DefaultLockTTL}
}

// Manager acquires and releases namespaced resource locks.
type Manager struct {
	store  kv.Store
	policy Policy
	logger *slog.Logger
}

// NewManager creates a lock manager over a kv.Store.
func NewManager(store kv.Store, policy Policy, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.TTL <= 0 {
		policy.TTL = DefaultLockTTL
	}
	return &Manager{store: store, policy: policy, logger: logger}
}

func lockKey(tenantID, resourceKey string) string {
	return fmt.Sprintf("lock:%s:%s", tenantID, resourceKey)
}

// Acquire attempts to take the lock for (tenant, resourceKey). Returns true
// if this holder owns it. On backend failure the configured policy decides:
// fail-open grants the lock with a warning, fail-closed propagates the error.
func (m *Manager) Acquire(ctx context.Context, tenantID, resourceKey, holderID string) (bool, error) {
	ok, err := m.store.TryAcquire(ctx, lockKey(tenantID, resourceKey), holderID, m.policy.TTL)
	if err != nil {
		if m.policy.FailOpen {
			m.logger.Warn("lock backend unavailable, failing open",
				"tenant", tenantID,
				"resource", resourceKey,
				"error", err)
			return true, nil
		}
		return false, fmt.Errorf("acquire lock %s/%s: %w", tenantID, resourceKey, err)
	}
	return ok, nil
}

// Release drops the lock. Best-effort: errors are logged, not propagated,
// because the TTL bounds the worst case.
func (m *Manager) Release(ctx context.Context, tenantID, resourceKey string) {
	if err := m.store.Release(ctx, lockKey(tenantID, resourceKey)); err != nil {
		m.logger.Warn("lock release failed, TTL will reap",
			"tenant", tenantID,
			"resource", resourceKey,
			"error", err)
	}
}

// AcquireAll takes every key in order, releasing everything already held on
// the first refusal. ok=false means another holder owns one of the keys.
func (m *Manager) AcquireAll(ctx context.Context, tenantID string, resourceKeys []string, holderID string) (held []string, ok bool, err error) {
	held = make([]string, 0, len(resourceKeys))
	for _, key := range resourceKeys {
		got, err := m.Acquire(ctx, tenantID, key, holderID)
		if err != nil || !got {
			for _, h := range held {
				m.Release(ctx, tenantID, h)
			}
			return nil, false, err
		}
		held = append(held, key)
	}
	return held, true, nil
}
