// Package inventory implements the shadow inventory ledger: provisional,
// TTL-bound holds against a resource's real stock so that concurrent
// proposals cannot jointly oversell.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/glasswing-labs/keel/pkg/contracts"
	"github.com/glasswing-labs/keel/pkg/kv"
)

// DefaultHoldTTL expires abandoned holds so a crashed execution cannot
// permanently lock stock.
const DefaultHoldTTL = 10 * time.Minute

// Ledger tracks provisional holds. Invariant: hold(key) <= realStock(key)
// at all times; the capped increment in the kv layer enforces it atomically.
type Ledger struct {
	store   kv.Store
	holdTTL time.Duration
}

// NewLedger creates a ledger over a kv.Store.
func NewLedger(store kv.Store, holdTTL time.Duration) *Ledger {
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	return &Ledger{store: store, holdTTL: holdTTL}
}

func holdKey(tenantID, resourceKey string) string {
	return fmt.Sprintf("hold:%s:%s", tenantID, resourceKey)
}

// Reserve places a hold of qty against realStock. Fails with
// contracts.ErrInsufficientStock (holding nothing) when
// realStock - currentHold < qty; otherwise the hold is incremented and its
// TTL reset atomically.
func (l *Ledger) Reserve(ctx context.Context, tenantID, resourceKey string, qty, realStock int64) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	ok, held, err := l.store.IncrementCapped(ctx, holdKey(tenantID, resourceKey), qty, realStock, l.holdTTL)
	if err != nil {
		return fmt.Errorf("reserve %s/%s: %w", tenantID, resourceKey, err)
	}
	if !ok {
		return fmt.Errorf("%w: requested %d, available %d",
			contracts.ErrInsufficientStock, qty, realStock-held)
	}
	return nil
}

// Commit gives back qty of the hold once the real sale/deduction is
// confirmed. Floored at zero; an exhausted hold key is deleted.
func (l *Ledger) Commit(ctx context.Context, tenantID, resourceKey string, qty int64) error {
	if _, err := l.store.Decrement(ctx, holdKey(tenantID, resourceKey), qty); err != nil {
		return fmt.Errorf("commit hold %s/%s: %w", tenantID, resourceKey, err)
	}
	return nil
}

// Release returns an unused hold after an execution failure. Same decrement
// as Commit; the names differ because the audit meaning differs.
func (l *Ledger) Release(ctx context.Context, tenantID, resourceKey string, qty int64) error {
	if _, err := l.store.Decrement(ctx, holdKey(tenantID, resourceKey), qty); err != nil {
		return fmt.Errorf("release hold %s/%s: %w", tenantID, resourceKey, err)
	}
	return nil
}

// Held reports the current hold for the operator surface.
func (l *Ledger) Held(ctx context.Context, tenantID, resourceKey string) (int64, error) {
	held, err := l.store.Get(ctx, holdKey(tenantID, resourceKey))
	if err != nil {
		return 0, fmt.Errorf("read hold %s/%s: %w", tenantID, resourceKey, err)
	}
	return held, nil
}
