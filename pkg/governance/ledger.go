package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/glasswing-labs/keel/pkg/connector"
	"github.com/glasswing-labs/keel/pkg/contracts"
)

// PriceSnapshot is the original state captured before a price mutation.
type PriceSnapshot struct {
	Service   string  `json:"service"`
	TenantID  string  `json:"tenant_id"`
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id"`
	OldPrice  float64 `json:"old_price"`
}

// CampaignSnapshot identifies a sent campaign for cancellation.
type CampaignSnapshot struct {
	Service    string `json:"service"`
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`
}

// ListingSnapshot identifies an external listing for cancellation.
type ListingSnapshot struct {
	Service   string `json:"service"`
	TenantID  string `json:"tenant_id"`
	ListingID string `json:"listing_id"`
	SKU       string `json:"sku"`
}

// Ledger records reversal points and replays type-specific undo procedures
// through the connector registry.
type Ledger struct {
	store      Store
	connectors *connector.Registry
	logger     *slog.Logger
}

// NewLedger creates a governance ledger.
func NewLedger(store Store, connectors *connector.Registry, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, connectors: connectors, logger: logger}
}

// RecordReversalPoint appends an AVAILABLE record snapshotting pre-mutation
// state and returns its handle.
func (l *Ledger) RecordReversalPoint(ctx context.Context, auditID, tenantID string, rType contracts.ReversalType, originalState any) (string, error) {
	snapshot, err := json.Marshal(originalState)
	if err != nil {
		return "", fmt.Errorf("marshal reversal snapshot: %w", err)
	}
	record := &contracts.ReversalRecord{
		AuditID:       auditID,
		TenantID:      tenantID,
		Type:          rType,
		OriginalState: string(snapshot),
	}
	if err := l.store.AppendReversal(ctx, record); err != nil {
		return "", err
	}
	return record.ID, nil
}

// DiscardReversal retires an AVAILABLE record whose mutation never landed,
// so a later rollback cannot replay an undo for state that never changed.
// Consumes the record the same way a rollback would.
func (l *Ledger) DiscardReversal(ctx context.Context, reversalID, reason string) error {
	return l.store.ClaimReversal(ctx, reversalID, contracts.ReversalFailed, reason)
}

// ExecuteRollback replays the undo procedure for a reversal record.
//
// At-most-once: the record is CAS-claimed out of AVAILABLE before any
// connector call, so a second rollback attempt — concurrent or later — fails
// with contracts.ErrReversalUnavailable. A failed undo lands in FAILED with
// the error string and is not retried through this path.
func (l *Ledger) ExecuteRollback(ctx context.Context, reversalID string) error {
	record, err := l.store.GetReversal(ctx, reversalID)
	if err != nil {
		return err
	}
	if err := l.store.ClaimReversal(ctx, reversalID, contracts.ReversalExecuted, ""); err != nil {
		return err
	}

	res := l.dispatchUndo(ctx, record)
	if res.Outcome != contracts.OutcomeSuccess {
		if err := l.store.SetReversalOutcome(ctx, reversalID, contracts.ReversalFailed, res.Error); err != nil {
			return err
		}
		return fmt.Errorf("rollback %s (%s) failed: %s", reversalID, record.Type, res.Error)
	}

	l.logger.Info("rollback executed",
		"reversal_id", reversalID,
		"type", record.Type,
		"tenant", record.TenantID)
	return l.appendRollbackAudit(ctx, record)
}

func (l *Ledger) dispatchUndo(ctx context.Context, record *contracts.ReversalRecord) connector.Result {
	switch record.Type {
	case contracts.ReversalRevertPrice:
		var snap PriceSnapshot
		if err := json.Unmarshal([]byte(record.OriginalState), &snap); err != nil {
			return connector.Failure(contracts.OutcomeTerminal, fmt.Errorf("corrupt price snapshot: %w", err))
		}
		c, ok := l.connectors.Lookup(snap.Service)
		if !ok {
			return connector.Failure(contracts.OutcomeTerminal, fmt.Errorf("no connector for service %q", snap.Service))
		}
		return c.UpdatePrice(ctx, connector.PriceInput{
			TenantID:  snap.TenantID,
			ProductID: snap.ProductID,
			VariantID: snap.VariantID,
			NewPrice:  snap.OldPrice,
		})

	case contracts.ReversalCancelCampaign:
		var snap CampaignSnapshot
		if err := json.Unmarshal([]byte(record.OriginalState), &snap); err != nil {
			return connector.Failure(contracts.OutcomeTerminal, fmt.Errorf("corrupt campaign snapshot: %w", err))
		}
		c, ok := l.connectors.Lookup(snap.Service)
		if !ok {
			return connector.Failure(contracts.OutcomeTerminal, fmt.Errorf("no connector for service %q", snap.Service))
		}
		return c.CancelListing(ctx, connector.CancelInput{TenantID: snap.TenantID, ExternalID: snap.CampaignID})

	case contracts.ReversalCancelListing:
		var snap ListingSnapshot
		if err := json.Unmarshal([]byte(record.OriginalState), &snap); err != nil {
			return connector.Failure(contracts.OutcomeTerminal, fmt.Errorf("corrupt listing snapshot: %w", err))
		}
		c, ok := l.connectors.Lookup(snap.Service)
		if !ok {
			return connector.Failure(contracts.OutcomeTerminal, fmt.Errorf("no connector for service %q", snap.Service))
		}
		return c.CancelListing(ctx, connector.CancelInput{TenantID: snap.TenantID, ExternalID: snap.ListingID})

	default:
		return connector.Failure(contracts.OutcomeTerminal, fmt.Errorf("unknown reversal type %q", record.Type))
	}
}

func (l *Ledger) appendRollbackAudit(ctx context.Context, record *contracts.ReversalRecord) error {
	return l.store.AppendAudit(ctx, &contracts.AuditEntry{
		TenantID: record.TenantID,
		Action:   "rollback",
		Detail:   fmt.Sprintf("reversal %s type %s (origin audit %s)", record.ID, record.Type, record.AuditID),
	})
}

// Audit appends an audit entry; components route their trail through the
// ledger so the whole history lives in one place.
func (l *Ledger) Audit(ctx context.Context, e *contracts.AuditEntry) error {
	return l.store.AppendAudit(ctx, e)
}
