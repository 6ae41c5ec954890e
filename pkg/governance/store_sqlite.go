package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glasswing-labs/keel/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists reversal records and audit rows in sqlite.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

// NewSQLiteStore creates the store and runs its migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, clock: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithClock overrides the clock for deterministic testing.
func (s *SQLiteStore) WithClock(clock func() time.Time) *SQLiteStore {
	s.clock = clock
	return s
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS reversal_records (
        id TEXT PRIMARY KEY,
        audit_id TEXT NOT NULL,
        tenant_id TEXT NOT NULL,
        reversal_type TEXT NOT NULL,
        original_state JSON NOT NULL,
        status TEXT NOT NULL,
        error TEXT,
        created_at DATETIME,
        updated_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS audit_entries (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        proposal_id TEXT,
        action TEXT NOT NULL,
        detail TEXT,
        actor JSON,
        created_at DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_audit_proposal ON audit_entries(proposal_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// AppendReversal implements Store.
func (s *SQLiteStore) AppendReversal(ctx context.Context, r *contracts.ReversalRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = contracts.ReversalAvailable
	}
	now := s.clock().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reversal_records (id, audit_id, tenant_id, reversal_type, original_state, status, error, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AuditID, r.TenantID, string(r.Type), r.OriginalState, string(r.Status), r.Error,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reversal record: %w", err)
	}
	return nil
}

// GetReversal implements Store.
func (s *SQLiteStore) GetReversal(ctx context.Context, id string) (*contracts.ReversalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, audit_id, tenant_id, reversal_type, original_state, status, error, created_at, updated_at
         FROM reversal_records WHERE id = ?`, id)

	var (
		r         contracts.ReversalRecord
		rType     string
		status    string
		errMsg    sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&r.ID, &r.AuditID, &r.TenantID, &rType, &r.OriginalState, &status, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", contracts.ErrReversalUnavailable, id)
		}
		return nil, err
	}
	r.Type = contracts.ReversalType(rType)
	r.Status = contracts.ReversalStatus(status)
	r.Error = errMsg.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// ClaimReversal implements Store. The AVAILABLE predicate in the UPDATE is
// the at-most-once guard.
func (s *SQLiteStore) ClaimReversal(ctx context.Context, id string, to contracts.ReversalStatus, errMsg string) error {
	now := s.clock().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE reversal_records SET status = ?, error = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(to), errMsg, now, id, string(contracts.ReversalAvailable),
	)
	if err != nil {
		return fmt.Errorf("claim reversal %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim reversal %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", contracts.ErrReversalUnavailable, id)
	}
	return nil
}

// SetReversalOutcome implements Store.
func (s *SQLiteStore) SetReversalOutcome(ctx context.Context, id string, to contracts.ReversalStatus, errMsg string) error {
	now := s.clock().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE reversal_records SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(to), errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("set reversal outcome %s: %w", id, err)
	}
	return nil
}

// AppendAudit implements Store.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *contracts.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = s.clock().UTC()
	actorJSON, err := json.Marshal(e.Actor)
	if err != nil {
		return fmt.Errorf("marshal audit actor: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, tenant_id, proposal_id, action, detail, actor, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.ProposalID, e.Action, e.Detail, string(actorJSON),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
