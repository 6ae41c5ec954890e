package proposal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glasswing-labs/keel/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists proposals in an embedded sqlite database.
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
    CREATE TABLE IF NOT EXISTS proposals (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        status TEXT NOT NULL,
        version INTEGER NOT NULL DEFAULT 1,
        risk_level TEXT NOT NULL DEFAULT 'LOW',
        payload JSON NOT NULL,
        origin_execution_id TEXT,
        rationale TEXT,
        actor JSON,
        created_at DATETIME,
        updated_at DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status, updated_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, p *contracts.Proposal) error {
	if err := p.Payload.Validate(); err != nil {
		return fmt.Errorf("reject proposal at boundary: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = contracts.StatusPending
	}
	p.Version = 1
	now := s.clock().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	payloadJSON, err := contracts.MarshalPayload(&p.Payload)
	if err != nil {
		return err
	}
	actorJSON, err := marshalActor(p.Actor)
	if err != nil {
		return err
	}

	query := `INSERT INTO proposals (
        id, tenant_id, status, version, risk_level, payload, origin_execution_id, rationale, actor, created_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.TenantID, string(p.Status), p.Version, string(p.RiskLevel),
		payloadJSON, p.OriginExecutionID, p.Rationale, actorJSON,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*contracts.Proposal, error) {
	row := s.db.QueryRowContext(ctx, selectProposal+` WHERE id = ?`, id)
	return scanProposal(row)
}

// Claim implements Store. The single UPDATE is the CAS: both the APPROVED
// source state and the expected version are part of the predicate, so at
// most one claimer per (id, version) can see one affected row.
func (s *SQLiteStore) Claim(ctx context.Context, id string, expectedVersion int64) (*contracts.Proposal, error) {
	now := s.clock().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND status = ? AND version = ?`,
		string(contracts.StatusExecuting), now, id, string(contracts.StatusApproved), expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("claim proposal %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim proposal %s: %w", id, err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, contracts.ErrConflict
	}
	return s.Get(ctx, id)
}

// Transition implements Store.
func (s *SQLiteStore) Transition(ctx context.Context, id string, to contracts.ProposalStatus, rationale string) (*contracts.Proposal, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !contracts.CanTransition(current.Status, to) {
		return nil, contracts.TransitionError(current.Status, to)
	}

	now := s.clock().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ?, version = version + 1, rationale = ?, updated_at = ?
         WHERE id = ? AND status = ? AND version = ?`,
		string(to), rationale, now, id, string(current.Status), current.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("transition proposal %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition proposal %s: %w", id, err)
	}
	if affected == 0 {
		return nil, contracts.ErrConflict
	}
	return s.Get(ctx, id)
}

// ListExecutingSince implements Store.
func (s *SQLiteStore) ListExecutingSince(ctx context.Context, cutoff time.Time) ([]*contracts.Proposal, error) {
	rows, err := s.db.QueryContext(ctx,
		selectProposal+` WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC`,
		string(contracts.StatusExecuting), cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list executing proposals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var proposals []*contracts.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return proposals, nil
}

const selectProposal = `
    SELECT id, tenant_id, status, version, risk_level, payload, origin_execution_id, rationale, actor, created_at, updated_at
    FROM proposals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*contracts.Proposal, error) {
	var (
		id          string
		tenantID    string
		status      string
		version     int64
		riskLevel   string
		payloadJSON string
		originID    sql.NullString
		rationale   sql.NullString
		actorJSON   sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(&id, &tenantID, &status, &version, &riskLevel, &payloadJSON, &originID, &rationale, &actorJSON, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contracts.ErrProposalNotFound
		}
		return nil, err
	}

	payload, err := contracts.UnmarshalPayload(payloadJSON)
	if err != nil {
		return nil, err
	}
	actor, err := unmarshalActor(actorJSON.String)
	if err != nil {
		return nil, err
	}

	return &contracts.Proposal{
		ID:                id,
		TenantID:          tenantID,
		Status:            contracts.ProposalStatus(status),
		Version:           version,
		RiskLevel:         contracts.RiskLevel(riskLevel),
		Payload:           *payload,
		OriginExecutionID: originID.String,
		Rationale:         rationale.String,
		Actor:             actor,
		CreatedAt:         parseTime(createdAt),
		UpdatedAt:         parseTime(updatedAt),
	}, nil
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
