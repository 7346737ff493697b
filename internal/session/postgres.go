package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridport/gridport/internal/relationship"
)

// PostgresStore persists sessions alongside the imported data. Fixed columns
// carry the keys the queries filter on; the rest of each record rides in a
// JSONB payload so the model can grow without migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing pool, typically shared with the
// storage layer.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the bookkeeping tables. Safe to run on every start.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gridport_sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			status TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS gridport_candidates (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source_table TEXT NOT NULL,
			field_name TEXT NOT NULL,
			payload JSONB NOT NULL,
			UNIQUE (session_id, source_table, field_name)
		)`,
		`CREATE TABLE IF NOT EXISTS gridport_proposals (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			is_created BOOLEAN NOT NULL DEFAULT FALSE,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gridport_candidates_session ON gridport_candidates (session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_gridport_proposals_session ON gridport_proposals (session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring session schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *ImportSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", s.ID, err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO gridport_sessions (id, owner_id, status, data) VALUES ($1, $2, $3, $4)`,
		s.ID, s.OwnerID, string(s.Status), data)
	if err != nil {
		return fmt.Errorf("creating session %s: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*ImportSession, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM gridport_sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	var s ImportSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &s, nil
}

func (p *PostgresStore) Update(ctx context.Context, s *ImportSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", s.ID, err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE gridport_sessions SET status = $2, data = $3, updated_at = now() WHERE id = $1`,
		s.ID, string(s.Status), data)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

// TryAcquireRun is a single conditional update, so two concurrent starts
// race on the row and exactly one wins.
func (p *PostgresStore) TryAcquireRun(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE gridport_sessions
		 SET status = $2, data = jsonb_set(data, '{status}', to_jsonb($2::text)), updated_at = now()
		 WHERE id = $1 AND status <> $2`,
		id, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("acquiring run on session %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return &ConflictError{SessionID: id, Status: StatusRunning, Op: "run"}
}

func (p *PostgresStore) SaveCandidates(ctx context.Context, cands []relationship.Candidate) error {
	for _, c := range cands {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding candidate %s: %w", c.ID, err)
		}
		_, err = p.pool.Exec(ctx,
			`INSERT INTO gridport_candidates (id, session_id, source_table, field_name, payload)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (session_id, source_table, field_name) DO UPDATE
			 SET id = EXCLUDED.id,
			     payload = jsonb_set(EXCLUDED.payload, '{approved}',
			         COALESCE(gridport_candidates.payload->'approved', 'false'::jsonb))`,
			c.ID, c.SessionID, c.SourceTable, c.FieldName, payload)
		if err != nil {
			return fmt.Errorf("saving candidate %s.%s: %w", c.SourceTable, c.FieldName, err)
		}
	}
	return nil
}

func (p *PostgresStore) Candidates(ctx context.Context, sessionID string) ([]relationship.Candidate, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM gridport_candidates WHERE session_id = $1 ORDER BY source_table, field_name`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading candidates for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []relationship.Candidate
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		var c relationship.Candidate
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("decoding candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetCandidateApproved(ctx context.Context, candidateID string, approved bool) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE gridport_candidates
		 SET payload = jsonb_set(payload, '{approved}', to_jsonb($2::boolean))
		 WHERE id = $1`,
		candidateID, approved)
	if err != nil {
		return fmt.Errorf("approving candidate %s: %w", candidateID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) SaveProposals(ctx context.Context, props []relationship.Proposal) error {
	for _, pr := range props {
		payload, err := json.Marshal(pr)
		if err != nil {
			return fmt.Errorf("encoding proposal %s: %w", pr.ID, err)
		}
		_, err = p.pool.Exec(ctx,
			`INSERT INTO gridport_proposals (id, session_id, is_created, payload)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET is_created = EXCLUDED.is_created, payload = EXCLUDED.payload`,
			pr.ID, pr.SessionID, pr.IsCreated, payload)
		if err != nil {
			return fmt.Errorf("saving proposal %s: %w", pr.ID, err)
		}
	}
	return nil
}

func (p *PostgresStore) Proposals(ctx context.Context, sessionID string) ([]relationship.Proposal, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM gridport_proposals WHERE session_id = $1 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading proposals for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []relationship.Proposal
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}
		var pr relationship.Proposal
		if err := json.Unmarshal(payload, &pr); err != nil {
			return nil, fmt.Errorf("decoding proposal: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkProposalCreated(ctx context.Context, proposalID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE gridport_proposals
		 SET is_created = TRUE, payload = jsonb_set(payload, '{isCreated}', 'true'::jsonb)
		 WHERE id = $1`,
		proposalID)
	if err != nil {
		return fmt.Errorf("marking proposal %s created: %w", proposalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("proposal %s: %w", proposalID, ErrNotFound)
	}
	return nil
}
