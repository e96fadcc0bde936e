package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/devdraft-ai/devdraft/internal/spec"
)

// Schema is the DDL for the archive tables. Execute via
// [PostgresStore.Migrate] or apply manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS archived_specs (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    spec        JSONB NOT NULL,
    archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_archived_specs_session ON archived_specs(session_id, archived_at DESC);

CREATE TABLE IF NOT EXISTS archived_projects (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    project     JSONB NOT NULL,
    archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_archived_projects_session ON archived_projects(session_id, archived_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL, storing payloads as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over the given pool or connection. Call
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the archive tables if they do
// not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// SaveSpec archives a specification and returns the record id.
func (s *PostgresStore) SaveSpec(ctx context.Context, sessionID string, sp *spec.ProjectSpec) (int64, error) {
	payload, err := json.Marshal(sp)
	if err != nil {
		return 0, fmt.Errorf("archive: marshal spec: %w", err)
	}

	const query = `
		INSERT INTO archived_specs (session_id, spec)
		VALUES ($1, $2)
		RETURNING id`

	var id int64
	if err := s.db.QueryRow(ctx, query, sessionID, payload).Scan(&id); err != nil {
		return 0, fmt.Errorf("archive: save spec: %w", err)
	}
	return id, nil
}

// SaveProject archives a generated project and returns the record id.
func (s *PostgresStore) SaveProject(ctx context.Context, sessionID string, p *spec.GeneratedProject) (int64, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("archive: marshal project: %w", err)
	}

	const query = `
		INSERT INTO archived_projects (session_id, project)
		VALUES ($1, $2)
		RETURNING id`

	var id int64
	if err := s.db.QueryRow(ctx, query, sessionID, payload).Scan(&id); err != nil {
		return 0, fmt.Errorf("archive: save project: %w", err)
	}
	return id, nil
}

// LatestSpec returns the newest archived specification for a session, or nil
// when the session has none.
func (s *PostgresStore) LatestSpec(ctx context.Context, sessionID string) (*SpecRecord, error) {
	const query = `
		SELECT id, session_id, spec, archived_at
		FROM archived_specs
		WHERE session_id = $1
		ORDER BY archived_at DESC, id DESC
		LIMIT 1`

	rec, err := scanSpecRow(s.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: latest spec %q: %w", sessionID, err)
	}
	return rec, nil
}

// ListSpecs returns up to limit archived specifications for a session, newest
// first. A non-positive limit defaults to 20.
func (s *PostgresStore) ListSpecs(ctx context.Context, sessionID string, limit int) ([]SpecRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, session_id, spec, archived_at
		FROM archived_specs
		WHERE session_id = $1
		ORDER BY archived_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list specs: %w", err)
	}
	defer rows.Close()

	var records []SpecRecord
	for rows.Next() {
		rec, err := scanSpecRow(rows)
		if err != nil {
			return nil, fmt.Errorf("archive: list specs scan: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list specs: %w", err)
	}
	return records, nil
}

// scanSpecRow decodes one archived_specs row.
func scanSpecRow(row pgx.Row) (*SpecRecord, error) {
	var rec SpecRecord
	var payload []byte
	if err := row.Scan(&rec.ID, &rec.SessionID, &payload, &rec.ArchivedAt); err != nil {
		return nil, err
	}
	rec.Spec = &spec.ProjectSpec{}
	if err := json.Unmarshal(payload, rec.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	return &rec, nil
}
