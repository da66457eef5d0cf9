// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/store"
)

// Schema creates the tables used by SessionStore.
const Schema = `
CREATE TABLE IF NOT EXISTS extraction_sessions (
	id           TEXT PRIMARY KEY,
	keywords     TEXT NOT NULL,
	location     TEXT NOT NULL,
	platforms    TEXT[] NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ,
	result_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS extraction_sessions_started_at_idx ON extraction_sessions (started_at DESC);
CREATE TABLE IF NOT EXISTS extraction_records (
	seq          BIGSERIAL,
	session_id   TEXT NOT NULL REFERENCES extraction_sessions (id) ON DELETE CASCADE,
	phone        TEXT NOT NULL,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL,
	source       TEXT NOT NULL,
	extracted_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, phone)
);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// SessionStore implements store.SessionRepository on Postgres.
type SessionStore struct {
	pool pgxPool
}

// NewSessionStore connects to Postgres using cfg.
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SessionStore{pool: pool}, nil
}

// NewSessionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSessionStoreWithPool(pool pgxPool) (*SessionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SessionStore{pool: pool}, nil
}

// Migrate creates the schema if it does not exist.
func (s *SessionStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate session schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SessionStore) Close() {
	s.pool.Close()
}

// CreateSession inserts the session row.
func (s *SessionStore) CreateSession(ctx context.Context, sess extract.Session) error {
	const query = `
		INSERT INTO extraction_sessions (id, keywords, location, platforms, status, started_at, result_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query,
		sess.ID,
		sess.Query.Keywords,
		sess.Query.Location,
		sess.Query.Platforms,
		string(sess.Status),
		sess.StartedAt,
		sess.ResultCount,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AppendRecords inserts records in one transaction, skipping phones already
// stored for the session.
func (s *SessionStore) AppendRecords(ctx context.Context, sessionID string, records []extract.Record) error {
	if len(records) == 0 {
		return nil
	}
	const query = `
		INSERT INTO extraction_records (session_id, phone, name, address, source, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, phone) DO NOTHING;
	`
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append records: %w", err)
	}
	for _, r := range records {
		if _, err := tx.Exec(ctx, query, sessionID, r.Phone, r.Name, r.Address, r.Source, r.ExtractedAt); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("insert record %s: %w (rollback: %v)", r.Phone, err, rbErr)
			}
			return fmt.Errorf("insert record %s: %w", r.Phone, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append records: %w", err)
	}
	return nil
}

// FinishSession records the terminal state. Only a running row is updated so
// a replayed event cannot overwrite the first transition.
func (s *SessionStore) FinishSession(ctx context.Context, sess extract.Session) error {
	const query = `
		UPDATE extraction_sessions
		SET status = $1, finished_at = $2, result_count = $3
		WHERE id = $4 AND status = 'running';
	`
	_, err := s.pool.Exec(ctx, query, string(sess.Status), sess.FinishedAt, sess.ResultCount, sess.ID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

const sessionColumns = `id, keywords, location, platforms, status, started_at, finished_at, result_count`

// GetSession retrieves a single session by its ID.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (extract.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM extraction_sessions WHERE id = $1;`
	sess, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return extract.Session{}, store.ErrNotFound
		}
		return extract.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions retrieves sessions newest first, with optional status filtering.
func (s *SessionStore) ListSessions(
	ctx context.Context,
	status *extract.Status,
	limit,
	offset int,
) ([]extract.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM extraction_sessions
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []extract.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListRecords retrieves a session's records in insertion order.
func (s *SessionStore) ListRecords(ctx context.Context, sessionID string, limit, offset int) ([]extract.Record, error) {
	const query = `
		SELECT phone, name, address, source, extracted_at
		FROM extraction_records
		WHERE session_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []extract.Record
	for rows.Next() {
		var r extract.Record
		if err := rows.Scan(&r.Phone, &r.Name, &r.Address, &r.Source, &r.ExtractedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanSession(row pgx.Row) (extract.Session, error) {
	var (
		sess   extract.Session
		status string
	)
	err := row.Scan(
		&sess.ID,
		&sess.Query.Keywords,
		&sess.Query.Location,
		&sess.Query.Platforms,
		&status,
		&sess.StartedAt,
		&sess.FinishedAt,
		&sess.ResultCount,
	)
	if err != nil {
		return extract.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = extract.Status(status)
	return sess, nil
}

var _ store.SessionRepository = (*SessionStore)(nil)
