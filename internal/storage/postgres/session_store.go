// Package postgres provides the Postgres-backed session store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/research"
)

// Schema creates the tables the store needs. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS research_sessions (
	id BIGSERIAL PRIMARY KEY,
	prompt TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sources (
	id BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	snippet TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ,
	confidence DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS infographics (
	id BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL UNIQUE REFERENCES research_sessions(id) ON DELETE CASCADE,
	image_url TEXT NOT NULL,
	layout_meta JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// SessionStore implements research.SessionStore on Postgres.
type SessionStore struct {
	pool   pgxPool
	clock  research.Clock
	logger *zap.Logger
}

// NewSessionStore connects a pool using cfg.
func NewSessionStore(ctx context.Context, cfg Config, clock research.Clock, logger *zap.Logger) (*SessionStore, error) {
	if cfg.DSN == "" {
		return nil, &research.ConfigError{Field: "db.dsn", Reason: "is required for postgres"}
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
	return NewSessionStoreWithPool(pool, clock, logger)
}

// NewSessionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSessionStoreWithPool(pool pgxPool, clock research.Clock, logger *zap.Logger) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{pool: pool, clock: clock, logger: logger}, nil
}

// Migrate applies Schema.
func (s *SessionStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *SessionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateSession inserts the session and the prompt as its first user message.
func (s *SessionStore) CreateSession(ctx context.Context, prompt string) (research.Session, error) {
	now := s.clock.Now().UTC()
	session := research.Session{Prompt: prompt, Status: research.SessionStatusCreated, CreatedAt: now}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return research.Session{}, fmt.Errorf("begin create session: %w", err)
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO research_sessions (prompt, status, created_at) VALUES ($1, $2, $3) RETURNING id`,
		prompt, session.Status, now,
	).Scan(&session.ID)
	if err != nil {
		return research.Session{}, s.rollback(ctx, tx, fmt.Errorf("insert session: %w", err))
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		session.ID, "user", prompt, now,
	); err != nil {
		return research.Session{}, s.rollback(ctx, tx, fmt.Errorf("insert prompt message: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return research.Session{}, fmt.Errorf("commit create session: %w", err)
	}
	return session, nil
}

// GetSession returns research.ErrSessionNotFound for unknown IDs.
func (s *SessionStore) GetSession(ctx context.Context, id int64) (research.Session, error) {
	var session research.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, prompt, status, created_at FROM research_sessions WHERE id = $1`, id,
	).Scan(&session.ID, &session.Prompt, &session.Status, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return research.Session{}, fmt.Errorf("get session %d: %w", id, research.ErrSessionNotFound)
	}
	if err != nil {
		return research.Session{}, fmt.Errorf("get session %d: %w", id, err)
	}
	return session, nil
}

// ListSessions matches prompts case-insensitively, newest first.
func (s *SessionStore) ListSessions(ctx context.Context, query string, limit int) ([]research.Session, error) {
	if limit <= 0 {
		limit = research.MaxListedSessions
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, prompt, status, created_at FROM research_sessions
WHERE $1 = '' OR strpos(lower(prompt), lower($1)) > 0
ORDER BY created_at DESC, id DESC LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []research.Session
	for rows.Next() {
		var session research.Session
		if err := rows.Scan(&session.ID, &session.Prompt, &session.Status, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// SetStatus returns research.ErrSessionNotFound for unknown IDs.
func (s *SessionStore) SetStatus(ctx context.Context, sessionID int64, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE research_sessions SET status = $1 WHERE id = $2`, status, sessionID)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set status for session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	return nil
}

// AddSource inserts one source after checking the session exists.
func (s *SessionStore) AddSource(ctx context.Context, sessionID int64, in research.SourceInput) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin add source: %w", err)
	}
	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return 0, s.rollback(ctx, tx, err)
	}
	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO sources (session_id, title, url, snippet, fetched_at, confidence)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sessionID, in.Title, in.URL, in.Snippet, nullableTime(in.FetchedAt), in.Confidence,
	).Scan(&id)
	if err != nil {
		return 0, s.rollback(ctx, tx, fmt.Errorf("insert source %s: %w", in.URL, err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit add source: %w", err)
	}
	return id, nil
}

// UpdateSource returns research.ErrSourceNotFound when the source is not in the session.
func (s *SessionStore) UpdateSource(
	ctx context.Context,
	sessionID, sourceID int64,
	title, snippet string,
	fetchedAt time.Time,
) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET title = $1, snippet = $2, fetched_at = $3 WHERE id = $4 AND session_id = $5`,
		title, snippet, nullableTime(fetchedAt), sourceID, sessionID)
	if err != nil {
		return fmt.Errorf("update source %d: %w", sourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update source %d: %w", sourceID, research.ErrSourceNotFound)
	}
	return nil
}

// AppendMessage inserts one message, mapping a missing session to
// research.ErrSessionNotFound.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID int64, msg research.Message) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO messages (session_id, role, content, created_at)
SELECT id, $2::text, $3::text, $4::timestamptz FROM research_sessions WHERE id = $1`,
		sessionID, msg.Role, msg.Content, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append message for session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	return nil
}

// PersistSources inserts every source and the message in one transaction.
func (s *SessionStore) PersistSources(
	ctx context.Context,
	sessionID int64,
	sources []research.SourceInput,
	msg research.Message,
) ([]int64, error) {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin persist sources: %w", err)
	}
	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return nil, s.rollback(ctx, tx, err)
	}
	ids := make([]int64, 0, len(sources))
	for _, in := range sources {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO sources (session_id, title, url, snippet, fetched_at, confidence)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			sessionID, in.Title, in.URL, in.Snippet, nullableTime(in.FetchedAt), in.Confidence,
		).Scan(&id)
		if err != nil {
			return nil, s.rollback(ctx, tx, fmt.Errorf("insert source %s: %w", in.URL, err))
		}
		ids = append(ids, id)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		sessionID, msg.Role, msg.Content, createdAt.UTC(),
	); err != nil {
		return nil, s.rollback(ctx, tx, fmt.Errorf("insert message: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit persist sources: %w", err)
	}
	return ids, nil
}

// ListSources returns the session's sources ordered by ID.
func (s *SessionStore) ListSources(ctx context.Context, sessionID int64) ([]research.SourceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, title, url, snippet, fetched_at, confidence
FROM sources WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []research.SourceRecord
	for rows.Next() {
		var (
			rec       research.SourceRecord
			fetchedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Title, &rec.URL, &rec.Snippet, &fetchedAt, &rec.Confidence); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if fetchedAt.Valid {
			ts := fetchedAt.Time.UTC()
			rec.FetchedAt = &ts
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// ListMessages returns the session's messages ordered by ID.
func (s *SessionStore) ListMessages(ctx context.Context, sessionID int64) ([]research.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = $1 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []research.Message
	for rows.Next() {
		var msg research.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// GetInfographic returns nil when the session has not been rendered yet.
func (s *SessionStore) GetInfographic(ctx context.Context, sessionID int64) (*research.Infographic, error) {
	var (
		graphic research.Infographic
		layout  []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, image_url, layout_meta, created_at FROM infographics WHERE session_id = $1`,
		sessionID,
	).Scan(&graphic.ID, &graphic.SessionID, &graphic.ImageURL, &layout, &graphic.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get infographic: %w", err)
	}
	if err := json.Unmarshal(layout, &graphic.Layout); err != nil {
		return nil, fmt.Errorf("decode layout meta: %w", err)
	}
	return &graphic, nil
}

// CompleteSession upserts the infographic and marks the session completed in
// one transaction.
func (s *SessionStore) CompleteSession(
	ctx context.Context,
	sessionID int64,
	imageURL string,
	layout research.LayoutMeta,
) error {
	layoutJSON, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("encode layout meta: %w", err)
	}
	now := s.clock.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete session: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`UPDATE research_sessions SET status = $1 WHERE id = $2`,
		research.SessionStatusCompleted, sessionID)
	if err != nil {
		return s.rollback(ctx, tx, fmt.Errorf("update session status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.rollback(ctx, tx, fmt.Errorf("complete session %d: %w", sessionID, research.ErrSessionNotFound))
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO infographics (session_id, image_url, layout_meta, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id) DO UPDATE
SET image_url = EXCLUDED.image_url, layout_meta = EXCLUDED.layout_meta, created_at = EXCLUDED.created_at`,
		sessionID, imageURL, layoutJSON, now,
	); err != nil {
		return s.rollback(ctx, tx, fmt.Errorf("upsert infographic: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete session: %w", err)
	}
	return nil
}

func (s *SessionStore) rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		s.logger.Warn("rollback failed", zap.Error(err), zap.NamedError("cause", cause))
	}
	return cause
}

func sessionExists(ctx context.Context, tx pgx.Tx, id int64) error {
	var found int64
	err := tx.QueryRow(ctx, `SELECT id FROM research_sessions WHERE id = $1 FOR SHARE`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %d: %w", id, research.ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("check session %d: %w", id, err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	ts := t.UTC()
	return &ts
}
