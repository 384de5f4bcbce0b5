// Package sqlite provides a single-file session store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/research-infograph/internal/research"
)

const schema = `
CREATE TABLE IF NOT EXISTS research_sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	prompt     TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS sources (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL,
	snippet    TEXT NOT NULL DEFAULT '',
	fetched_at DATETIME,
	confidence REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_session ON sources(session_id);
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
CREATE TABLE IF NOT EXISTS infographics (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  INTEGER NOT NULL UNIQUE REFERENCES research_sessions(id) ON DELETE CASCADE,
	image_url   TEXT NOT NULL,
	layout_meta TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);
`

// SessionStore implements research.SessionStore on a SQLite file. Writes go
// through a single connection.
type SessionStore struct {
	db     *sql.DB
	clock  research.Clock
	logger *zap.Logger
}

// Open creates the database file and schema when missing.
func Open(ctx context.Context, path string, clock research.Clock, logger *zap.Logger) (*SessionStore, error) {
	if path == "" {
		return nil, &research.ConfigError{Field: "db.sqlite_path", Reason: "is required for sqlite"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SessionStore{db: db, clock: clock, logger: logger}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SessionStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// CreateSession inserts the session and the prompt as its first user message.
func (s *SessionStore) CreateSession(ctx context.Context, prompt string) (research.Session, error) {
	now := s.clock.Now().UTC()
	session := research.Session{Prompt: prompt, Status: research.SessionStatusCreated, CreatedAt: now}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO research_sessions (prompt, status, created_at) VALUES (?, ?, ?)`,
			prompt, session.Status, now)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if session.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("session id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			session.ID, "user", prompt, now); err != nil {
			return fmt.Errorf("insert prompt message: %w", err)
		}
		return nil
	})
	if err != nil {
		return research.Session{}, err
	}
	return session, nil
}

// GetSession returns research.ErrSessionNotFound for unknown IDs.
func (s *SessionStore) GetSession(ctx context.Context, id int64) (research.Session, error) {
	var session research.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, prompt, status, created_at FROM research_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.Prompt, &session.Status, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, status, created_at FROM research_sessions
		WHERE ? = '' OR instr(lower(prompt), lower(?)) > 0
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		query, query, limit)
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
		session.CreatedAt = session.CreatedAt.UTC()
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// SetStatus returns research.ErrSessionNotFound for unknown IDs.
func (s *SessionStore) SetStatus(ctx context.Context, sessionID int64, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE research_sessions SET status = ? WHERE id = ?`, status, sessionID)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set status for session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	return nil
}

// AddSource inserts one source after checking the session exists.
func (s *SessionStore) AddSource(ctx context.Context, sessionID int64, in research.SourceInput) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sources (session_id, title, url, snippet, fetched_at, confidence) VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, in.Title, in.URL, in.Snippet, nullTime(in.FetchedAt), in.Confidence)
		if err != nil {
			return fmt.Errorf("insert source %s: %w", in.URL, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("source id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET title = ?, snippet = ?, fetched_at = ? WHERE id = ? AND session_id = ?`,
		title, snippet, nullTime(fetchedAt), sourceID, sessionID)
	if err != nil {
		return fmt.Errorf("update source %d: %w", sourceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update source %d: %w", sourceID, research.ErrSourceNotFound)
	}
	return nil
}

// AppendMessage inserts one message after checking the session exists.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID int64, msg research.Message) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, msg.Role, msg.Content, createdAt.UTC()); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
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
	ids := make([]int64, 0, len(sources))

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO sources (session_id, title, url, snippet, fetched_at, confidence) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare source insert: %w", err)
		}
		defer stmt.Close()

		for _, in := range sources {
			res, err := stmt.ExecContext(ctx, sessionID, in.Title, in.URL, in.Snippet, nullTime(in.FetchedAt), in.Confidence)
			if err != nil {
				return fmt.Errorf("insert source %s: %w", in.URL, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("source id: %w", err)
			}
			ids = append(ids, id)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, msg.Role, msg.Content, createdAt.UTC()); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListSources returns the session's sources ordered by ID.
func (s *SessionStore) ListSources(ctx context.Context, sessionID int64) ([]research.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, title, url, snippet, fetched_at, confidence
		FROM sources WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []research.SourceRecord
	for rows.Next() {
		var (
			rec       research.SourceRecord
			fetchedAt sql.NullTime
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id`,
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
		msg.CreatedAt = msg.CreatedAt.UTC()
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
		layout  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, image_url, layout_meta, created_at FROM infographics WHERE session_id = ?`,
		sessionID,
	).Scan(&graphic.ID, &graphic.SessionID, &graphic.ImageURL, &layout, &graphic.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get infographic: %w", err)
	}
	if err := json.Unmarshal([]byte(layout), &graphic.Layout); err != nil {
		return nil, fmt.Errorf("decode layout meta: %w", err)
	}
	graphic.CreatedAt = graphic.CreatedAt.UTC()
	return &graphic, nil
}

// CompleteSession upserts the infographic and marks the session completed.
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

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE research_sessions SET status = ? WHERE id = ?`,
			research.SessionStatusCompleted, sessionID)
		if err != nil {
			return fmt.Errorf("update session status: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("complete session %d: %w", sessionID, research.ErrSessionNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO infographics (session_id, image_url, layout_meta, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				image_url = excluded.image_url,
				layout_meta = excluded.layout_meta,
				created_at = excluded.created_at`,
			sessionID, imageURL, string(layoutJSON), now); err != nil {
			return fmt.Errorf("upsert infographic: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func sessionExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM research_sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %d: %w", id, research.ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("check session %d: %w", id, err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
