package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/voicenav/internal/config"
	_ "modernc.org/sqlite"
)

// Event types recorded for a listening session.
const (
	TypeSessionStarted   = "session.started"
	TypeTranscriptFinal  = "transcript.final"
	TypeDispatchMatched  = "dispatch.matched"
	TypeDispatchNoMatch  = "dispatch.unmatched"
	TypeRecognitionError = "recognition.error"
	TypeSessionEnded     = "session.ended"
	TypeTextSubmitted    = "text.submitted"
)

// Session is one listening session.
type Session struct {
	ID        string     `json:"id"`
	Platform  string     `json:"platform"`
	Language  string     `json:"language"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Event is a timeline entry of a session.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store keeps the voice session timeline in SQLite. In ephemeral mode it
// records nothing.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    platform TEXT,
    language TEXT,
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    end_reason TEXT
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload BLOB,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session_created ON events(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Enabled reports whether events are persisted.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.db.Close()
}

// StartSession inserts the session row. Starting a known session is a no-op.
func (s *Store) StartSession(ctx context.Context, sess Session) error {
	if !s.Enabled() {
		return nil
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, platform, language, started_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sess.ID, sess.Platform, sess.Language, sess.StartedAt.UnixNano())
	return err
}

// EndSession stamps the end time and reason of a session.
func (s *Store) EndSession(ctx context.Context, sessionID, reason string) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE session_id = ? AND ended_at IS NULL`,
		s.clock().UnixNano(), reason, sessionID)
	return err
}

// Record appends an event; payload is stored as JSON.
func (s *Store) Record(ctx context.Context, sessionID, eventType string, payload any) error {
	if !s.Enabled() {
		return nil
	}
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, event_type, payload, created_at) VALUES(?, ?, ?, ?)`,
		sessionID, eventType, data, s.clock().UnixNano())
	return err
}

// ListSessions returns up to limit sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, platform, language, started_at, ended_at, end_reason
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess    Session
			started int64
			ended   sql.NullInt64
			reason  sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.Platform, &sess.Language, &started, &ended, &reason); err != nil {
			return nil, err
		}
		sess.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			ts := time.Unix(0, ended.Int64).UTC()
			sess.EndedAt = &ts
		}
		sess.EndReason = reason.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListSessionEvents retrieves up to limit events for a session ordered ascending by time.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, payload, created_at
		 FROM events WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			payload []byte
			created int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &created); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.Enabled() {
		return nil
	}
	if s.cfg.RetentionMode != "persistent" && s.cfg.RetentionMode != "session" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Ensure checks the store matches its retention mode.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
