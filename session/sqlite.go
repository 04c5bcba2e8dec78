package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/convomesh/convomesh/core"
)

// SQLiteStore persists sessions and transcripts in a local SQLite database.
// Snapshots are stored as JSON; the schema is created on open. Suited to
// durable single-node deployments and integration tests (use ":memory:" as
// the DSN).
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id       TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
`

// NewSQLiteStore opens (or creates) the database at dsn and prepares the
// schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create allocates and persists a fresh session, overwriting any existing one.
func (s *SQLiteStore) Create(ctx context.Context, id string) (*core.Session, error) {
	sess := core.NewSession(id)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns an existing session or core.ErrSessionNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Session, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", id, err)
	}
	var sess core.Session
	if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save persists a full session snapshot, last write wins.
func (s *SQLiteStore) Save(ctx context.Context, session *core.Session) error {
	snapshot, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, snapshot) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot`,
		session.ID, string(snapshot))
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

// ApplyDataDelta merges collected-field values into the stored session.
func (s *SQLiteStore) ApplyDataDelta(ctx context.Context, id string, delta map[string]any) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.MergeData(delta)
	return s.Save(ctx, sess)
}

// UpdateRouteStep updates the stored route/step position.
func (s *SQLiteStore) UpdateRouteStep(ctx context.Context, id string, route *core.RouteRef, step *core.StepRef) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.CurrentRoute = route
	sess.CurrentStep = step
	return s.Save(ctx, sess)
}

// IncrementMessageCount bumps the stored message counter.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.MessageCount++
	return s.Save(ctx, sess)
}

// Delete removes the session and its history.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrSessionNotFound
	}
	return s.DeleteBySession(ctx, id)
}

// Append adds an event to the session's history.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, payload) VALUES (?, ?)`,
		sessionID, string(payload))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// List returns the session's history in append order.
func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteBySession removes all history for the session.
func (s *SQLiteStore) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID)
	return err
}
