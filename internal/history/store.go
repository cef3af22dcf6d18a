// Package history persists chat transcripts to a local sqlite database.
// The store is a server-side log of exchanges; request handling never reads
// from it, since callers carry their own conversation history.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Message is one persisted transcript row.
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Text      string
	CreatedAt time.Time
}

// Store wraps the sqlite transcript database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one message under the given session, creating the session
// row on first use.
func (s *Store) Append(ctx context.Context, sessionID, role, text string) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, start_time) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		sessionID, now); err != nil {
		return fmt.Errorf("history: ensure session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		sessionID, role, text, now); err != nil {
		return fmt.Errorf("history: append message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages for the session in chronological
// order. limit <= 0 means no bound.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	q := `SELECT id, session_id, role, content, timestamp FROM messages
	      WHERE session_id = ? ORDER BY id ASC`
	args := []any{sessionID}
	if limit > 0 {
		q = `SELECT id, session_id, role, content, timestamp FROM (
		       SELECT id, session_id, role, content, timestamp FROM messages
		       WHERE session_id = ? ORDER BY id DESC LIMIT ?
		     ) ORDER BY id ASC`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate messages: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
