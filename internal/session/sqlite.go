// ABOUTME: SQLite implementation of the session cache using modernc.org/sqlite
// ABOUTME: Single-file store with automatic schema creation and WAL mode

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a session cache at the given path. The schema is
// created if it doesn't exist; parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "sessions")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening session cache: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			target_key   TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			agent_name   TEXT NOT NULL,
			transport    TEXT,
			created_at   DATETIME NOT NULL,
			last_used_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_last_used
			ON sessions(last_used_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("session cache initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Get returns the cached record for a target key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, targetKey string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, agent_name, transport, created_at, last_used_at
		FROM sessions WHERE target_key = ?`, targetKey)

	var rec Record
	var transport sql.NullString
	err := row.Scan(&rec.SessionID, &rec.AgentName, &transport, &rec.CreatedAt, &rec.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	rec.Transport = transport.String
	return &rec, nil
}

// Put upserts the record for a target key, refreshing last_used_at and
// preserving created_at for existing entries.
func (s *SQLiteStore) Put(ctx context.Context, targetKey, sessionID, agentName, transport string) error {
	if agentName == "" {
		agentName = targetKey
	}
	var transportVal sql.NullString
	if transport != "" {
		transportVal = sql.NullString{String: transport, Valid: true}
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (target_key, session_id, agent_name, transport, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_key) DO UPDATE SET
			session_id = excluded.session_id,
			agent_name = excluded.agent_name,
			transport = excluded.transport,
			last_used_at = excluded.last_used_at`,
		targetKey, sessionID, agentName, transportVal, now, now)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// List returns all cached entries, most recently used first.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_key, session_id, agent_name, transport, created_at, last_used_at
		FROM sessions ORDER BY last_used_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var transport sql.NullString
		if err := rows.Scan(&e.TargetKey, &e.SessionID, &e.AgentName, &transport,
			&e.CreatedAt, &e.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		e.Transport = transport.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes all cached entries.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
