// Package history keeps a local log of sync session outcomes.
//
// The log is an embedded SQLite database in the state directory, opened
// in WAL mode. It is purely informational: the sync cycle records into
// it best-effort and never blocks on it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Session is one recorded sync run.
type Session struct {
	ID         int64
	VaultPath  string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	Phase      string
	Conflicts  int
	Decision   string
	Pushed     bool
}

// Store wraps the history database.
type Store struct {
	conn *sql.DB
}

// Open creates or opens the history database at path. Callers must
// Close the store when done.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	// Single writer is enough; WAL keeps concurrent readers cheap.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	vault_path  TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	phase       TEXT NOT NULL,
	conflicts   INTEGER NOT NULL DEFAULT 0,
	decision    TEXT NOT NULL DEFAULT '',
	pushed      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_vault ON sessions(vault_path, started_at DESC);
`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// RecordSession appends one session to the log.
func (s *Store) RecordSession(ctx context.Context, sess Session) error {
	const q = `
INSERT INTO sessions (vault_path, started_at, finished_at, outcome, phase, conflicts, decision, pushed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	pushed := 0
	if sess.Pushed {
		pushed = 1
	}
	_, err := s.conn.ExecContext(ctx, q,
		sess.VaultPath,
		sess.StartedAt.UTC().Format(time.RFC3339),
		sess.FinishedAt.UTC().Format(time.RFC3339),
		sess.Outcome,
		sess.Phase,
		sess.Conflicts,
		sess.Decision,
		pushed,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Recent returns the latest sessions for a vault, newest first. An
// empty vaultPath returns sessions across all vaults.
func (s *Store) Recent(ctx context.Context, vaultPath string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}

	q := `
SELECT id, vault_path, started_at, finished_at, outcome, phase, conflicts, decision, pushed
FROM sessions`
	args := []any{}
	if vaultPath != "" {
		q += " WHERE vault_path = ?"
		args = append(args, vaultPath)
	}
	q += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess             Session
			started, ended   string
			pushed           int
		)
		if err := rows.Scan(&sess.ID, &sess.VaultPath, &started, &ended,
			&sess.Outcome, &sess.Phase, &sess.Conflicts, &sess.Decision, &pushed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt, _ = time.Parse(time.RFC3339, started)
		sess.FinishedAt, _ = time.Parse(time.RFC3339, ended)
		sess.Pushed = pushed != 0
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
