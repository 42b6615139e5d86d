package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sheetwise/sheetwise/internal/transcript"
	"github.com/sheetwise/sheetwise/internal/workspace"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    completed_turns INTEGER DEFAULT 0,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS turns (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (session_id, sequence)
);

CREATE TABLE IF NOT EXISTS workspace_files (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    data BLOB NOT NULL,
    PRIMARY KEY (session_id, path)
);

CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id, updated_at DESC);
`

// NewSQLiteStore opens (creating if needed) the session database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		var err error
		path, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, workspaceID, name string) (Session, error) {
	if name == "" {
		name = DefaultName
	}
	now := time.Now().UTC()
	sess := Session{
		ID:          NewID(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, workspace_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkspaceID, sess.Name, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

const sessionColumns = `id, workspace_id, name, created_at, updated_at, completed_turns, input_tokens, output_tokens`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.WorkspaceID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt,
		&sess.Stats.CompletedTurns, &sess.Stats.InputTokens, &sess.Stats.OutputTokens)
	return sess, err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, workspaceID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE workspace_id = ? ORDER BY updated_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MostRecent(ctx context.Context, workspaceID string) (Session, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE workspace_id = ? ORDER BY updated_at DESC LIMIT 1`, workspaceID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("most recent session: %w", err)
	}
	return sess, true, nil
}

func (s *SQLiteStore) RenameSession(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the session's turns and workspace files and refreshes
// its metadata in one transaction, so a failure anywhere leaves the previous
// snapshot intact.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, id string, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ?, completed_turns = ?, input_tokens = ?, output_tokens = ? WHERE id = ?`,
		time.Now().UTC(), snap.Stats.CompletedTurns, snap.Stats.InputTokens, snap.Stats.OutputTokens, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	for i, turn := range snap.Turns {
		payload, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encode turn %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, sequence, payload) VALUES (?, ?, ?)`, id, i, string(payload)); err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workspace_files WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("clear workspace files: %w", err)
	}
	for _, file := range snap.Files {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workspace_files (session_id, path, data) VALUES (?, ?, ?)`, id, file.Path, file.Data); err != nil {
			return fmt.Errorf("insert workspace file %s: %w", file.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, id string) (Snapshot, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Stats: sess.Stats}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM turns WHERE session_id = ? ORDER BY sequence`, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return Snapshot{}, fmt.Errorf("scan turn: %w", err)
		}
		var turn transcript.Turn
		if err := json.Unmarshal([]byte(payload), &turn); err != nil {
			return Snapshot{}, fmt.Errorf("decode turn: %w", err)
		}
		snap.Turns = append(snap.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	fileRows, err := s.db.QueryContext(ctx,
		`SELECT path, data FROM workspace_files WHERE session_id = ? ORDER BY path`, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load workspace files: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var file workspace.File
		if err := fileRows.Scan(&file.Path, &file.Data); err != nil {
			return Snapshot{}, fmt.Errorf("scan workspace file: %w", err)
		}
		snap.Files = append(snap.Files, file)
	}
	return snap, fileRows.Err()
}
