package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the durable home of sessions and their snapshots. This process is
// the sole writer.
type Store interface {
	CreateSession(ctx context.Context, workspaceID, name string) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, workspaceID string) ([]Session, error)
	// MostRecent returns the workspace's most recently updated session, or
	// ok=false when the workspace has none.
	MostRecent(ctx context.Context, workspaceID string) (Session, bool, error)
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) error
	// SaveSnapshot persists the conversation and workspace files for a
	// session as a single atomic write and bumps its updated-at.
	SaveSnapshot(ctx context.Context, id string, snap Snapshot) error
	LoadSnapshot(ctx context.Context, id string) (Snapshot, error)
	Close() error
}

// Config controls where and whether sessions persist.
type Config struct {
	Enabled bool
	Path    string // database file; empty means the default location
}

// DefaultDBPath places the database under the user config directory.
func DefaultDBPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "sheetwise", "sessions.db"), nil
}
