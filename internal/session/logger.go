package session

import (
	"context"
	"log/slog"
	"sync"
)

// LoggingStore wraps a Store and logs failures instead of silently
// discarding them. Persistence is best-effort for the conversation (the
// in-memory state stays authoritative), so callers often ignore the returned
// error; this wrapper keeps the failure visible.
type LoggingStore struct {
	Store
	logger *slog.Logger

	mu     sync.Mutex
	warned map[string]bool
}

func NewLoggingStore(store Store, logger *slog.Logger) *LoggingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingStore{Store: store, logger: logger, warned: make(map[string]bool)}
}

// logOnce warns once per operation type to avoid flooding the log when
// storage stays broken.
func (s *LoggingStore) logOnce(op string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warned[op] {
		return
	}
	s.warned[op] = true
	s.logger.Warn("session store operation failed", "op", op, "error", err)
}

func (s *LoggingStore) CreateSession(ctx context.Context, workspaceID, name string) (Session, error) {
	sess, err := s.Store.CreateSession(ctx, workspaceID, name)
	s.logOnce("CreateSession", err)
	return sess, err
}

func (s *LoggingStore) RenameSession(ctx context.Context, id, name string) error {
	err := s.Store.RenameSession(ctx, id, name)
	s.logOnce("RenameSession", err)
	return err
}

func (s *LoggingStore) DeleteSession(ctx context.Context, id string) error {
	err := s.Store.DeleteSession(ctx, id)
	s.logOnce("DeleteSession", err)
	return err
}

func (s *LoggingStore) SaveSnapshot(ctx context.Context, id string, snap Snapshot) error {
	err := s.Store.SaveSnapshot(ctx, id, snap)
	s.logOnce("SaveSnapshot", err)
	return err
}

func (s *LoggingStore) LoadSnapshot(ctx context.Context, id string) (Snapshot, error) {
	snap, err := s.Store.LoadSnapshot(ctx, id)
	s.logOnce("LoadSnapshot", err)
	return snap, err
}
