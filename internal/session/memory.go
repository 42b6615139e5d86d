package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Used when persistence is
// disabled and throughout the tests.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]Session
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]Session),
		snapshots: make(map[string]Snapshot),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, workspaceID, name string) (Session, error) {
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
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess, nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, workspaceID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, sess := range m.sessions {
		if sess.WorkspaceID == workspaceID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) MostRecent(ctx context.Context, workspaceID string) (Session, bool, error) {
	sessions, err := m.ListSessions(ctx, workspaceID)
	if err != nil || len(sessions) == 0 {
		return Session{}, false, err
	}
	return sessions[0], true, nil
}

func (m *MemoryStore) RenameSession(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Name = name
	m.sessions[id] = sess
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.snapshots, id)
	return nil
}

func (m *MemoryStore) SaveSnapshot(ctx context.Context, id string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.UpdatedAt = time.Now().UTC()
	sess.Stats = snap.Stats
	m.sessions[id] = sess
	m.snapshots[id] = snap
	return nil
}

func (m *MemoryStore) LoadSnapshot(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return Snapshot{}, ErrNotFound
	}
	return m.snapshots[id], nil
}

func (m *MemoryStore) Close() error { return nil }
