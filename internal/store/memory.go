package store

import (
	"context"
	"sync"

	"tools.zach/dev/timetrack/internal/activity"
)

// Memory keeps sessions in a map. Nothing survives the process.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]activity.Session
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]activity.Session)}
}

// Upsert stores a copy of sess.
func (m *Memory) Upsert(ctx context.Context, sess activity.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

// Delete removes id if present.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Get returns a copy of the session with id.
func (m *Memory) Get(ctx context.Context, id string) (activity.Session, error) {
	if err := ctx.Err(); err != nil {
		return activity.Session{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return activity.Session{}, ErrNotFound
	}
	return s.Clone(), nil
}

// Query returns copies of the matching sessions ordered by start time.
func (m *Memory) Query(ctx context.Context, f activity.Filter) ([]activity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := make([]activity.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	return filterSessions(all, f), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
