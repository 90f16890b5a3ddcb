package session

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	rec     Record
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memEntry
	closed   bool
	now      func() time.Time
}

// NewMemoryStore returns a store whose sessions expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sessions[rec.Token] = memEntry{rec: *rec, expires: m.now().Add(m.ttl)}
	m.cleanup()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, token string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expires) {
		delete(m.sessions, token)
		return nil, nil
	}
	rec := e.rec
	return &rec, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup()
	return len(m.sessions), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = make(map[string]memEntry)
	return nil
}

// cleanup removes expired sessions. Caller must hold mu.
func (m *MemoryStore) cleanup() {
	now := m.now()
	for token, e := range m.sessions {
		if now.After(e.expires) {
			delete(m.sessions, token)
		}
	}
}
