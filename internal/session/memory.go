package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a mutex-guarded in-memory store for dev and tests.
type Memory struct {
	ttl time.Duration
	now clock

	mu       sync.Mutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	identity Identity
	expires  time.Time
}

// NewMemory creates an in-memory store with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Memory{ttl: ttl, now: time.Now, sessions: make(map[string]memoryEntry)}
}

// Create issues a fresh opaque token for the identity.
func (m *Memory) Create(ctx context.Context, id Identity) (string, error) {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = memoryEntry{identity: id, expires: m.now().Add(m.ttl)}
	return token, nil
}

// Lookup resolves a token, dropping it if expired.
func (m *Memory) Lookup(ctx context.Context, token string) (Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[token]
	if !ok {
		return Identity{}, false, nil
	}
	if m.now().After(entry.expires) {
		delete(m.sessions, token)
		return Identity{}, false, nil
	}
	return entry.identity, true, nil
}

// Invalidate removes a token.
func (m *Memory) Invalidate(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}
