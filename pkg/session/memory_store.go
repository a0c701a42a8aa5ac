package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"librarydesk/internal/util"
)

// sweepEvery is how many saves pass between scans for expired entries.
const sweepEvery = 64

type memoryEntry struct {
	session Session
	expires time.Time
}

// MemoryStore keeps sessions in process memory (single instance only).
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	saves   int
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, s Session) (string, error) {
	if !s.Authenticated() {
		return "", ErrNoSession
	}
	now := m.now()
	ttl := s.lifetime(m.ttl, now)
	if ttl <= 0 {
		return "", errors.New("session: upstream token already expired")
	}
	key := util.NewID()
	m.mu.Lock()
	m.entries[key] = memoryEntry{session: s, expires: now.Add(ttl)}
	m.saves++
	if m.saves%sweepEvery == 0 {
		m.sweepLocked(now)
	}
	m.mu.Unlock()
	return key, nil
}

// sweepLocked drops expired entries that were never loaded again. Callers hold mu.
func (m *MemoryStore) sweepLocked(now time.Time) {
	for key, entry := range m.entries {
		if now.After(entry.expires) {
			delete(m.entries, key)
		}
	}
}

func (m *MemoryStore) Load(_ context.Context, key string) (Session, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if m.now().After(entry.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return Session{}, false, nil
	}
	return entry.session, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
