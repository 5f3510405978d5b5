// Package devcode provides an in-memory store of plain verification codes,
// used only when dev code mode is enabled (GET /dev/verification/code).
package devcode

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes keyed by channel and subject for dev-only retrieval.
// Not used in production.
type Store interface {
	// Put stores code for the channel/subject until expiresAt.
	Put(ctx context.Context, channel, subject, code string, expiresAt time.Time)
	// Get returns the code for the channel/subject if present and not expired.
	Get(ctx context.Context, channel, subject string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev code store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func key(channel, subject string) string {
	return channel + "\x00" + subject
}

// Put stores code for the channel/subject until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, channel, subject, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(channel, subject)] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for the channel/subject if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, channel, subject string) (string, bool) {
	k := key(channel, subject)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
