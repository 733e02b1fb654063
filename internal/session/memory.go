package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same expiry semantics as the
// Redis one. Used in tests and single-node setups without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	prefs    map[string]bool
	nowFunc  func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore builds an empty store with the given idle TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		prefs:    make(map[string]bool),
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (s *MemoryStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(tenantID, userID)
	entry, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	if !s.nowFunc().Before(entry.expiresAt) {
		delete(s.sessions, key)
		return nil, nil
	}
	sess := entry.session
	return &sess, nil
}

func (s *MemoryStore) Put(ctx context.Context, tenantID, userID string, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = s.nowFunc()
	s.sessions[sessionKey(tenantID, userID)] = memoryEntry{
		session:   *sess,
		expiresAt: s.nowFunc().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(tenantID, userID))
	return nil
}

func (s *MemoryStore) RemindersDisabled(ctx context.Context, tenantID, contact string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs[prefsKey(tenantID, contact)], nil
}

func (s *MemoryStore) SetRemindersDisabled(ctx context.Context, tenantID, contact string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefsKey(tenantID, contact)
	if disabled {
		s.prefs[key] = true
	} else {
		delete(s.prefs, key)
	}
	return nil
}
