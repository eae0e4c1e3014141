package session

import (
	"context"
	"sync"
	"time"
)

var (
	_ Store  = (*MemoryStore)(nil)
	_ Reaper = (*MemoryStore)(nil)
)

// MemoryStore はプロセス内マップでセッションを保持します。
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]Record
	now      func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。ttl が 0 以下なら DefaultTTL を使います。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      normalizeTTL(ttl),
		sessions: make(map[string]Record),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, userID string) (string, error) {
	record, err := newRecord(userID, s.now(), s.ttl)
	if err != nil {
		return "", err
	}
	key, err := NewKey()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = *record
	return key, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[key]
	if !ok {
		return "", false, nil
	}
	if record.Expired(s.now()) {
		delete(s.sessions, key)
		return "", false, nil
	}
	return record.UserID, true, nil
}

func (s *MemoryStore) Destroy(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

func (s *MemoryStore) DestroyUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, record := range s.sessions {
		if record.UserID == userID {
			delete(s.sessions, key)
			n++
		}
	}
	return n, nil
}

// Reap は期限切れのセッションを削除します。
func (s *MemoryStore) Reap(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for key, record := range s.sessions {
		if record.Expired(now) {
			delete(s.sessions, key)
			n++
		}
	}
	return n, nil
}
