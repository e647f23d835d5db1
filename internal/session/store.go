// Package session provides the per-session guard flags that keep expensive
// opportunistic work (reconciliation on first dashboard load) from running
// more than once per active session. The guard is an explicit handle passed
// into the call, not component-local state.
package session

import (
	"context"
	"sync"
	"time"
)

// Store hands out single-use flags scoped to a session.
type Store interface {
	// TryAcquire claims the named flag within the session. It returns true
	// exactly once per (sessionID, flag) pair for the lifetime of the session;
	// every later call returns false.
	TryAcquire(ctx context.Context, sessionID, flag string) (bool, error)
}

// MemoryStore is the in-process Store used when Redis is disabled and in tests.
// Flags expire after ttl so abandoned sessions do not accumulate.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	flags map[string]time.Time
	nowFn func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given flag TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		ttl:   ttl,
		flags: make(map[string]time.Time),
		nowFn: time.Now,
	}
}

// TryAcquire claims the flag, pruning expired entries as a side effect.
func (s *MemoryStore) TryAcquire(_ context.Context, sessionID, flag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	for key, expires := range s.flags {
		if now.After(expires) {
			delete(s.flags, key)
		}
	}

	key := sessionID + "|" + flag
	if _, held := s.flags[key]; held {
		return false, nil
	}
	s.flags[key] = now.Add(s.ttl)
	return true, nil
}
