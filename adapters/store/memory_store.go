package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/ports"
)

// sweepInterval is the minimum time between two purges of expired entries
const sweepInterval = time.Minute

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-memory implementation of the Store interface.
// Entries live for the process lifetime or until their TTL passes.
type MemoryStore struct {
	data      map[string]entry
	mu        sync.Mutex
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		data:      make(map[string]entry),
		now:       now,
		lastSweep: now(),
	}
}

// sweep drops expired entries at most once per sweepInterval. Callers hold mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, e := range s.data {
		if e.expired(now) {
			delete(s.data, key)
		}
	}
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// Set stores a value, replacing any previous one
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	s.data[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

// Get returns the value for key
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return "", core.ErrNotFound
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return "", core.ErrNotFound
	}
	return e.value, nil
}

// SetNX stores the value only if no live entry exists for key
func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	if e, ok := s.data[key]; ok && !e.expired(s.now()) {
		return false, nil
	}
	s.data[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return true, nil
}
