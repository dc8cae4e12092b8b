package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in RAM with a TTL. Suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
	ttl   time.Duration
}

// NewMemoryStore creates an in-memory snapshot store with the given
// TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		snaps: make(map[string]*Snapshot),
		ttl:   ttl,
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	cp.SavedAt = time.Now()
	s.snaps[snap.SessionID] = &cp
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[sessionID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, sessionID)
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for range ticker.C {
		s.cleanup()
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.ttl)
	for id, snap := range s.snaps {
		if snap.SavedAt.Before(cutoff) {
			delete(s.snaps, id)
		}
	}
}
