package engine

import (
	"context"
	"sync"
)

// MemoryCacheStore implements CacheStore using an in-memory map. It is the default when no
// redis address is configured.
type MemoryCacheStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		snapshots: make(map[string]*Snapshot),
	}
}

func (s *MemoryCacheStore) Get(_ context.Context, sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[sessionID], nil
}

func (s *MemoryCacheStore) Put(_ context.Context, sessionID string, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[sessionID] = snap
	return nil
}

func (s *MemoryCacheStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

// Sessions returns the ids of all cached sessions.
func (s *MemoryCacheStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		list = append(list, id)
	}
	return list
}
