package storage

import (
	"sync"
	"time"

	"github.com/optimis/resque-pool/internal/poolconfig"
)

// Snapshot is one published effective configuration.
type Snapshot struct {
	Config      poolconfig.Effective
	Environment string
	Source      string
	LoadedAt    time.Time
	Generation  uint64
}

func (s Snapshot) clone() Snapshot {
	s.Config = s.Config.Clone()
	return s
}

// Storage holds the current snapshot.
type Storage interface {
	Current() Snapshot
	Publish(next Snapshot) Snapshot
}

// MemoryStorage keeps the snapshot in-memory and guards access with a RWMutex.
// Readers see either the previous or the next snapshot, never a mix.
type MemoryStorage struct {
	mu         sync.RWMutex
	current    Snapshot
	generation uint64
}

// NewMemoryStorage initialises storage with an empty configuration.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		current: Snapshot{Config: poolconfig.Effective{}},
	}
}

// Current returns a defensive copy of the published snapshot.
func (s *MemoryStorage) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current.clone()
}

// Publish replaces the snapshot with a copy of next, stamping the next
// generation number, and returns what was stored.
func (s *MemoryStorage) Publish(next Snapshot) Snapshot {
	next = next.clone()

	s.mu.Lock()
	s.generation++
	next.Generation = s.generation
	s.current = next
	s.mu.Unlock()

	return next.clone()
}
