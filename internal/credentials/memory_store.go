package credentials

import (
	"sync"

	"go.uber.org/zap"
)

type memoryBackend struct {
	mu   sync.Mutex
	snap Snapshot
}

func (m *memoryBackend) Load() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memoryBackend) Persist(snap Snapshot) error {
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	return nil
}

// NewMemoryStore returns a Store that lives only as long as the process.
func NewMemoryStore(initial Snapshot, logger *zap.Logger) *Store {
	store, _ := newStore(&memoryBackend{snap: initial}, logger)
	return store
}
