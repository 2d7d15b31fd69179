package memory

import (
	"context"
	"sync"

	"tourist-safety-engine/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]storage.IngestionCheckpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]storage.IngestionCheckpoint),
	}
}

// GetCheckpoint returns the checkpoint for a source.
func (s *CheckpointStore) GetCheckpoint(_ context.Context, source string) (*storage.IngestionCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[source]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

// SetCheckpoint saves the checkpoint for a source.
func (s *CheckpointStore) SetCheckpoint(_ context.Context, cp *storage.IngestionCheckpoint) error {
	if cp == nil || cp.Source == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[cp.Source] = *cp
	return nil
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)
