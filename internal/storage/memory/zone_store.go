package memory

import (
	"context"
	"sort"
	"sync"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// ZoneStore is an in-memory implementation of storage.ZoneStore.
type ZoneStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ZoneDefinition // keyed by zone_id
}

// NewZoneStore creates a new in-memory zone store.
func NewZoneStore() *ZoneStore {
	return &ZoneStore{
		data: make(map[string]*domain.ZoneDefinition),
	}
}

func copyZone(z *domain.ZoneDefinition) *domain.ZoneDefinition {
	c := *z
	c.Polygon = append([]domain.Vertex(nil), z.Polygon...)
	return &c
}

// Upsert inserts or replaces a zone definition.
func (s *ZoneStore) Upsert(_ context.Context, z *domain.ZoneDefinition) error {
	if z == nil || z.ZoneID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[z.ZoneID] = copyZone(z)
	return nil
}

// GetByID retrieves a zone by its ID. Returns ErrNotFound if not exists.
func (s *ZoneStore) GetByID(_ context.Context, zoneID string) (*domain.ZoneDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	z, exists := s.data[zoneID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyZone(z), nil
}

// ListActive retrieves all active zones ordered by zone_id ASC.
func (s *ZoneStore) ListActive(_ context.Context) ([]domain.ZoneDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ZoneDefinition, 0, len(s.data))
	for _, z := range s.data {
		if z.Active {
			result = append(result, *copyZone(z))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ZoneID < result[j].ZoneID
	})
	return result, nil
}

// Deactivate marks a zone inactive. Returns ErrNotFound if not exists.
func (s *ZoneStore) Deactivate(_ context.Context, zoneID string, atMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, exists := s.data[zoneID]
	if !exists {
		return storage.ErrNotFound
	}
	z.Active = false
	z.UpdatedAtMs = atMs
	return nil
}

var _ storage.ZoneStore = (*ZoneStore)(nil)
