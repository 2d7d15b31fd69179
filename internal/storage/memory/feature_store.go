package memory

import (
	"context"
	"sort"
	"sync"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data []domain.FeatureRecord
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{}
}

// InsertBulk adds multiple feature records.
func (s *FeatureStore) InsertBulk(_ context.Context, records []domain.FeatureRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.EntityID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append(s.data, records...)
	return nil
}

// GetByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
func (s *FeatureStore) GetByTimeRange(_ context.Context, entityID string, start, end int64) ([]domain.FeatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.FeatureRecord
	for _, r := range s.data {
		if r.EntityID == entityID && r.TimestampMs >= start && r.TimestampMs <= end {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

// GetSince retrieves up to limit records with timestamp >= since, ordered by (entity_id, timestamp) ASC.
func (s *FeatureStore) GetSince(_ context.Context, since int64, limit int) ([]domain.FeatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.FeatureRecord
	for _, r := range s.data {
		if r.TimestampMs >= since {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].EntityID != result[j].EntityID {
			return result[i].EntityID < result[j].EntityID
		}
		return result[i].TimestampMs < result[j].TimestampMs
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.FeatureStore = (*FeatureStore)(nil)

// Prune drops records older than beforeMs and returns how many were removed.
func (s *FeatureStore) Prune(beforeMs int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[:0]
	for _, r := range s.data {
		if r.TimestampMs >= beforeMs {
			kept = append(kept, r)
		}
	}
	n := len(s.data) - len(kept)
	clear(s.data[len(kept):])
	s.data = kept
	return n
}
