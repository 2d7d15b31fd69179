package memory

import (
	"context"
	"sort"
	"sync"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AlertRecord // keyed by intent_id
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		data: make(map[string]*domain.AlertRecord),
	}
}

// Insert adds a new alert. Returns ErrDuplicateKey if intent_id exists.
func (s *AlertStore) Insert(_ context.Context, a *domain.AlertRecord) error {
	if a == nil || a.IntentID == "" || a.EntityID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.IntentID]; exists {
		return storage.ErrDuplicateKey
	}

	c := *a
	if c.Status == "" {
		c.Status = domain.AlertStatusActive
	}
	s.data[a.IntentID] = &c
	return nil
}

// GetByID retrieves an alert by intent ID. Returns ErrNotFound if not exists.
func (s *AlertStore) GetByID(_ context.Context, intentID string) (*domain.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[intentID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	c := *a
	return &c, nil
}

// UpdateStatus moves an alert to a new status.
func (s *AlertStore) UpdateStatus(_ context.Context, intentID string, status domain.AlertStatus, atMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[intentID]
	if !exists {
		return storage.ErrNotFound
	}
	if !storage.CanTransition(a.Status, status) {
		return storage.ErrInvalidTransition
	}
	a.Status = status
	a.UpdatedAtMs = atMs
	return nil
}

// ListOpen retrieves active and acknowledged alerts for an entity, ordered by created_at ASC.
func (s *AlertStore) ListOpen(_ context.Context, entityID string) ([]*domain.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AlertRecord
	for _, a := range s.data {
		if a.EntityID == entityID && a.Status.IsOpen() {
			c := *a
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAtMs != result[j].CreatedAtMs {
			return result[i].CreatedAtMs < result[j].CreatedAtMs
		}
		return result[i].IntentID < result[j].IntentID
	})
	return result, nil
}

var _ storage.AlertStore = (*AlertStore)(nil)
