package memory

import (
	"context"
	"sort"
	"sync"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// AssessmentStore is an in-memory implementation of storage.AssessmentStore.
type AssessmentStore struct {
	mu       sync.RWMutex
	data     map[string]*domain.SafetyAssessment   // keyed by assessment_id
	byEntity map[string][]*domain.SafetyAssessment // insertion order per entity
}

// NewAssessmentStore creates a new in-memory assessment store.
func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{
		data:     make(map[string]*domain.SafetyAssessment),
		byEntity: make(map[string][]*domain.SafetyAssessment),
	}
}

func copyAssessment(a *domain.SafetyAssessment) *domain.SafetyAssessment {
	c := *a
	c.Degraded = append([]string(nil), a.Degraded...)
	return &c
}

// Insert adds a new assessment. Returns ErrDuplicateKey if assessment_id exists.
func (s *AssessmentStore) Insert(_ context.Context, a *domain.SafetyAssessment) error {
	if a == nil || a.AssessmentID == "" || a.EntityID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.AssessmentID]; exists {
		return storage.ErrDuplicateKey
	}

	c := copyAssessment(a)
	s.data[a.AssessmentID] = c
	s.byEntity[a.EntityID] = append(s.byEntity[a.EntityID], c)
	return nil
}

// GetLatest retrieves the assessment with the greatest timestamp for an entity.
func (s *AssessmentStore) GetLatest(_ context.Context, entityID string) (*domain.SafetyAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SafetyAssessment
	for _, a := range s.byEntity[entityID] {
		if latest == nil || a.TimestampMs >= latest.TimestampMs {
			latest = a
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copyAssessment(latest), nil
}

// GetByTimeRange retrieves assessments within [start, end] (inclusive), ordered by timestamp ASC.
func (s *AssessmentStore) GetByTimeRange(_ context.Context, entityID string, start, end int64) ([]*domain.SafetyAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SafetyAssessment
	for _, a := range s.byEntity[entityID] {
		if a.TimestampMs >= start && a.TimestampMs <= end {
			result = append(result, copyAssessment(a))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

var _ storage.AssessmentStore = (*AssessmentStore)(nil)
