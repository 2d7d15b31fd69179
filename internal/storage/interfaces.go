package storage

import (
	"context"

	"tourist-safety-engine/internal/domain"
)

// ZoneStore provides access to zones storage.
type ZoneStore interface {
	// Upsert inserts or replaces a zone definition. Returns ErrInvalidInput on empty zone_id.
	Upsert(ctx context.Context, z *domain.ZoneDefinition) error

	// GetByID retrieves a zone by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, zoneID string) (*domain.ZoneDefinition, error)

	// ListActive retrieves all active zones ordered by zone_id ASC.
	ListActive(ctx context.Context) ([]domain.ZoneDefinition, error)

	// Deactivate marks a zone inactive. Returns ErrNotFound if not exists.
	Deactivate(ctx context.Context, zoneID string, atMs int64) error
}

// AssessmentStore provides access to safety_assessments storage.
type AssessmentStore interface {
	// Insert adds a new assessment. Returns ErrDuplicateKey if assessment_id exists.
	Insert(ctx context.Context, a *domain.SafetyAssessment) error

	// GetLatest retrieves the most recent assessment for an entity. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, entityID string) (*domain.SafetyAssessment, error)

	// GetByTimeRange retrieves assessments for an entity within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, entityID string, start, end int64) ([]*domain.SafetyAssessment, error)
}

// AlertStore provides access to alerts storage and owns the alert lifecycle.
type AlertStore interface {
	// Insert adds a new alert in active status. Returns ErrDuplicateKey if intent_id exists.
	Insert(ctx context.Context, a *domain.AlertRecord) error

	// GetByID retrieves an alert by intent ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, intentID string) (*domain.AlertRecord, error)

	// UpdateStatus moves an alert to a new status. Returns ErrNotFound if not exists
	// and ErrInvalidTransition if the alert is already closed.
	UpdateStatus(ctx context.Context, intentID string, status domain.AlertStatus, atMs int64) error

	// ListOpen retrieves active and acknowledged alerts for an entity, ordered by created_at ASC.
	ListOpen(ctx context.Context, entityID string) ([]*domain.AlertRecord, error)
}

// FeatureStore provides access to entity_features storage.
// Training reads snapshots from it; live windows never do.
type FeatureStore interface {
	// InsertBulk adds multiple feature records.
	InsertBulk(ctx context.Context, records []domain.FeatureRecord) error

	// GetByTimeRange retrieves records for an entity within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, entityID string, start, end int64) ([]domain.FeatureRecord, error)

	// GetSince retrieves up to limit records of all entities with timestamp >= since,
	// ordered by (entity_id, timestamp) ASC.
	GetSince(ctx context.Context, since int64, limit int) ([]domain.FeatureRecord, error)
}
