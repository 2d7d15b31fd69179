package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// AssessmentStore implements storage.AssessmentStore using PostgreSQL.
type AssessmentStore struct {
	pool *Pool
}

// NewAssessmentStore creates a new AssessmentStore.
func NewAssessmentStore(pool *Pool) *AssessmentStore {
	return &AssessmentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AssessmentStore = (*AssessmentStore)(nil)

const assessmentColumns = `
	assessment_id, entity_id, sample_id, timestamp_ms, latitude, longitude,
	safety_score, severity, sub_scores, confidence, degraded, recommended_action, message
`

// Insert adds a new assessment. Returns ErrDuplicateKey if assessment_id exists.
func (s *AssessmentStore) Insert(ctx context.Context, a *domain.SafetyAssessment) error {
	if a == nil || a.AssessmentID == "" || a.EntityID == "" {
		return storage.ErrInvalidInput
	}

	subScores, err := json.Marshal(a.SubScores)
	if err != nil {
		return fmt.Errorf("marshal sub scores: %w", err)
	}
	degraded := a.Degraded
	if degraded == nil {
		degraded = []string{}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO safety_assessments (`+assessmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		a.AssessmentID,
		a.EntityID,
		a.SampleID,
		a.TimestampMs,
		a.Latitude,
		a.Longitude,
		a.SafetyScore,
		string(a.Severity),
		subScores,
		a.Confidence,
		degraded,
		a.RecommendedAction,
		a.Message,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent assessment for an entity. Returns ErrNotFound if none.
func (s *AssessmentStore) GetLatest(ctx context.Context, entityID string) (*domain.SafetyAssessment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+assessmentColumns+`
		FROM safety_assessments
		WHERE entity_id = $1
		ORDER BY timestamp_ms DESC, created_at DESC
		LIMIT 1
	`, entityID)

	a, err := scanAssessment(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest assessment: %w", err)
	}
	return a, nil
}

// GetByTimeRange retrieves assessments for an entity within [start, end] (inclusive).
func (s *AssessmentStore) GetByTimeRange(ctx context.Context, entityID string, start, end int64) ([]*domain.SafetyAssessment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+assessmentColumns+`
		FROM safety_assessments
		WHERE entity_id = $1 AND timestamp_ms >= $2 AND timestamp_ms <= $3
		ORDER BY timestamp_ms ASC, created_at ASC
	`, entityID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get assessments by time range: %w", err)
	}
	defer rows.Close()

	var out []*domain.SafetyAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}

func scanAssessment(row pgx.Row) (*domain.SafetyAssessment, error) {
	var a domain.SafetyAssessment
	var severity string
	var subScores []byte

	err := row.Scan(
		&a.AssessmentID,
		&a.EntityID,
		&a.SampleID,
		&a.TimestampMs,
		&a.Latitude,
		&a.Longitude,
		&a.SafetyScore,
		&severity,
		&subScores,
		&a.Confidence,
		&a.Degraded,
		&a.RecommendedAction,
		&a.Message,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(subScores, &a.SubScores); err != nil {
		return nil, fmt.Errorf("decode sub scores of %s: %w", a.AssessmentID, err)
	}

	a.Severity = domain.Severity(severity)
	if len(a.Degraded) == 0 {
		a.Degraded = nil
	}
	return &a, nil
}
