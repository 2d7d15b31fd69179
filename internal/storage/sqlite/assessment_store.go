package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// AssessmentStore implements storage.AssessmentStore on SQLite.
// Sub-scores and degraded flags are stored as JSON text.
type AssessmentStore struct {
	db *DB
}

// NewAssessmentStore creates a new AssessmentStore.
func NewAssessmentStore(db *DB) *AssessmentStore {
	return &AssessmentStore{db: db}
}

var _ storage.AssessmentStore = (*AssessmentStore)(nil)

const assessmentColumns = `assessment_id, entity_id, sample_id, timestamp_ms, latitude, longitude,
	safety_score, severity, sub_scores, confidence, degraded, recommended_action, message`

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
	degradedJSON, err := json.Marshal(degraded)
	if err != nil {
		return fmt.Errorf("marshal degraded: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO safety_assessments (`+assessmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AssessmentID, a.EntityID, a.SampleID, a.TimestampMs, a.Latitude, a.Longitude,
		a.SafetyScore, string(a.Severity), string(subScores), a.Confidence, string(degradedJSON),
		a.RecommendedAction, a.Message,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent assessment for an entity.
// Equal timestamps resolve to the later insert.
func (s *AssessmentStore) GetLatest(ctx context.Context, entityID string) (*domain.SafetyAssessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM safety_assessments
		WHERE entity_id = ? ORDER BY timestamp_ms DESC, rowid DESC LIMIT 1`, entityID)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest assessment: %w", err)
	}
	return a, nil
}

// GetByTimeRange retrieves assessments for an entity within [start, end] (inclusive).
func (s *AssessmentStore) GetByTimeRange(ctx context.Context, entityID string, start, end int64) ([]*domain.SafetyAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assessmentColumns+` FROM safety_assessments
		WHERE entity_id = ? AND timestamp_ms BETWEEN ? AND ?
		ORDER BY timestamp_ms, rowid`, entityID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
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
	return out, rows.Err()
}

func scanAssessment(row scanner) (*domain.SafetyAssessment, error) {
	var a domain.SafetyAssessment
	var severity, subScores, degraded string
	err := row.Scan(&a.AssessmentID, &a.EntityID, &a.SampleID, &a.TimestampMs, &a.Latitude, &a.Longitude,
		&a.SafetyScore, &severity, &subScores, &a.Confidence, &degraded, &a.RecommendedAction, &a.Message)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(subScores), &a.SubScores); err != nil {
		return nil, fmt.Errorf("decode sub scores: %w", err)
	}
	if err := json.Unmarshal([]byte(degraded), &a.Degraded); err != nil {
		return nil, fmt.Errorf("decode degraded: %w", err)
	}
	if len(a.Degraded) == 0 {
		a.Degraded = nil
	}
	a.Severity = domain.Severity(severity)
	return &a, nil
}
