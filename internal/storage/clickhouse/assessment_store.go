package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// AssessmentStore implements storage.AssessmentStore on the assessment_history
// analytics table. Flattened sub-score columns serve dashboards; sub_scores_json
// round-trips the full value.
type AssessmentStore struct {
	conn *Conn
}

// NewAssessmentStore creates a new AssessmentStore.
func NewAssessmentStore(conn *Conn) *AssessmentStore {
	return &AssessmentStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AssessmentStore = (*AssessmentStore)(nil)

const assessmentColumns = `
	assessment_id, entity_id, sample_id, timestamp_ms, latitude, longitude,
	safety_score, severity, confidence, degraded, sub_scores_json,
	recommended_action, message
`

// Insert adds an assessment. MergeTree does not enforce keys, so the
// duplicate check is an explicit lookup.
func (s *AssessmentStore) Insert(ctx context.Context, a *domain.SafetyAssessment) error {
	if a == nil || a.AssessmentID == "" || a.EntityID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, a.AssessmentID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	subScores, err := json.Marshal(a.SubScores)
	if err != nil {
		return fmt.Errorf("marshal sub scores: %w", err)
	}
	degraded := a.Degraded
	if degraded == nil {
		degraded = []string{}
	}
	var bonus uint8
	if a.SubScores.BonusApplied {
		bonus = 1
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO assessment_history (
			assessment_id, entity_id, sample_id, timestamp_ms, latitude, longitude,
			safety_score, severity, geofence_kind, matched_zone_id,
			anomaly, temporal, bonus_applied, confidence, degraded, sub_scores_json,
			recommended_action, message
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		a.AssessmentID, a.EntityID, a.SampleID, uint64(a.TimestampMs), a.Latitude, a.Longitude,
		uint8(a.SafetyScore), string(a.Severity), string(a.SubScores.Geofence.Kind), a.SubScores.Geofence.MatchedZoneID,
		a.SubScores.Anomaly, a.SubScores.Temporal, bonus, a.Confidence, degraded, string(subScores),
		a.RecommendedAction, a.Message,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent assessment for an entity.
func (s *AssessmentStore) GetLatest(ctx context.Context, entityID string) (*domain.SafetyAssessment, error) {
	query := `SELECT ` + assessmentColumns + `
		FROM assessment_history FINAL
		WHERE entity_id = ?
		ORDER BY timestamp_ms DESC, assessment_id DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("query latest assessment: %w", err)
	}
	defer rows.Close()

	out, err := scanAssessments(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out[0], nil
}

// GetByTimeRange retrieves assessments for an entity within [start, end] (inclusive).
func (s *AssessmentStore) GetByTimeRange(ctx context.Context, entityID string, start, end int64) ([]*domain.SafetyAssessment, error) {
	query := `SELECT ` + assessmentColumns + `
		FROM assessment_history FINAL
		WHERE entity_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, assessment_id ASC
	`

	rows, err := s.conn.Query(ctx, query, entityID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query assessments by time range: %w", err)
	}
	defer rows.Close()

	return scanAssessments(rows)
}

func (s *AssessmentStore) exists(ctx context.Context, assessmentID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM assessment_history WHERE assessment_id = ?`, assessmentID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanAssessments(rows chRows) ([]*domain.SafetyAssessment, error) {
	var out []*domain.SafetyAssessment

	for rows.Next() {
		var a domain.SafetyAssessment
		var ts uint64
		var score uint8
		var severity, subScores string

		err := rows.Scan(
			&a.AssessmentID, &a.EntityID, &a.SampleID, &ts, &a.Latitude, &a.Longitude,
			&score, &severity, &a.Confidence, &a.Degraded, &subScores,
			&a.RecommendedAction, &a.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assessment row: %w", err)
		}
		if err := json.Unmarshal([]byte(subScores), &a.SubScores); err != nil {
			return nil, fmt.Errorf("decode sub scores of %s: %w", a.AssessmentID, err)
		}

		a.TimestampMs = int64(ts)
		a.SafetyScore = int(score)
		a.Severity = domain.Severity(severity)
		if len(a.Degraded) == 0 {
			a.Degraded = nil
		}
		out = append(out, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessment rows: %w", err)
	}
	return out, nil
}
