package clickhouse

import (
	"context"
	"fmt"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// FeatureStore implements storage.FeatureStore using ClickHouse.
type FeatureStore struct {
	conn *Conn
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(conn *Conn) *FeatureStore {
	return &FeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

const featureColumns = `
	entity_id, sample_id, timestamp_ms,
	distance_per_minute, inactivity_duration, route_deviation, speed
`

// InsertBulk appends records in one batch. Records without an entity are rejected.
func (s *FeatureStore) InsertBulk(ctx context.Context, records []domain.FeatureRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.EntityID == "" || r.TimestampMs < 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO entity_features (`+featureColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.EntityID, r.SampleID, uint64(r.TimestampMs),
			r.DistancePerMinute, r.InactivityDuration, r.RouteDeviation, r.Speed,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves records for an entity within [start, end] (inclusive).
func (s *FeatureStore) GetByTimeRange(ctx context.Context, entityID string, start, end int64) ([]domain.FeatureRecord, error) {
	query := `SELECT ` + featureColumns + `
		FROM entity_features
		WHERE entity_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, sample_id ASC
	`

	rows, err := s.conn.Query(ctx, query, entityID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query features by time range: %w", err)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

// GetSince retrieves up to limit records of all entities with timestamp >= since.
func (s *FeatureStore) GetSince(ctx context.Context, since int64, limit int) ([]domain.FeatureRecord, error) {
	if since < 0 {
		since = 0
	}
	query := `SELECT ` + featureColumns + `
		FROM entity_features
		WHERE timestamp_ms >= ?
		ORDER BY entity_id ASC, timestamp_ms ASC, sample_id ASC
	`
	args := []interface{}{uint64(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query features since: %w", err)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

func scanFeatures(rows chRows) ([]domain.FeatureRecord, error) {
	var out []domain.FeatureRecord

	for rows.Next() {
		var r domain.FeatureRecord
		var ts uint64
		err := rows.Scan(
			&r.EntityID, &r.SampleID, &ts,
			&r.DistancePerMinute, &r.InactivityDuration, &r.RouteDeviation, &r.Speed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		r.TimestampMs = int64(ts)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}
	return out, nil
}
