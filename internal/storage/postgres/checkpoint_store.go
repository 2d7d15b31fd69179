package postgres

import (
	"context"
	"fmt"

	"tourist-safety-engine/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore with one row per source.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetCheckpoint returns the checkpoint for a source.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, source string) (*storage.IngestionCheckpoint, error) {
	cp := storage.IngestionCheckpoint{Source: source}
	err := s.pool.QueryRow(ctx, `
		SELECT timestamp_ms, sample_id
		FROM ingestion_checkpoints
		WHERE source = $1
	`, source).Scan(&cp.TimestampMs, &cp.SampleID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// SetCheckpoint upserts the checkpoint for a source.
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, cp *storage.IngestionCheckpoint) error {
	if cp == nil || cp.Source == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestion_checkpoints (source, timestamp_ms, sample_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (source) DO UPDATE
		SET timestamp_ms = EXCLUDED.timestamp_ms,
		    sample_id = EXCLUDED.sample_id,
		    updated_at = NOW()
	`, cp.Source, cp.TimestampMs, cp.SampleID)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
