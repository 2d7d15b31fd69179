package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tourist-safety-engine/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore on SQLite.
type CheckpointStore struct {
	db *DB
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetCheckpoint returns the checkpoint for a source.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, source string) (*storage.IngestionCheckpoint, error) {
	cp := storage.IngestionCheckpoint{Source: source}
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp_ms, sample_id FROM ingestion_checkpoints WHERE source = ?`, source,
	).Scan(&cp.TimestampMs, &cp.SampleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// SetCheckpoint saves the checkpoint for a source.
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, cp *storage.IngestionCheckpoint) error {
	if cp == nil || cp.Source == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_checkpoints (source, timestamp_ms, sample_id) VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET timestamp_ms = excluded.timestamp_ms, sample_id = excluded.sample_id
	`, cp.Source, cp.TimestampMs, cp.SampleID)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
