package storage

import "context"

// IngestionCheckpoint is the newest sample timestamp accepted from a source.
type IngestionCheckpoint struct {
	Source      string // source name, e.g. "mqtt" or "ws"
	TimestampMs int64  // newest accepted sample timestamp
	SampleID    string // sample that advanced the checkpoint
}

// CheckpointStore persists ingestion progress so a restarted service does not
// re-assess samples it already handled.
type CheckpointStore interface {
	// GetCheckpoint returns the checkpoint for a source.
	// Returns ErrNotFound if no checkpoint has been saved yet.
	GetCheckpoint(ctx context.Context, source string) (*IngestionCheckpoint, error)

	// SetCheckpoint saves the checkpoint for a source.
	SetCheckpoint(ctx context.Context, cp *IngestionCheckpoint) error
}
