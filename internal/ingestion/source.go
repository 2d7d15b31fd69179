// Package ingestion receives movement samples from live feeds, restores
// per-entity timestamp order and hands them to the assessment engine.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"tourist-safety-engine/internal/domain"
)

// Source delivers samples from one feed.
type Source interface {
	// Name identifies the feed in metrics and checkpoints.
	Name() string

	// Subscribe starts the feed. The channel is closed when ctx is cancelled
	// or the feed stops for good.
	Subscribe(ctx context.Context) (<-chan *domain.MovementSample, error)
}

// DecodeSamples parses a payload holding one sample object or an array of them.
func DecodeSamples(payload []byte) ([]*domain.MovementSample, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidSample)
	}

	if payload[0] == '[' {
		var batch []*domain.MovementSample
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSample, err)
		}
		return batch, nil
	}

	var s domain.MovementSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSample, err)
	}
	return []*domain.MovementSample{&s}, nil
}
