package alerting

import (
	"context"
	"sync"

	"tourist-safety-engine/internal/domain"
)

// Registry tracks which deduplicated intent types are open per entity.
// The dispatcher claims entries; the alert lifecycle releases them when an
// alert is resolved or marked a false alarm.
type Registry interface {
	// Claim marks (entity, type) open for intentID. Returns false if already open.
	Claim(ctx context.Context, entityID string, t domain.AlertType, intentID string) (bool, error)

	// Release clears (entity, type). Releasing an absent entry is not an error.
	Release(ctx context.Context, entityID string, t domain.AlertType) error

	// Open returns the intent ID holding (entity, type), or "" if none.
	Open(ctx context.Context, entityID string, t domain.AlertType) (string, error)
}

type registryKey struct {
	entityID string
	typ      domain.AlertType
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu   sync.Mutex
	open map[registryKey]string
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{open: make(map[registryKey]string)}
}

// Claim marks (entity, type) open.
func (r *MemoryRegistry) Claim(ctx context.Context, entityID string, t domain.AlertType, intentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := registryKey{entityID, t}
	if _, ok := r.open[k]; ok {
		return false, nil
	}
	r.open[k] = intentID
	return true, nil
}

// Release clears (entity, type).
func (r *MemoryRegistry) Release(ctx context.Context, entityID string, t domain.AlertType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.open, registryKey{entityID, t})
	return nil
}

// Open returns the intent holding (entity, type).
func (r *MemoryRegistry) Open(ctx context.Context, entityID string, t domain.AlertType) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.open[registryKey{entityID, t}], nil
}

var _ Registry = (*MemoryRegistry)(nil)
