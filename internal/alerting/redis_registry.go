package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tourist-safety-engine/internal/domain"
)

// RedisRegistry stores open intents as Redis keys so replicas share dedup state.
type RedisRegistry struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisRegistry creates a registry. A positive ttl bounds how long an
// unreleased entry can suppress new intents.
func NewRedisRegistry(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisRegistry {
	if keyPrefix == "" {
		keyPrefix = "safety:intent:"
	}
	return &RedisRegistry{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *RedisRegistry) key(entityID string, t domain.AlertType) string {
	return r.keyPrefix + entityID + ":" + string(t)
}

// Claim sets the key only if absent.
func (r *RedisRegistry) Claim(ctx context.Context, entityID string, t domain.AlertType, intentID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(entityID, t), intentID, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s/%s: %w", entityID, t, err)
	}
	return ok, nil
}

// Release deletes the key.
func (r *RedisRegistry) Release(ctx context.Context, entityID string, t domain.AlertType) error {
	if err := r.client.Del(ctx, r.key(entityID, t)).Err(); err != nil {
		return fmt.Errorf("release %s/%s: %w", entityID, t, err)
	}
	return nil
}

// Open returns the stored intent ID.
func (r *RedisRegistry) Open(ctx context.Context, entityID string, t domain.AlertType) (string, error) {
	v, err := r.client.Get(ctx, r.key(entityID, t)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open %s/%s: %w", entityID, t, err)
	}
	return v, nil
}

var _ Registry = (*RedisRegistry)(nil)
