package scoring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBonusLedger keeps ledger entries in Redis hashes so the bonus
// interval survives restarts and is shared between replicas.
//
// Entries are read and written without a transaction; callers already
// serialize samples per entity.
type RedisBonusLedger struct {
	client    *redis.Client
	keyPrefix string
	period    time.Duration
	ttl       time.Duration
}

// NewRedisBonusLedger creates a Redis-backed ledger. Entries expire after
// three idle periods.
func NewRedisBonusLedger(client *redis.Client, keyPrefix string, period time.Duration) *RedisBonusLedger {
	if period <= 0 {
		period = time.Hour
	}
	if keyPrefix == "" {
		keyPrefix = "safety:bonus:"
	}
	return &RedisBonusLedger{
		client:    client,
		keyPrefix: keyPrefix,
		period:    period,
		ttl:       3 * period,
	}
}

// Observe records a sample.
func (l *RedisBonusLedger) Observe(ctx context.Context, entityID string, tsMs int64, qualifying bool) (bool, error) {
	key := l.keyPrefix + entityID

	vals, err := l.client.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("read bonus ledger: %w", err)
	}

	var cur bonusState
	cur.RunStartMs, _ = strconv.ParseInt(vals["run_start_ms"], 10, 64)
	cur.LastGrantMs, _ = strconv.ParseInt(vals["last_grant_ms"], 10, 64)

	next, granted := cur.advance(tsMs, qualifying, l.period)
	if next == cur {
		return granted, nil
	}

	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, "run_start_ms", next.RunStartMs, "last_grant_ms", next.LastGrantMs)
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("write bonus ledger: %w", err)
	}
	return granted, nil
}

var _ BonusLedger = (*RedisBonusLedger)(nil)
