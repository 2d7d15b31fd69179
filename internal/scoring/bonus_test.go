package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t0 = int64(1_700_000_000_000)

func ledgers(t *testing.T) map[string]BonusLedger {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]BonusLedger{
		"memory": NewMemoryBonusLedger(time.Hour),
		"redis":  NewRedisBonusLedger(client, "test:bonus:", time.Hour),
	}
}

func TestBonusLedger_OncePerInterval(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			grants := 0
			// 10 qualifying samples spanning exactly one hour.
			for i := int64(0); i < 10; i++ {
				ok, err := l.Observe(ctx, "e1", t0+i*400_000, true)
				require.NoError(t, err)
				if ok {
					grants++
				}
			}
			assert.Equal(t, 1, grants)
		})
	}
}

func TestBonusLedger_NeverTwiceWithinInterval(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var grantTimes []int64
			// Three hours of samples every minute.
			for i := int64(0); i <= 180; i++ {
				ts := t0 + i*60_000
				ok, err := l.Observe(ctx, "e1", ts, true)
				require.NoError(t, err)
				if ok {
					grantTimes = append(grantTimes, ts)
				}
			}
			require.Len(t, grantTimes, 3)
			for i := 1; i < len(grantTimes); i++ {
				assert.GreaterOrEqual(t, grantTimes[i]-grantTimes[i-1], time.Hour.Milliseconds())
			}
		})
	}
}

func TestBonusLedger_ResetByNonQualifyingSample(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l.Observe(ctx, "e1", t0, true)
			l.Observe(ctx, "e1", t0+50*60_000, false)

			ok, err := l.Observe(ctx, "e1", t0+61*60_000, true)
			require.NoError(t, err)
			assert.False(t, ok, "run restarted at 61m, no bonus yet")

			ok, _ = l.Observe(ctx, "e1", t0+121*60_000, true)
			assert.True(t, ok, "one full hour since restart")
		})
	}
}

func TestBonusLedger_EntitiesIndependent(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l.Observe(ctx, "a", t0, true)
			l.Observe(ctx, "b", t0+30*60_000, true)

			okA, _ := l.Observe(ctx, "a", t0+60*60_000, true)
			okB, _ := l.Observe(ctx, "b", t0+60*60_000, true)
			assert.True(t, okA)
			assert.False(t, okB)
		})
	}
}

func TestRedisBonusLedger_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisBonusLedger(client, "", time.Hour)
	mr.Close()

	_, err := l.Observe(context.Background(), "e1", t0, true)
	assert.Error(t, err)
}
