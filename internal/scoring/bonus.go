package scoring

import (
	"context"
	"sync"
	"time"
)

// BonusLedger decides when an entity earns the safe-duration bonus.
//
// A qualifying run starts at the first qualifying sample and is reset by any
// non-qualifying sample. A bonus is granted once the time since
// max(run start, last grant) reaches the period, so at most one bonus is
// granted per qualifying interval.
type BonusLedger interface {
	// Observe records a sample and reports whether it earns the bonus.
	Observe(ctx context.Context, entityID string, tsMs int64, qualifying bool) (bool, error)
}

// bonusState is one entity's ledger entry.
type bonusState struct {
	RunStartMs  int64 // 0 when no qualifying run is open
	LastGrantMs int64 // 0 when never granted
}

// advance applies one observation. Shared by every ledger implementation.
func (b bonusState) advance(tsMs int64, qualifying bool, period time.Duration) (bonusState, bool) {
	if !qualifying {
		b.RunStartMs = 0
		return b, false
	}
	if b.RunStartMs == 0 {
		b.RunStartMs = tsMs
	}
	anchor := b.RunStartMs
	if b.LastGrantMs > anchor {
		anchor = b.LastGrantMs
	}
	if tsMs-anchor >= period.Milliseconds() {
		b.LastGrantMs = tsMs
		return b, true
	}
	return b, false
}

// MemoryBonusLedger keeps ledger entries in process memory.
type MemoryBonusLedger struct {
	mu      sync.Mutex
	period  time.Duration
	entries map[string]bonusState
}

// NewMemoryBonusLedger creates an in-memory ledger.
func NewMemoryBonusLedger(period time.Duration) *MemoryBonusLedger {
	if period <= 0 {
		period = time.Hour
	}
	return &MemoryBonusLedger{
		period:  period,
		entries: make(map[string]bonusState),
	}
}

// Observe records a sample.
func (l *MemoryBonusLedger) Observe(ctx context.Context, entityID string, tsMs int64, qualifying bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, granted := l.entries[entityID].advance(tsMs, qualifying, l.period)
	l.entries[entityID] = next
	return granted, nil
}

var _ BonusLedger = (*MemoryBonusLedger)(nil)
