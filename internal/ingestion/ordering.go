package ingestion

import (
	"sort"
	"time"

	"tourist-safety-engine/internal/domain"
)

// SortSamples orders samples by (timestamp ASC, sample_id ASC).
func SortSamples(samples []*domain.MovementSample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return compareSamples(samples[i], samples[j]) < 0
	})
}

func compareSamples(a, b *domain.MovementSample) int {
	if a.TimestampMs != b.TimestampMs {
		if a.TimestampMs < b.TimestampMs {
			return -1
		}
		return 1
	}
	if a.SampleID != b.SampleID {
		if a.SampleID < b.SampleID {
			return -1
		}
		return 1
	}
	return 0
}

type pending struct {
	sample    *domain.MovementSample
	source    string
	arrivedAt time.Time
}

type entityBuffer struct {
	items    []pending
	highest  int64     // newest timestamp seen
	released int64     // newest timestamp handed out
	lastSeen time.Time // wall clock of the latest Add
}

// entityIdleAfter is how long an empty entity keeps its release watermark.
const entityIdleAfter = time.Hour

// ReorderBuffer holds samples per entity for a lag window so that late
// arrivals within the window are still delivered in timestamp order.
// A sample is released once a sample at least lag newer has been seen for
// the same entity, or once it has waited lag in wall-clock time. An SOS
// sample is released on arrival together with everything buffered before it.
// Not safe for concurrent use; the Runner owns it.
type ReorderBuffer struct {
	lag      time.Duration
	maxPer   int
	entities map[string]*entityBuffer
	buffered int
	now      func() time.Time
}

// NewReorderBuffer creates a buffer. maxPerEntity bounds memory per entity;
// when exceeded the oldest sample is released early.
func NewReorderBuffer(lag time.Duration, maxPerEntity int) *ReorderBuffer {
	if maxPerEntity <= 0 {
		maxPerEntity = 100
	}
	return &ReorderBuffer{
		lag:      lag,
		maxPer:   maxPerEntity,
		entities: make(map[string]*entityBuffer),
		now:      time.Now,
	}
}

// Len returns the number of buffered samples.
func (b *ReorderBuffer) Len() int {
	return b.buffered
}

// Add buffers a sample and returns the samples that became releasable, in order.
// late is true when the sample is not newer than one already released for its
// entity; such samples are not buffered. A repeated SOS at the released
// timestamp is not late.
func (b *ReorderBuffer) Add(s *domain.MovementSample, source string) (ready []Released, late bool) {
	eb := b.entities[s.EntityID]
	if eb == nil {
		eb = &entityBuffer{}
		b.entities[s.EntityID] = eb
	}
	if eb.released > 0 && s.TimestampMs <= eb.released && !(s.SOS && s.TimestampMs == eb.released) {
		return nil, true
	}

	now := b.now()
	eb.lastSeen = now
	eb.items = append(eb.items, pending{sample: s, source: source, arrivedAt: now})
	b.buffered++
	if s.TimestampMs > eb.highest {
		eb.highest = s.TimestampMs
	}

	sort.SliceStable(eb.items, func(i, j int) bool {
		return compareSamples(eb.items[i].sample, eb.items[j].sample) < 0
	})

	if s.SOS {
		last := 0
		for i, it := range eb.items {
			if it.sample == s {
				last = i
			}
		}
		for i := 0; i <= last; i++ {
			ready = append(ready, b.pop(eb))
		}
	}

	cutoff := eb.highest - b.lag.Milliseconds()
	for len(eb.items) > 0 && (eb.items[0].sample.TimestampMs <= cutoff || len(eb.items) > b.maxPer) {
		ready = append(ready, b.pop(eb))
	}
	return ready, false
}

// Expired releases samples that have waited at least lag, across all entities.
// Entities are visited in id order so the output is deterministic.
func (b *ReorderBuffer) Expired() []Released {
	deadline := b.now().Add(-b.lag)
	var ready []Released
	for _, id := range b.sortedEntities() {
		eb := b.entities[id]
		// Release the prefix up to the newest expired item to keep order.
		last := -1
		for i, it := range eb.items {
			if !it.arrivedAt.After(deadline) {
				last = i
			}
		}
		for i := 0; i <= last; i++ {
			ready = append(ready, b.pop(eb))
		}
		b.gc(id, eb)
	}
	return ready
}

// Drain releases everything, used on shutdown.
func (b *ReorderBuffer) Drain() []Released {
	var ready []Released
	for _, id := range b.sortedEntities() {
		eb := b.entities[id]
		for len(eb.items) > 0 {
			ready = append(ready, b.pop(eb))
		}
		delete(b.entities, id)
	}
	return ready
}

// Released is a sample leaving the buffer with the feed it came from.
type Released struct {
	Sample *domain.MovementSample
	Source string
}

func (b *ReorderBuffer) pop(eb *entityBuffer) Released {
	it := eb.items[0]
	eb.items = eb.items[1:]
	b.buffered--
	if it.sample.TimestampMs > eb.released {
		eb.released = it.sample.TimestampMs
	}
	return Released{Sample: it.sample, Source: it.source}
}

func (b *ReorderBuffer) gc(id string, eb *entityBuffer) {
	if len(eb.items) == 0 && b.now().Sub(eb.lastSeen) > entityIdleAfter {
		delete(b.entities, id)
	}
}

func (b *ReorderBuffer) sortedEntities() []string {
	ids := make([]string, 0, len(b.entities))
	for id := range b.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
