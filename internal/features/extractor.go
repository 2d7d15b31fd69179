// Package features derives per-sample movement features and keeps the
// bounded per-entity feature windows used for sequence scoring.
package features

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/geodesy"
)

// ErrOutOfOrder is returned when a sample is not newer than the entity's
// latest window entry. The window is left unchanged.
var ErrOutOfOrder = errors.New("sample out of order")

// Options configures an Extractor.
type Options struct {
	WindowSize              int           `yaml:"window_size"`               // entries kept per entity (default: 10)
	MovementThresholdMeters float64       `yaml:"movement_threshold_meters"` // displacement that resets inactivity (default: 50)
	MinElapsed              time.Duration `yaml:"min_elapsed"`               // lower bound on elapsed time between samples (default: 6s)
	Shards                  int           `yaml:"shards"`                    // lock shards (default: 64)
}

// DefaultOptions returns default extractor options.
func DefaultOptions() Options {
	return Options{
		WindowSize:              10,
		MovementThresholdMeters: 50,
		MinElapsed:              6 * time.Second,
		Shards:                  64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WindowSize <= 0 {
		o.WindowSize = d.WindowSize
	}
	if o.MovementThresholdMeters <= 0 {
		o.MovementThresholdMeters = d.MovementThresholdMeters
	}
	if o.MinElapsed <= 0 {
		o.MinElapsed = d.MinElapsed
	}
	if o.Shards <= 0 {
		o.Shards = d.Shards
	}
	return o
}

// entityState is the per-entity ring buffer plus the scalars needed to
// derive the next vector.
type entityState struct {
	window *Window

	lastPoint orb.Point
	lastTsMs  int64

	anchorPoint orb.Point // position at last significant movement
	anchorTsMs  int64
}

type shard struct {
	mu       sync.Mutex
	entities map[string]*entityState
}

// Extractor owns every entity's feature window. Callers must serialize
// Ingest per entity; different entities may be ingested concurrently.
type Extractor struct {
	opts   Options
	shards []*shard
}

// NewExtractor creates an extractor.
func NewExtractor(opts Options) *Extractor {
	opts = opts.withDefaults()
	e := &Extractor{
		opts:   opts,
		shards: make([]*shard, opts.Shards),
	}
	for i := range e.shards {
		e.shards[i] = &shard{entities: make(map[string]*entityState)}
	}
	return e
}

// WindowSize returns the configured window capacity.
func (e *Extractor) WindowSize() int {
	return e.opts.WindowSize
}

func (e *Extractor) shardFor(entityID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(entityID))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

// Ingest derives the feature vector for s and appends it to the entity's window.
// The first sample for an entity yields a zero vector (plus reported speed).
func (e *Extractor) Ingest(s *domain.MovementSample) (domain.FeatureVector, error) {
	if err := s.Validate(); err != nil {
		return domain.FeatureVector{}, err
	}

	sh := e.shardFor(s.EntityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	p := geodesy.Point(s.Latitude, s.Longitude)
	st, ok := sh.entities[s.EntityID]
	if !ok {
		st = &entityState{
			window:      NewWindow(e.opts.WindowSize),
			lastPoint:   p,
			lastTsMs:    s.TimestampMs,
			anchorPoint: p,
			anchorTsMs:  s.TimestampMs,
		}
		fv := domain.FeatureVector{
			TimestampMs:    s.TimestampMs,
			RouteDeviation: routeDeviation(s, p),
			Speed:          reportedSpeed(s),
		}
		st.window.Push(fv)
		sh.entities[s.EntityID] = st
		return fv, nil
	}

	if s.TimestampMs <= st.lastTsMs {
		return domain.FeatureVector{}, fmt.Errorf("%w: entity %s ts %d <= %d",
			ErrOutOfOrder, s.EntityID, s.TimestampMs, st.lastTsMs)
	}

	fv := e.derive(st, s, p)
	st.window.Push(fv)
	return fv, nil
}

func (e *Extractor) derive(st *entityState, s *domain.MovementSample, p orb.Point) domain.FeatureVector {
	dist := geodesy.Distance(st.lastPoint, p)
	elapsed := time.Duration(s.TimestampMs-st.lastTsMs) * time.Millisecond
	if elapsed < e.opts.MinElapsed {
		elapsed = e.opts.MinElapsed
	}

	fv := domain.FeatureVector{
		TimestampMs:       s.TimestampMs,
		DistancePerMinute: dist / elapsed.Minutes(),
		RouteDeviation:    routeDeviation(s, p),
	}

	if s.Speed != nil && *s.Speed >= 0 && !math.IsNaN(*s.Speed) {
		fv.Speed = *s.Speed
	} else {
		fv.Speed = dist / elapsed.Seconds()
	}

	if geodesy.Distance(st.anchorPoint, p) > e.opts.MovementThresholdMeters {
		st.anchorPoint = p
		st.anchorTsMs = s.TimestampMs
	} else {
		fv.InactivityDuration = float64(s.TimestampMs-st.anchorTsMs) / float64(time.Minute/time.Millisecond)
	}

	st.lastPoint = p
	st.lastTsMs = s.TimestampMs
	return fv
}

// Window returns a copy of the entity's window, oldest first. Nil if unseen.
func (e *Extractor) Window(entityID string) []domain.FeatureVector {
	sh := e.shardFor(entityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.entities[entityID]
	if !ok {
		return nil
	}
	return st.window.Snapshot()
}

// LastTimestamp returns the newest ingested timestamp for an entity.
func (e *Extractor) LastTimestamp(entityID string) (int64, bool) {
	sh := e.shardFor(entityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.entities[entityID]
	if !ok {
		return 0, false
	}
	return st.lastTsMs, true
}

// Len returns the number of tracked entities.
func (e *Extractor) Len() int {
	n := 0
	for _, sh := range e.shards {
		sh.mu.Lock()
		n += len(sh.entities)
		sh.mu.Unlock()
	}
	return n
}

// EvictIdle drops entities whose newest sample is older than cutoffMs.
// Returns the number of evicted entities.
func (e *Extractor) EvictIdle(cutoffMs int64) int {
	evicted := 0
	for _, sh := range e.shards {
		sh.mu.Lock()
		for id, st := range sh.entities {
			if st.lastTsMs < cutoffMs {
				delete(sh.entities, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

func reportedSpeed(s *domain.MovementSample) float64 {
	if s.Speed != nil && *s.Speed >= 0 && !math.IsNaN(*s.Speed) {
		return *s.Speed
	}
	return 0
}

func routeDeviation(s *domain.MovementSample, p orb.Point) float64 {
	if len(s.PlannedRoute) == 0 {
		return 0
	}
	path := make([]orb.Point, len(s.PlannedRoute))
	for i, wp := range s.PlannedRoute {
		path[i] = geodesy.Point(wp.Latitude, wp.Longitude)
	}
	return geodesy.DistanceToPath(path, p)
}
