// Package zones holds the geofence zone index and its hot-reloadable snapshots.
package zones

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/geodesy"
)

type entry struct {
	def    domain.ZoneDefinition
	ring   orb.Ring
	bound  orb.Bound // ring bound padded by the effective buffer
	buffer float64
}

// Match is a zone that contains a queried point.
type Match struct {
	Zone     domain.ZoneDefinition
	Buffered bool    // matched only through the restricted buffer
	Distance float64 // meters to the ring edge, 0 when strictly inside
}

// Snapshot is an immutable set of active zones.
type Snapshot struct {
	entries    []entry
	skipped    int
	version    uint64
	loadedAtMs int64
}

// NewSnapshot builds a snapshot from zone definitions.
// Inactive zones and zones with degenerate rings are skipped. Restricted
// zones without a buffer get the default one.
func NewSnapshot(defs []domain.ZoneDefinition) *Snapshot {
	s := &Snapshot{loadedAtMs: time.Now().UnixMilli()}
	for _, d := range defs {
		d.ApplyDefaults()
		if !d.Active || !d.Kind.IsValid() {
			s.skipped++
			continue
		}
		pts := make([]orb.Point, len(d.Polygon))
		for i, v := range d.Polygon {
			pts[i] = geodesy.Point(v.Latitude, v.Longitude)
		}
		ring, ok := geodesy.ClosedRing(pts)
		if !ok {
			s.skipped++
			continue
		}
		buf := d.EffectiveBuffer()
		s.entries = append(s.entries, entry{
			def:    d,
			ring:   ring,
			bound:  geodesy.PadBound(ring.Bound(), buf),
			buffer: buf,
		})
	}
	sort.Slice(s.entries, func(i, j int) bool {
		return s.entries[i].def.ZoneID < s.entries[j].def.ZoneID
	})
	return s
}

// Len returns the number of indexed zones.
func (s *Snapshot) Len() int { return len(s.entries) }

// Skipped returns the number of definitions not indexed.
func (s *Snapshot) Skipped() int { return s.skipped }

// Version returns the index version that published this snapshot.
func (s *Snapshot) Version() uint64 { return s.version }

// LoadedAtMs returns when the snapshot was built.
func (s *Snapshot) LoadedAtMs() int64 { return s.loadedAtMs }

// Zones returns copies of the indexed definitions, sorted by zone ID.
func (s *Snapshot) Zones() []domain.ZoneDefinition {
	out := make([]domain.ZoneDefinition, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.def
	}
	return out
}

// Lookup returns every zone containing the point, sorted by zone ID.
// Boundary points are inside. Restricted zones also match within their buffer.
func (s *Snapshot) Lookup(lat, lon float64) []Match {
	if s == nil {
		return nil
	}
	p := geodesy.Point(lat, lon)
	var out []Match
	for _, e := range s.entries {
		if !e.bound.Contains(p) {
			continue
		}
		if geodesy.RingContains(e.ring, p) {
			out = append(out, Match{Zone: e.def})
			continue
		}
		if e.buffer <= 0 {
			continue
		}
		if d := geodesy.DistanceToRing(e.ring, p); d <= e.buffer {
			out = append(out, Match{Zone: e.def, Buffered: true, Distance: d})
		}
	}
	return out
}

// Index publishes zone snapshots. Readers take one snapshot per query and
// are never blocked by a reload.
type Index struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewIndex creates an empty index. Snapshot returns nil until the first Replace.
func NewIndex() *Index {
	return &Index{}
}

// Replace builds and publishes a new snapshot.
func (i *Index) Replace(defs []domain.ZoneDefinition) *Snapshot {
	s := NewSnapshot(defs)
	s.version = i.version.Add(1)
	i.current.Store(s)
	return s
}

// Snapshot returns the current snapshot, or nil if none was loaded.
func (i *Index) Snapshot() *Snapshot {
	if i == nil {
		return nil
	}
	return i.current.Load()
}
