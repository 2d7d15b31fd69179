// Package geodesy provides distance and containment helpers over lon/lat points.
package geodesy

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const metersPerDegree = orb.EarthRadius * math.Pi / 180

// Point builds an orb point from latitude and longitude.
func Point(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// Distance returns the great-circle distance in meters.
func Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// ClosedRing builds a closed ring from vertices, dropping consecutive duplicates.
// The second return value is false when fewer than three distinct vertices remain.
func ClosedRing(points []orb.Point) (orb.Ring, bool) {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		if len(ring) > 0 && ring[len(ring)-1].Equal(p) {
			continue
		}
		ring = append(ring, p)
	}
	if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, false
	}
	return append(ring, ring[0]), true
}

// RingContains reports whether p lies inside the ring. Boundary points count as inside.
func RingContains(ring orb.Ring, p orb.Point) bool {
	if len(ring) < 4 {
		return false
	}
	return planar.RingContains(ring, p)
}

// DistanceToRing returns the distance in meters from p to the nearest ring edge.
func DistanceToRing(ring orb.Ring, p orb.Point) float64 {
	if len(ring) == 0 {
		return math.Inf(1)
	}
	return DistanceToPath(ring, p)
}

// DistanceToPath returns the distance in meters from p to the nearest vertex or
// segment of the path. A single-vertex path degrades to point distance.
func DistanceToPath(path []orb.Point, p orb.Point) float64 {
	switch len(path) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(path[0], p)
	}

	// Segments are measured in a local equirectangular frame centered on p,
	// accurate to well under a meter at geofence scales.
	origin := orb.Point{0, 0}
	best := math.Inf(1)
	prev := project(path[0], p)
	for i := 1; i < len(path); i++ {
		cur := project(path[i], p)
		if d := planar.DistanceFromSegment(prev, cur, origin); d < best {
			best = d
		}
		prev = cur
	}
	return best
}

// project maps q into meters relative to center.
func project(q, center orb.Point) orb.Point {
	dLon := q[0] - center[0]
	if dLon > 180 {
		dLon -= 360
	} else if dLon < -180 {
		dLon += 360
	}
	cosLat := math.Cos(center[1] * math.Pi / 180)
	return orb.Point{
		dLon * cosLat * metersPerDegree,
		(q[1] - center[1]) * metersPerDegree,
	}
}

// PadBound grows b by meters in every direction.
func PadBound(b orb.Bound, meters float64) orb.Bound {
	if meters <= 0 {
		return b
	}
	return geo.BoundPad(b, meters)
}
