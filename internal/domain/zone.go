package domain

import "fmt"

// ZoneKind is the safety classification of a zone.
type ZoneKind string

const (
	ZoneKindSafe       ZoneKind = "safe"
	ZoneKindRisky      ZoneKind = "risky"
	ZoneKindRestricted ZoneKind = "restricted"
)

// IsValid checks if the kind is a valid value.
func (k ZoneKind) IsValid() bool {
	return k == ZoneKindSafe || k == ZoneKindRisky || k == ZoneKindRestricted
}

// ZoneSubKind refines a zone kind.
type ZoneSubKind string

// Safe zone sub-kinds.
const (
	SubKindTouristArea   ZoneSubKind = "tourist_area"
	SubKindHotel         ZoneSubKind = "hotel"
	SubKindRestaurant    ZoneSubKind = "restaurant"
	SubKindTransportHub  ZoneSubKind = "transport_hub"
	SubKindHospital      ZoneSubKind = "hospital"
	SubKindPoliceStation ZoneSubKind = "police_station"
)

// Restricted and risky zone sub-kinds.
const (
	SubKindRestricted    ZoneSubKind = "restricted"
	SubKindMilitary      ZoneSubKind = "military"
	SubKindPrivate       ZoneSubKind = "private"
	SubKindDangerous     ZoneSubKind = "dangerous"
	SubKindConstruction  ZoneSubKind = "construction"
	SubKindNaturalHazard ZoneSubKind = "natural_hazard"
)

// DefaultRestrictedBufferMeters is applied to restricted zones stored without a buffer.
const DefaultRestrictedBufferMeters = 100.0

// Vertex is a polygon vertex.
type Vertex struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ZoneDefinition is a polygonal region with a safety classification.
// Read-only to the engine.
type ZoneDefinition struct {
	ZoneID       string      `json:"zone_id"`
	Name         string      `json:"name"`
	Kind         ZoneKind    `json:"kind"`
	SubKind      ZoneSubKind `json:"sub_kind,omitempty"`
	Polygon      []Vertex    `json:"polygon"`                 // implicitly closed ring
	BufferMeters float64     `json:"buffer_meters,omitempty"` // restricted zones only
	Rating       int         `json:"rating"`                  // safety_rating or danger_level, 1..5
	Active       bool        `json:"active"`
	UpdatedAtMs  int64       `json:"updated_at_ms,omitempty"`
}

// EffectiveBuffer returns the buffer distance used for containment.
// Only restricted zones are buffered.
func (z *ZoneDefinition) EffectiveBuffer() float64 {
	if z.Kind != ZoneKindRestricted {
		return 0
	}
	if z.BufferMeters < 0 {
		return 0
	}
	return z.BufferMeters
}

// ApplyDefaults fills the restricted buffer when unset.
func (z *ZoneDefinition) ApplyDefaults() {
	if z.Kind == ZoneKindRestricted && z.BufferMeters == 0 {
		z.BufferMeters = DefaultRestrictedBufferMeters
	}
}

// Validate checks required fields and ranges.
func (z *ZoneDefinition) Validate() error {
	if z.ZoneID == "" {
		return fmt.Errorf("zone_id is required")
	}
	if !z.Kind.IsValid() {
		return fmt.Errorf("zone %s: unknown kind %q", z.ZoneID, z.Kind)
	}
	if len(z.Polygon) < 3 {
		return fmt.Errorf("zone %s: polygon needs at least 3 vertices", z.ZoneID)
	}
	for i, v := range z.Polygon {
		if v.Latitude < -90 || v.Latitude > 90 || v.Longitude < -180 || v.Longitude > 180 {
			return fmt.Errorf("zone %s: vertex %d out of range", z.ZoneID, i)
		}
	}
	if z.Rating < 0 || z.Rating > 5 {
		return fmt.Errorf("zone %s: rating %d out of range", z.ZoneID, z.Rating)
	}
	return nil
}
