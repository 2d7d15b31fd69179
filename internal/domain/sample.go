package domain

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidSample is returned when a movement sample fails validation.
// Wrapped errors carry the offending field.
var ErrInvalidSample = errors.New("invalid sample")

// ZoneLabel is the zone classification reported by the sample producer.
type ZoneLabel string

const (
	ZoneLabelSafe       ZoneLabel = "safe"
	ZoneLabelRisky      ZoneLabel = "risky"
	ZoneLabelRestricted ZoneLabel = "restricted"
	ZoneLabelUnknown    ZoneLabel = "unknown"
)

// String returns the string representation of ZoneLabel.
func (z ZoneLabel) String() string {
	return string(z)
}

// IsValid checks if the label is a known value. Empty is treated as unknown.
func (z ZoneLabel) IsValid() bool {
	switch z {
	case ZoneLabelSafe, ZoneLabelRisky, ZoneLabelRestricted, ZoneLabelUnknown, "":
		return true
	}
	return false
}

// Waypoint is a single vertex of a planned route.
type Waypoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MovementSample is one location report for an entity.
// Immutable once recorded.
type MovementSample struct {
	SampleID     string     `json:"sample_id"`               // ULID, assigned on ingest if empty
	EntityID     string     `json:"entity_id"`               // tracked person/unit
	Latitude     float64    `json:"latitude"`                // [-90, 90]
	Longitude    float64    `json:"longitude"`               // [-180, 180]
	Altitude     *float64   `json:"altitude,omitempty"`      // meters
	Speed        *float64   `json:"speed,omitempty"`         // m/s as reported by the device
	Heading      *float64   `json:"heading,omitempty"`       // degrees
	Accuracy     *float64   `json:"accuracy,omitempty"`      // meters
	TimestampMs  int64      `json:"timestamp_ms"`            // Unix timestamp in milliseconds
	ZoneLabel    ZoneLabel  `json:"zone_type,omitempty"`     // producer override
	PlannedRoute []Waypoint `json:"planned_route,omitempty"` // polyline, may be empty
	SOS          bool       `json:"sos,omitempty"`           // explicit panic flag
}

// Validate checks coordinate ranges and required fields.
func (s *MovementSample) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil sample", ErrInvalidSample)
	}
	if strings.TrimSpace(s.EntityID) == "" {
		return fmt.Errorf("%w: entity_id is required", ErrInvalidSample)
	}
	if s.Latitude < -90 || s.Latitude > 90 || s.Latitude != s.Latitude {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidSample, s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 || s.Longitude != s.Longitude {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidSample, s.Longitude)
	}
	if s.TimestampMs <= 0 {
		return fmt.Errorf("%w: timestamp_ms must be positive", ErrInvalidSample)
	}
	if !s.ZoneLabel.IsValid() {
		return fmt.Errorf("%w: unknown zone_type %q", ErrInvalidSample, s.ZoneLabel)
	}
	for i, wp := range s.PlannedRoute {
		if wp.Latitude < -90 || wp.Latitude > 90 || wp.Latitude != wp.Latitude ||
			wp.Longitude < -180 || wp.Longitude > 180 || wp.Longitude != wp.Longitude {
			return fmt.Errorf("%w: planned_route[%d] out of range", ErrInvalidSample, i)
		}
	}
	return nil
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewSampleID returns a time-sortable ULID for a sample taken at tsMs.
func NewSampleID(tsMs int64) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(uint64(tsMs), entropy).String()
}
