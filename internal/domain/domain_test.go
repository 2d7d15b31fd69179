package domain

import (
	"errors"
	"math"
	"testing"
)

func validSample() *MovementSample {
	return &MovementSample{
		EntityID:    "tourist-1",
		Latitude:    26.9124,
		Longitude:   75.7873,
		TimestampMs: 1_700_000_000_000,
	}
}

func TestMovementSample_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *MovementSample)
		wantErr bool
	}{
		{"valid", func(s *MovementSample) {}, false},
		{"missing entity", func(s *MovementSample) { s.EntityID = " " }, true},
		{"lat too high", func(s *MovementSample) { s.Latitude = 90.0001 }, true},
		{"lat boundary", func(s *MovementSample) { s.Latitude = -90 }, false},
		{"lon too low", func(s *MovementSample) { s.Longitude = -180.5 }, true},
		{"lat NaN", func(s *MovementSample) { s.Latitude = math.NaN() }, true},
		{"zero timestamp", func(s *MovementSample) { s.TimestampMs = 0 }, true},
		{"bad label", func(s *MovementSample) { s.ZoneLabel = "beach" }, true},
		{"bad waypoint", func(s *MovementSample) { s.PlannedRoute = []Waypoint{{Latitude: 100}} }, true},
		{"waypoint lat NaN", func(s *MovementSample) { s.PlannedRoute = []Waypoint{{Latitude: math.NaN(), Longitude: 77.2}} }, true},
		{"waypoint lon NaN", func(s *MovementSample) { s.PlannedRoute = []Waypoint{{Latitude: 28.6, Longitude: math.NaN()}} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSample()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSample) {
				t.Errorf("expected ErrInvalidSample, got %v", err)
			}
		})
	}
}

func TestNewSampleID_Sortable(t *testing.T) {
	a := NewSampleID(1_700_000_000_000)
	b := NewSampleID(1_700_000_000_001)
	if len(a) != 26 {
		t.Errorf("expected 26-char ULID, got %q", a)
	}
	if a >= b {
		t.Errorf("expected %s < %s", a, b)
	}
}

func TestRecommendedAction(t *testing.T) {
	if RecommendedAction(SeveritySafe) != ActionNone {
		t.Error("SAFE should need no action")
	}
	if RecommendedAction(SeverityWarning) != ActionMonitor {
		t.Error("WARNING should be monitored")
	}
	if RecommendedAction(SeverityCritical) != ActionIntervene {
		t.Error("CRITICAL should need intervention")
	}
}

func TestZoneDefinition_Defaults(t *testing.T) {
	z := ZoneDefinition{ZoneID: "z", Kind: ZoneKindRestricted}
	z.ApplyDefaults()
	if z.EffectiveBuffer() != DefaultRestrictedBufferMeters {
		t.Errorf("expected default buffer, got %f", z.EffectiveBuffer())
	}

	s := ZoneDefinition{ZoneID: "s", Kind: ZoneKindSafe, BufferMeters: 300}
	if s.EffectiveBuffer() != 0 {
		t.Error("safe zones are never buffered")
	}
}

func TestZoneDefinition_Validate(t *testing.T) {
	z := ZoneDefinition{
		ZoneID:  "z",
		Kind:    ZoneKindSafe,
		Polygon: []Vertex{{0, 0}, {0, 1}, {1, 1}},
		Rating:  3,
	}
	if err := z.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	z.Kind = "beach"
	if err := z.Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
}
