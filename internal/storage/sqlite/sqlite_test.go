package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "safety.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func square(id string, kind domain.ZoneKind) *domain.ZoneDefinition {
	return &domain.ZoneDefinition{
		ZoneID: id,
		Name:   "Old Fort",
		Kind:   kind,
		Polygon: []domain.Vertex{
			{Latitude: 28.60, Longitude: 77.20},
			{Latitude: 28.60, Longitude: 77.22},
			{Latitude: 28.62, Longitude: 77.22},
		},
		Rating: 3,
		Active: true,
	}
}

func TestZoneStore(t *testing.T) {
	ctx := context.Background()
	store := NewZoneStore(openTestDB(t))

	b := square("b", domain.ZoneKindRestricted)
	b.BufferMeters = 120
	for _, z := range []*domain.ZoneDefinition{b, square("a", domain.ZoneKindSafe), square("c", domain.ZoneKindRisky)} {
		if err := store.Upsert(ctx, z); err != nil {
			t.Fatalf("Upsert(%s): %v", z.ZoneID, err)
		}
	}

	got, err := store.GetByID(ctx, "b")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if diff := cmp.Diff(b, got); diff != "" {
		t.Errorf("zone mismatch (-want +got):\n%s", diff)
	}

	if err := store.Deactivate(ctx, "c", 99); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 || active[0].ZoneID != "a" || active[1].ZoneID != "b" {
		t.Errorf("unexpected active zones: %+v", active)
	}

	if _, err := store.GetByID(ctx, "zz"); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Deactivate(ctx, "zz", 1); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAssessmentStore(t *testing.T) {
	ctx := context.Background()
	store := NewAssessmentStore(openTestDB(t))

	mk := func(id string, ts int64, score int) *domain.SafetyAssessment {
		return &domain.SafetyAssessment{
			AssessmentID: id,
			EntityID:     "t-1",
			SampleID:     "s-" + id,
			TimestampMs:  ts,
			SafetyScore:  score,
			Severity:     domain.SeveritySafe,
			SubScores: domain.SubScores{
				Geofence:     domain.GeofenceVerdict{Kind: domain.VerdictSafe},
				BonusApplied: true,
			},
			Confidence:        1,
			RecommendedAction: domain.ActionNone,
		}
	}

	first, second, tie := mk("a1", 1000, 90), mk("a2", 2000, 95), mk("a3", 2000, 100)
	second.Degraded = []string{domain.DegradedSequenceShort}
	for _, a := range []*domain.SafetyAssessment{first, second, tie} {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert(%s): %v", a.AssessmentID, err)
		}
	}

	if err := store.Insert(ctx, mk("a1", 1000, 90)); err != storage.ErrDuplicateKey {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	latest, err := store.GetLatest(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if diff := cmp.Diff(tie, latest); diff != "" {
		t.Errorf("latest mismatch (-want +got):\n%s", diff)
	}

	rng, err := store.GetByTimeRange(ctx, "t-1", 1500, 2000)
	if err != nil {
		t.Fatalf("GetByTimeRange: %v", err)
	}
	if len(rng) != 2 || rng[0].AssessmentID != "a2" {
		t.Fatalf("unexpected range: %+v", rng)
	}
	if diff := cmp.Diff(second, rng[0]); diff != "" {
		t.Errorf("degraded round trip (-want +got):\n%s", diff)
	}

	if _, err := store.GetLatest(ctx, "nobody"); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Insert(ctx, &domain.SafetyAssessment{}); err != storage.ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
