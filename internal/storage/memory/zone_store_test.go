package memory

import (
	"context"
	"errors"
	"testing"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

func testZone(id string, kind domain.ZoneKind) *domain.ZoneDefinition {
	return &domain.ZoneDefinition{
		ZoneID: id,
		Name:   "zone " + id,
		Kind:   kind,
		Polygon: []domain.Vertex{
			{Latitude: 0, Longitude: 0},
			{Latitude: 0, Longitude: 1},
			{Latitude: 1, Longitude: 1},
		},
		Rating: 3,
		Active: true,
	}
}

func TestZoneStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewZoneStore()

	z := testZone("z1", domain.ZoneKindRestricted)
	if err := store.Upsert(ctx, z); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Mutating the input must not affect the stored copy
	z.Polygon[0].Latitude = 42
	z.Name = "changed"

	got, err := store.GetByID(ctx, "z1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Name != "zone z1" {
		t.Errorf("Name = %q, want %q", got.Name, "zone z1")
	}
	if got.Polygon[0].Latitude != 0 {
		t.Errorf("Polygon mutated through input pointer")
	}

	z2 := testZone("z1", domain.ZoneKindSafe)
	if err := store.Upsert(ctx, z2); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	got, _ = store.GetByID(ctx, "z1")
	if got.Kind != domain.ZoneKindSafe {
		t.Errorf("Kind = %s, want safe after upsert", got.Kind)
	}
}

func TestZoneStore_InvalidInput(t *testing.T) {
	store := NewZoneStore()
	if err := store.Upsert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Upsert(context.Background(), &domain.ZoneDefinition{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
	}
}

func TestZoneStore_ListActiveAndDeactivate(t *testing.T) {
	ctx := context.Background()
	store := NewZoneStore()

	for _, id := range []string{"c", "a", "b"} {
		if err := store.Upsert(ctx, testZone(id, domain.ZoneKindSafe)); err != nil {
			t.Fatalf("Upsert %s failed: %v", id, err)
		}
	}

	if err := store.Deactivate(ctx, "b", 1000); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if err := store.Deactivate(ctx, "missing", 1000); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	zones, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(zones) != 2 {
		t.Fatalf("expected 2 active zones, got %d", len(zones))
	}
	if zones[0].ZoneID != "a" || zones[1].ZoneID != "c" {
		t.Errorf("unexpected order: %s, %s", zones[0].ZoneID, zones[1].ZoneID)
	}

	b, _ := store.GetByID(ctx, "b")
	if b.Active || b.UpdatedAtMs != 1000 {
		t.Errorf("deactivated zone = active:%v updated:%d", b.Active, b.UpdatedAtMs)
	}
}

func TestZoneStore_GetByID_NotFound(t *testing.T) {
	store := NewZoneStore()
	if _, err := store.GetByID(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
