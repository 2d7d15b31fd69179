package zones

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tourist-safety-engine/internal/domain"
)

func squareZone(id string, kind domain.ZoneKind, lat, lon, size float64) domain.ZoneDefinition {
	return domain.ZoneDefinition{
		ZoneID: id,
		Name:   id,
		Kind:   kind,
		Polygon: []domain.Vertex{
			{Latitude: lat, Longitude: lon},
			{Latitude: lat, Longitude: lon + size},
			{Latitude: lat + size, Longitude: lon + size},
			{Latitude: lat + size, Longitude: lon},
		},
		Rating: 3,
		Active: true,
	}
}

func TestSnapshot_SkipsInactiveAndDegenerate(t *testing.T) {
	inactive := squareZone("z-inactive", domain.ZoneKindSafe, 0, 0, 0.01)
	inactive.Active = false

	degenerate := squareZone("z-line", domain.ZoneKindSafe, 0, 0, 0.01)
	degenerate.Polygon = degenerate.Polygon[:2]

	s := NewSnapshot([]domain.ZoneDefinition{
		squareZone("z-ok", domain.ZoneKindSafe, 0, 0, 0.01),
		inactive,
		degenerate,
	})

	if s.Len() != 1 {
		t.Fatalf("expected 1 zone, got %d", s.Len())
	}
	if s.Skipped() != 2 {
		t.Errorf("expected 2 skipped, got %d", s.Skipped())
	}
}

func TestSnapshot_Lookup(t *testing.T) {
	restricted := squareZone("r1", domain.ZoneKindRestricted, 0, 0, 0.01)
	restricted.BufferMeters = 100

	s := NewSnapshot([]domain.ZoneDefinition{
		restricted,
		squareZone("s1", domain.ZoneKindSafe, 0, 0, 0.02),
	})

	// Inside both.
	m := s.Lookup(0.005, 0.005)
	if len(m) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(m))
	}
	if m[0].Zone.ZoneID != "r1" || m[0].Buffered {
		t.Errorf("expected direct r1 match first, got %+v", m[0])
	}

	// ~55m east of restricted edge, still inside the safe square.
	m = s.Lookup(0.005, 0.0105)
	if len(m) != 2 {
		t.Fatalf("expected buffered restricted + safe, got %d", len(m))
	}
	if !m[0].Buffered {
		t.Error("expected buffered restricted match")
	}

	// ~220m east of restricted edge: only the safe zone.
	m = s.Lookup(0.005, 0.012)
	if len(m) != 1 || m[0].Zone.ZoneID != "s1" {
		t.Errorf("expected only s1, got %+v", m)
	}

	// Outside everything.
	if m := s.Lookup(1, 1); len(m) != 0 {
		t.Errorf("expected no matches, got %d", len(m))
	}
}

func TestSnapshot_SafeZonesNotBuffered(t *testing.T) {
	safe := squareZone("s1", domain.ZoneKindSafe, 0, 0, 0.01)
	safe.BufferMeters = 500

	s := NewSnapshot([]domain.ZoneDefinition{safe})
	if m := s.Lookup(0.005, 0.0105); len(m) != 0 {
		t.Errorf("safe zone buffer must be ignored, got %+v", m)
	}
}

func TestIndex_ReplaceIsAtomic(t *testing.T) {
	idx := NewIndex()
	if idx.Snapshot() != nil {
		t.Fatal("expected nil snapshot before first load")
	}

	first := idx.Replace([]domain.ZoneDefinition{squareZone("a", domain.ZoneKindSafe, 0, 0, 0.01)})
	held := idx.Snapshot()

	second := idx.Replace(nil)
	if second.Version() <= first.Version() {
		t.Errorf("version should increase: %d -> %d", first.Version(), second.Version())
	}

	// A reader holding the old snapshot still sees the old zone set.
	if held.Len() != 1 {
		t.Errorf("held snapshot changed: len=%d", held.Len())
	}
	if idx.Snapshot().Len() != 0 {
		t.Errorf("current snapshot should be empty")
	}
}

func TestIndex_ConcurrentReadDuringReload(t *testing.T) {
	idx := NewIndex()
	idx.Replace([]domain.ZoneDefinition{squareZone("a", domain.ZoneKindSafe, 0, 0, 0.01)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := idx.Snapshot()
				_ = s.Lookup(0.005, 0.005)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		idx.Replace([]domain.ZoneDefinition{squareZone("a", domain.ZoneKindSafe, 0, 0, 0.01)})
	}
	wg.Wait()
}

type stubSource struct {
	zones []domain.ZoneDefinition
	err   error
}

func (s *stubSource) ListActive(ctx context.Context) ([]domain.ZoneDefinition, error) {
	return s.zones, s.err
}

func TestReloader_KeepsSnapshotOnError(t *testing.T) {
	idx := NewIndex()
	src := &stubSource{zones: []domain.ZoneDefinition{squareZone("a", domain.ZoneKindSafe, 0, 0, 0.01)}}

	var reloads int
	r := NewReloader(idx, src, ReloaderOptions{OnReload: func(*Snapshot) { reloads++ }})

	if _, err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	src.err = errors.New("db down")
	if _, err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	if idx.Snapshot().Len() != 1 {
		t.Errorf("snapshot should survive a failed reload")
	}
	if reloads != 1 {
		t.Errorf("expected 1 reload hook call, got %d", reloads)
	}
}
