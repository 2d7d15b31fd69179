package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

func alert(id, entity string, createdMs int64) *domain.AlertRecord {
	return &domain.AlertRecord{
		AlertIntent: domain.AlertIntent{
			IntentID:      id,
			EntityID:      entity,
			AssessmentID:  "a-" + id,
			Type:          domain.AlertGeofence,
			Severity:      domain.AlertSeverityHigh,
			Message:       "Entered restricted zone",
			Latitude:      28.61,
			Longitude:     77.21,
			ZoneID:        "fort",
			AIConfidence:  0.8,
			AutoGenerated: true,
			CreatedAtMs:   createdMs,
		},
	}
}

func TestAlertStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewAlertStore(openTestDB(t))

	for _, a := range []*domain.AlertRecord{alert("i2", "e1", 200), alert("i1", "e1", 100), alert("i3", "e2", 100)} {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert(%s): %v", a.IntentID, err)
		}
	}
	if err := store.Insert(ctx, alert("i1", "e1", 100)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("duplicate insert: got %v, want ErrDuplicateKey", err)
	}

	got, err := store.GetByID(ctx, "i1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	want := alert("i1", "e1", 100)
	want.Status = domain.AlertStatusActive
	want.UpdatedAtMs = 100
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("alert mismatch (-want +got):\n%s", diff)
	}

	if err := store.UpdateStatus(ctx, "i1", domain.AlertStatusResolved, 300); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	err = store.UpdateStatus(ctx, "i1", domain.AlertStatusAcknowledged, 400)
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("reopen resolved alert: got %v, want ErrInvalidTransition", err)
	}
	if err := store.UpdateStatus(ctx, "missing", domain.AlertStatusResolved, 400); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing alert: got %v, want ErrNotFound", err)
	}

	open, err := store.ListOpen(ctx, "e1")
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 1 || open[0].IntentID != "i2" {
		t.Fatalf("ListOpen = %+v, want only i2", open)
	}
}

func TestCheckpointStore(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore(openTestDB(t))

	if _, err := store.GetCheckpoint(ctx, "mqtt"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetCheckpoint on empty store: got %v, want ErrNotFound", err)
	}
	for _, ts := range []int64{100, 250} {
		if err := store.SetCheckpoint(ctx, &storage.IngestionCheckpoint{Source: "mqtt", TimestampMs: ts, SampleID: "s"}); err != nil {
			t.Fatalf("SetCheckpoint(%d): %v", ts, err)
		}
	}
	cp, err := store.GetCheckpoint(ctx, "mqtt")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp.TimestampMs != 250 {
		t.Errorf("TimestampMs = %d, want 250", cp.TimestampMs)
	}
	if err := store.SetCheckpoint(ctx, &storage.IngestionCheckpoint{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty source: got %v, want ErrInvalidInput", err)
	}
}
