package ingestion

import (
	"testing"
	"time"

	"tourist-safety-engine/internal/domain"
)

func sample(entity string, ts int64) *domain.MovementSample {
	return &domain.MovementSample{EntityID: entity, TimestampMs: ts, Latitude: 28.6, Longitude: 77.2}
}

func timestamps(rel []Released) []int64 {
	out := make([]int64, len(rel))
	for i, r := range rel {
		out[i] = r.Sample.TimestampMs
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestSortSamples(t *testing.T) {
	s := []*domain.MovementSample{
		{TimestampMs: 3, SampleID: "a"},
		{TimestampMs: 1, SampleID: "b"},
		{TimestampMs: 1, SampleID: "a"},
		{TimestampMs: 2, SampleID: "z"},
	}
	SortSamples(s)

	want := []string{"1a", "1b", "2z", "3a"}
	for i, w := range want {
		got := string(rune('0'+s[i].TimestampMs)) + s[i].SampleID
		if got != w {
			t.Errorf("position %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestReorderBuffer_RestoresOrderWithinLag(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := NewReorderBuffer(2*time.Second, 0)
	b.now = clock.now

	var out []Released
	for _, ts := range []int64{1000, 3000, 2000, 2500} {
		ready, late := b.Add(sample("t-1", ts), "ws")
		if late {
			t.Fatalf("sample %d unexpectedly late", ts)
		}
		out = append(out, ready...)
	}
	// 3000 moves the cutoff to 1000, so only 1000 is out.
	if !equalInts(timestamps(out), []int64{1000}) {
		t.Fatalf("unexpected early releases: %v", timestamps(out))
	}

	ready, _ := b.Add(sample("t-1", 5000), "ws")
	out = append(out, ready...)
	if !equalInts(timestamps(out), []int64{1000, 2000, 2500, 3000}) {
		t.Errorf("expected ordered release, got %v", timestamps(out))
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 buffered, got %d", b.Len())
	}
}

func TestReorderBuffer_LateSampleDropped(t *testing.T) {
	b := NewReorderBuffer(time.Second, 0)

	b.Add(sample("t-1", 1000), "ws")
	ready, _ := b.Add(sample("t-1", 5000), "ws")
	if len(ready) != 1 {
		t.Fatalf("expected 1000 released, got %v", timestamps(ready))
	}

	if _, late := b.Add(sample("t-1", 900), "ws"); !late {
		t.Error("expected sample behind watermark to be late")
	}
	if _, late := b.Add(sample("t-1", 1000), "ws"); !late {
		t.Error("expected duplicate timestamp to be late")
	}
	if _, late := b.Add(sample("t-2", 900), "ws"); late {
		t.Error("other entity must not share the watermark")
	}
}

func TestReorderBuffer_ExpiredByWallClock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	b := NewReorderBuffer(2*time.Second, 0)
	b.now = clock.now

	b.Add(sample("t-2", 1500), "mqtt")
	b.Add(sample("t-1", 1000), "ws")
	if got := b.Expired(); len(got) != 0 {
		t.Fatalf("nothing should expire yet, got %v", timestamps(got))
	}

	clock.t = clock.t.Add(2 * time.Second)
	got := b.Expired()
	if len(got) != 2 {
		t.Fatalf("expected 2 expired, got %d", len(got))
	}
	if got[0].Sample.EntityID != "t-1" || got[0].Source != "ws" || got[1].Source != "mqtt" {
		t.Errorf("expected entity order t-1, t-2 with sources kept, got %+v", got)
	}
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got %d", b.Len())
	}
}

func TestReorderBuffer_MaxPerEntity(t *testing.T) {
	b := NewReorderBuffer(time.Hour, 2)

	b.Add(sample("t-1", 1), "ws")
	b.Add(sample("t-1", 2), "ws")
	ready, _ := b.Add(sample("t-1", 3), "ws")
	if !equalInts(timestamps(ready), []int64{1}) {
		t.Errorf("expected oldest released on overflow, got %v", timestamps(ready))
	}
}

func TestReorderBuffer_Drain(t *testing.T) {
	b := NewReorderBuffer(time.Hour, 0)
	b.Add(sample("b", 2), "ws")
	b.Add(sample("a", 5), "ws")
	b.Add(sample("a", 4), "ws")

	got := b.Drain()
	if !equalInts(timestamps(got), []int64{4, 5, 2}) {
		t.Errorf("expected drain ordered by entity then time, got %v", timestamps(got))
	}
	if b.Len() != 0 {
		t.Errorf("expected empty buffer after drain")
	}
}

func TestReorderBuffer_IdleEntityForgotten(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := NewReorderBuffer(time.Second, 0)
	b.now = clock.now

	b.Add(sample("t-1", 1000), "ws")
	clock.t = clock.t.Add(2 * time.Second)
	b.Expired()
	if _, ok := b.entities["t-1"]; !ok {
		t.Fatal("entity state should survive a short gap")
	}

	clock.t = clock.t.Add(2 * entityIdleAfter)
	b.Expired()
	if _, ok := b.entities["t-1"]; ok {
		t.Error("idle entity state should be dropped")
	}
}

func TestReorderBuffer_SOSReleasedImmediately(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := NewReorderBuffer(2*time.Second, 0)
	b.now = clock.now

	for _, ts := range []int64{1000, 1500} {
		if ready, late := b.Add(sample("e1", ts), "ws"); len(ready) != 0 || late {
			t.Fatalf("ts %d: expected buffering, got ready=%v late=%v", ts, timestamps(ready), late)
		}
	}

	sos := sample("e1", 1200)
	sos.SOS = true
	ready, late := b.Add(sos, "ws")
	if late {
		t.Fatal("sos reported late")
	}
	if want := []int64{1000, 1200}; !equalInts(timestamps(ready), want) {
		t.Fatalf("expected %v released, got %v", want, timestamps(ready))
	}
	if !ready[1].Sample.SOS {
		t.Error("expected the sos sample last in the released prefix")
	}
	if b.Len() != 1 {
		t.Errorf("expected the newer sample to stay buffered, got %d buffered", b.Len())
	}

	// The same SOS delivered again is still assessed.
	ready, late = b.Add(sos, "ws")
	if late || !equalInts(timestamps(ready), []int64{1200}) {
		t.Errorf("repeated sos: ready=%v late=%v", timestamps(ready), late)
	}

	// An ordinary sample at that timestamp is late.
	if _, late := b.Add(sample("e1", 1200), "ws"); !late {
		t.Error("expected non-sos sample at released timestamp to be late")
	}
}
