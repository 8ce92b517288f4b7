package feed

import (
	"context"
	"testing"
	"time"
)

func vendorEvent(id, updatedAt string) ChangeEvent {
	return ChangeEvent{
		Table:  TableVendors,
		Type:   OpUpdate,
		Record: map[string]any{"id": id, "updated_at": updatedAt},
	}
}

func TestDedupeCacheWindow(t *testing.T) {
	d := NewDedupeCache(time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := vendorEvent("a", "2024-01-01T00:00:00Z")
	if d.Duplicate(ev, now) {
		t.Fatalf("first sighting must not be a duplicate")
	}
	if !d.Duplicate(ev, now.Add(500*time.Millisecond)) {
		t.Fatalf("expected duplicate inside window")
	}
	if d.Duplicate(vendorEvent("a", "2024-01-01T00:00:01Z"), now.Add(600*time.Millisecond)) {
		t.Fatalf("a later edit of the same row is not a duplicate")
	}
	if d.Duplicate(ev, now.Add(3*time.Second)) {
		t.Fatalf("expected change to expire after window")
	}
	if d.Len() != 1 {
		t.Fatalf("expected expired entries to be swept, have %d", d.Len())
	}
}

func TestDedupeCacheDisabled(t *testing.T) {
	d := NewDedupeCache(0)
	ev := vendorEvent("a", "")
	now := time.Now()
	if d.Duplicate(ev, now) || d.Duplicate(ev, now) {
		t.Fatalf("zero window disables dedupe")
	}
	var nilCache *DedupeCache
	if nilCache.Duplicate(ev, now) {
		t.Fatalf("nil cache never reports duplicates")
	}
}

func TestDeliverDropsWhenFull(t *testing.T) {
	out := make(chan ChangeEvent, 1)
	events := []ChangeEvent{vendorEvent("a", ""), vendorEvent("b", "")}
	accepted, dropped := deliver(context.Background(), out, events, "test", nil)
	if accepted != 1 || dropped != 1 {
		t.Fatalf("expected 1 accepted 1 dropped, got %d/%d", accepted, dropped)
	}
	got := <-out
	if got.Source != "test" || got.ID() != "a" {
		t.Fatalf("unexpected delivered event: %+v", got)
	}
}

func TestRetryDoublesUpToMax(t *testing.T) {
	r := newRetry(time.Millisecond, 3*time.Millisecond)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !r.wait(ctx) {
			t.Fatalf("wait returned false")
		}
	}
	if r.next != 3*time.Millisecond {
		t.Fatalf("expected delay capped at 3ms, got %v", r.next)
	}
	r.reset()
	if r.next != time.Millisecond {
		t.Fatalf("expected reset to min, got %v", r.next)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if newRetry(time.Hour, time.Hour).wait(cancelled) {
		t.Fatalf("expected wait to stop on cancelled context")
	}
}
