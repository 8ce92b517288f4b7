package feed

import (
	"sync"
	"time"

	"vendorrisk/internal/normalize"
)

// DedupeCache remembers recent row changes so the same change arriving from
// more than one source is applied once.
type DedupeCache struct {
	mu        sync.Mutex
	window    time.Duration
	seen      map[string]time.Time
	lastSweep time.Time
}

// NewDedupeCache returns a cache that treats identical changes within window
// as duplicates. A window of zero or less disables deduplication.
func NewDedupeCache(window time.Duration) *DedupeCache {
	return &DedupeCache{window: window, seen: make(map[string]time.Time)}
}

// Duplicate reports whether ev was already delivered within the window. The
// first sighting is recorded and reported as new.
func (d *DedupeCache) Duplicate(ev ChangeEvent, now time.Time) bool {
	if d == nil || d.window <= 0 {
		return false
	}
	key := fingerprint(ev)
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Sub(d.lastSweep) > d.window {
		d.sweep(now)
	}
	if at, ok := d.seen[key]; ok && now.Sub(at) <= d.window {
		return true
	}
	d.seen[key] = now
	return false
}

func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *DedupeCache) sweep(now time.Time) {
	for key, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, key)
		}
	}
	d.lastSweep = now
}

// fingerprint identifies a change by table, operation, row id and the row's
// updated_at, so a later edit of the same row is never mistaken for a replay.
func fingerprint(ev ChangeEvent) string {
	id := ev.ID()
	if id == "" {
		return ""
	}
	return ev.Table + "|" + ev.Type + "|" + id + "|" + normalize.NewFields(ev.Record).String("updated_at")
}
