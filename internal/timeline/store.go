package timeline

import (
	"sync"
	"time"

	"vendorrisk/internal/model"
)

// Store is a fixed-capacity ring of timeline entries. Once full, each Add
// overwrites the oldest entry.
type Store struct {
	mu    sync.RWMutex
	ring  []model.TimelineEntry
	head  int
	count int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Store{ring: make([]model.TimelineEntry, capacity)}
}

func (s *Store) Add(entry model.TimelineEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[(s.head+s.count)%len(s.ring)] = entry
	if s.count < len(s.ring) {
		s.count++
		return
	}
	s.head = (s.head + 1) % len(s.ring)
}

// List returns the newest n entries, oldest first. n <= 0 means all.
func (s *Store) List(n int) []model.TimelineEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > s.count {
		n = s.count
	}
	return s.collect(s.count-n, func(model.TimelineEntry) bool { return true })
}

// Since returns the entries recorded at or after ts, oldest first.
func (s *Store) Since(ts time.Time) []model.TimelineEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(0, func(e model.TimelineEntry) bool { return !e.At.Before(ts) })
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ring)
	s.head, s.count = 0, 0
}

func (s *Store) collect(skip int, keep func(model.TimelineEntry) bool) []model.TimelineEntry {
	out := make([]model.TimelineEntry, 0, s.count-skip)
	for i := skip; i < s.count; i++ {
		e := s.ring[(s.head+i)%len(s.ring)]
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
