package ratings

import (
	"sync"
	"time"

	"vendorrisk/internal/model"
)

type series struct {
	points  []model.RatingPoint
	updated time.Time
}

// Store keeps a bounded rating history per vendor. Past maxVendors the vendor
// with the stalest series is forgotten.
type Store struct {
	mu         sync.RWMutex
	series     map[string]*series
	maxVendors int
	maxPoints  int
}

func NewStore(maxVendors, maxPoints int) *Store {
	if maxVendors <= 0 {
		maxVendors = 500
	}
	if maxPoints <= 0 {
		maxPoints = 120
	}
	return &Store{series: make(map[string]*series), maxVendors: maxVendors, maxPoints: maxPoints}
}

// Record appends one point for every vendor in the snapshot.
func (s *Store) Record(state model.State, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range state.Vendors {
		if v.ID == "" {
			continue
		}
		sr, ok := s.series[v.ID]
		if !ok {
			sr = &series{points: make([]model.RatingPoint, 0, min(s.maxPoints, 16))}
			s.series[v.ID] = sr
		}
		if len(sr.points) == s.maxPoints {
			// shift in place; the backing array never grows past maxPoints
			copy(sr.points, sr.points[1:])
			sr.points = sr.points[:len(sr.points)-1]
		}
		sr.points = append(sr.points, model.RatingPoint{
			Tick:      state.Time,
			At:        at,
			Rating:    v.SecurityRating,
			RiskLevel: v.RiskLevel,
		})
		sr.updated = at
	}
	for len(s.series) > s.maxVendors {
		delete(s.series, s.stalest())
	}
}

// Get returns a copy of the vendor's points, oldest first, and when they were
// last extended.
func (s *Store) Get(vendorID string) ([]model.RatingPoint, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[vendorID]
	if !ok {
		return nil, time.Time{}, false
	}
	return append([]model.RatingPoint(nil), sr.points...), sr.updated, true
}

func (s *Store) Vendors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.series)
}

func (s *Store) stalest() string {
	var id string
	var oldest time.Time
	for vendorID, sr := range s.series {
		if id == "" || sr.updated.Before(oldest) {
			id, oldest = vendorID, sr.updated
		}
	}
	return id
}
