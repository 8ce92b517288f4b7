package engine

import (
	"time"

	"github.com/google/uuid"

	"vendorrisk/internal/model"
)

const (
	triggerTitle       = "Simulated Security Incident"
	triggerDescription = "This incident was generated in simulation mode."
	triggerCategory    = "simulated"
)

type Params struct {
	IncidentProbability float64
	ResolveProbability  float64
	HistoryLimit        int
	PenaltyScale        float64
	Fluctuation         float64
	TriggerPenalty      float64
}

func DefaultParams() Params {
	return Params{
		IncidentProbability: 0.2,
		ResolveProbability:  0.05,
		HistoryLimit:        50,
		PenaltyScale:        0.1,
		Fluctuation:         2,
		TriggerPenalty:      15,
	}
}

// Engine computes simulation transitions. It holds no simulation state; the
// caller passes the current State in and keeps the returned one. An Engine
// must not be shared by concurrent callers because its Rand is not locked.
type Engine struct {
	params  Params
	rnd     Rand
	now     func() time.Time
	newID   func() string
	catalog []Template
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithCatalog(catalog []Template) Option {
	return func(e *Engine) { e.catalog = catalog }
}

func New(params Params, rnd Rand, opts ...Option) *Engine {
	if params.HistoryLimit <= 0 {
		params.HistoryLimit = 50
	}
	if rnd == nil {
		rnd = NewRand(uint64(time.Now().UnixNano()))
	}
	e := &Engine{
		params:  params,
		rnd:     rnd,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		catalog: DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Params() Params {
	return e.params
}

// Tick advances the simulation by one step. It never fails; with no vendors
// it only advances time.
func (e *Engine) Tick(state model.State) model.State {
	next := model.State{Time: state.Time + 1}
	if len(state.Vendors) == 0 {
		next.Vendors = []model.Vendor{}
		next.Incidents = cloneIncidents(state.Incidents, 0)
		return next
	}
	incidents := e.Resolve(state.Incidents, e.params.ResolveProbability)
	vendors := state.Vendors
	if inc := e.Generate(state.Vendors, e.params.IncidentProbability); inc != nil {
		incidents = append(incidents, *inc)
		vendors = countIncident(vendors, inc.VendorID)
	}
	next.Incidents = trimHistory(incidents, e.params.HistoryLimit)
	next.Vendors = e.Rescore(vendors, next.Incidents)
	return next
}

// TriggerIncident forces a high severity incident against a random vendor and
// discounts that vendor's rating directly. Time does not advance.
func (e *Engine) TriggerIncident(state model.State) (model.State, *model.Incident) {
	if len(state.Vendors) == 0 {
		return state, nil
	}
	idx := e.rnd.IntN(len(state.Vendors))
	now := e.now()
	inc := model.Incident{
		ID:          e.newID(),
		VendorID:    state.Vendors[idx].ID,
		Category:    triggerCategory,
		Severity:    model.SeverityHigh,
		Title:       triggerTitle,
		Description: triggerDescription,
		Status:      model.IncidentOpen,
		DetectedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	vendors := cloneVendors(state.Vendors)
	v := vendors[idx]
	v.Incidents++
	vendors[idx] = applyRating(v, v.SecurityRating-e.params.TriggerPenalty)

	incidents := append(cloneIncidents(state.Incidents, 1), inc)
	return model.State{
		Time:      state.Time,
		Vendors:   vendors,
		Incidents: trimHistory(incidents, e.params.HistoryLimit),
	}, &inc
}

// ResolveIncident marks one incident resolved. The bool reports whether the id
// exists; resolving an already resolved incident changes nothing.
func (e *Engine) ResolveIncident(state model.State, id string) (model.State, bool) {
	idx := -1
	for i, inc := range state.Incidents {
		if inc.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return state, false
	}
	if state.Incidents[idx].Resolved() {
		return state, true
	}
	now := e.now()
	incidents := cloneIncidents(state.Incidents, 0)
	incidents[idx].Status = model.IncidentResolved
	incidents[idx].ResolvedAt = &now
	incidents[idx].UpdatedAt = now
	return model.State{Time: state.Time, Vendors: state.Vendors, Incidents: incidents}, true
}

func countIncident(vendors []model.Vendor, vendorID string) []model.Vendor {
	out := cloneVendors(vendors)
	for i := range out {
		if out[i].ID == vendorID {
			out[i].Incidents++
			break
		}
	}
	return out
}

// trimHistory keeps the newest limit incidents, oldest dropped first.
func trimHistory(incidents []model.Incident, limit int) []model.Incident {
	if limit <= 0 || len(incidents) <= limit {
		return incidents
	}
	out := make([]model.Incident, limit)
	copy(out, incidents[len(incidents)-limit:])
	return out
}

func cloneVendors(vendors []model.Vendor) []model.Vendor {
	out := make([]model.Vendor, len(vendors))
	copy(out, vendors)
	return out
}

func cloneIncidents(incidents []model.Incident, extra int) []model.Incident {
	out := make([]model.Incident, len(incidents), len(incidents)+extra)
	copy(out, incidents)
	return out
}
