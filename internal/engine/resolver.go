package engine

import "vendorrisk/internal/model"

// Resolve flips each open incident to resolved with probability q. The input
// slice is never written; resolved incidents are carried over untouched.
func (e *Engine) Resolve(incidents []model.Incident, q float64) []model.Incident {
	q = clampUnit(q)
	out := make([]model.Incident, len(incidents), len(incidents)+1)
	for i, inc := range incidents {
		if !inc.Resolved() && e.rnd.Float64() < q {
			now := e.now()
			inc.Status = model.IncidentResolved
			inc.ResolvedAt = &now
			inc.UpdatedAt = now
		}
		out[i] = inc
	}
	return out
}
