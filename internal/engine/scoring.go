package engine

import (
	"math"

	"vendorrisk/internal/model"
)

var severityWeights = map[model.Severity]float64{
	model.SeverityCritical: 15,
	model.SeverityHigh:     10,
	model.SeverityMedium:   5,
	model.SeverityLow:      2,
}

func SeverityWeight(s model.Severity) float64 {
	return severityWeights[s]
}

// Rescore recomputes rating, risk level and status for every vendor from its
// open incidents plus a symmetric fluctuation. Incidents pointing at vendors
// outside the slice contribute nothing.
func (e *Engine) Rescore(vendors []model.Vendor, incidents []model.Incident) []model.Vendor {
	penalties := OpenPenalties(incidents)
	out := make([]model.Vendor, len(vendors))
	for i, v := range vendors {
		fluctuation := (e.rnd.Float64() - 0.5) * 2 * e.params.Fluctuation
		rating := v.SecurityRating - penalties[v.ID]*e.params.PenaltyScale + fluctuation
		out[i] = applyRating(v, rating)
	}
	return out
}

// OpenPenalties sums severity weights of unresolved incidents per vendor id.
func OpenPenalties(incidents []model.Incident) map[string]float64 {
	out := make(map[string]float64)
	for _, inc := range incidents {
		if inc.Resolved() {
			continue
		}
		out[inc.VendorID] += SeverityWeight(inc.Severity)
	}
	return out
}

// OpenCounts counts unresolved incidents per vendor id.
func OpenCounts(incidents []model.Incident) map[string]int {
	out := make(map[string]int)
	for _, inc := range incidents {
		if !inc.Resolved() {
			out[inc.VendorID]++
		}
	}
	return out
}

func applyRating(v model.Vendor, rating float64) model.Vendor {
	rating = math.Round(clamp(rating, 0, 100)*10) / 10
	level := model.RiskLevelFor(rating)
	switch {
	case level == model.RiskCritical && v.Status == model.VendorActive:
		v.Status = model.VendorAtRisk
	case level == model.RiskLow && v.Status == model.VendorAtRisk:
		v.Status = model.VendorActive
	}
	v.SecurityRating = rating
	v.RiskLevel = level
	return v
}
