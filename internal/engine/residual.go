package engine

import (
	"math"

	"vendorrisk/internal/model"
)

// ResidualScore is the deterministic alternative to the decay model. It never
// feeds back into ticks.
type ResidualScore struct {
	InherentRisk     float64 `json:"inherent_risk"`
	TierFactor       float64 `json:"tier_factor"`
	IncidentFactor   float64 `json:"incident_factor"`
	ComplianceFactor float64 `json:"compliance_factor"`
	Residual         int     `json:"residual"`
}

func ScoreResidual(v model.Vendor) ResidualScore {
	compliance := 1.0
	if v.Compliance.NIST {
		compliance *= 0.9
	}
	if v.Compliance.ISO27001 {
		compliance *= 0.9
	}
	tier := 0.9
	switch v.Tier {
	case 1:
		tier = 1.3
	case 2:
		tier = 1.1
	}
	count := v.Incidents
	if count < 0 {
		count = 0
	}
	incident := 1 + 0.05*float64(count)
	raw := v.InherentRisk * tier * incident * compliance
	return ResidualScore{
		InherentRisk:     v.InherentRisk,
		TierFactor:       tier,
		IncidentFactor:   incident,
		ComplianceFactor: compliance,
		Residual:         int(math.Round(clamp(raw, 0, 100))),
	}
}

func ResidualRisk(v model.Vendor) int {
	return ScoreResidual(v).Residual
}
