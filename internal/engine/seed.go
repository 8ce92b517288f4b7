package engine

import "vendorrisk/internal/model"

// DefaultVendors is the built-in population used when nothing else seeds a run.
func DefaultVendors() []model.Vendor {
	return []model.Vendor{
		{
			ID:             "sim-1",
			Name:           "Simulated Cloud Provider",
			Category:       "cloud",
			Tier:           1,
			AccessLevel:    "high",
			InherentRisk:   70,
			SecurityRating: 78,
			Status:         model.VendorActive,
			Compliance:     model.Compliance{NIST: true, ISO27001: true},
			Incidents:      1,
		},
		{
			ID:             "sim-2",
			Name:           "Simulated Payments Vendor",
			Category:       "payments",
			Tier:           2,
			AccessLevel:    "medium",
			InherentRisk:   55,
			SecurityRating: 62,
			Status:         model.VendorActive,
			Compliance:     model.Compliance{ISO27001: true},
		},
		{
			ID:             "sim-3",
			Name:           "CloudStore Inc",
			Category:       "storage",
			Tier:           1,
			AccessLevel:    "high",
			InherentRisk:   65,
			SecurityRating: 85,
			Status:         model.VendorActive,
			Compliance:     model.Compliance{NIST: true, ISO27001: true},
		},
	}
}

// SeedState builds a time-zero state, deriving risk levels from ratings and
// defaulting missing statuses to active.
func SeedState(vendors []model.Vendor) model.State {
	seeded := make([]model.Vendor, len(vendors))
	for i, v := range vendors {
		if v.Status == "" {
			v.Status = model.VendorActive
		}
		seeded[i] = applyRating(v, v.SecurityRating)
	}
	return model.State{Time: 0, Vendors: seeded, Incidents: []model.Incident{}}
}
