package engine

import (
	"fmt"

	"vendorrisk/internal/model"
)

// Generate produces at most one incident against a uniformly chosen vendor.
// It returns nil when the probability gate fails or there is nothing to pick.
func (e *Engine) Generate(vendors []model.Vendor, p float64) *model.Incident {
	if len(vendors) == 0 || len(e.catalog) == 0 {
		return nil
	}
	if e.rnd.Float64() >= clampUnit(p) {
		return nil
	}
	vendor := vendors[e.rnd.IntN(len(vendors))]
	tpl := e.catalog[e.rnd.IntN(len(e.catalog))]
	title := tpl.Category
	if len(tpl.Titles) > 0 {
		title = tpl.Titles[e.rnd.IntN(len(tpl.Titles))]
	}
	now := e.now()
	return &model.Incident{
		ID:          e.newID(),
		VendorID:    vendor.ID,
		Category:    tpl.Category,
		Severity:    tpl.Severity,
		Title:       title,
		Description: fmt.Sprintf("Automated detection: %s for vendor %s", title, vendor.Name),
		Status:      model.IncidentOpen,
		DetectedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
