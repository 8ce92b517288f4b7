package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vendorrisk/internal/model"
)

// VendorLookup resolves vendors the view has not seen yet.
type VendorLookup interface {
	GetVendor(ctx context.Context, id string) (model.Vendor, error)
}

// View is the live, change-driven copy of the record source. Lists are kept
// newest first.
type View struct {
	mu        sync.RWMutex
	vendors   []model.Vendor
	incidents []model.IncidentWithVendor
	lookup    VendorLookup
	logger    *slog.Logger
	applied   uint64
}

func NewView(lookup VendorLookup, logger *slog.Logger) *View {
	return &View{lookup: lookup, logger: logger}
}

// Load replaces the view contents with an initial listing.
func (v *View) Load(vendors []model.Vendor, incidents []model.IncidentWithVendor) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vendors = append([]model.Vendor(nil), vendors...)
	v.incidents = append([]model.IncidentWithVendor(nil), incidents...)
}

func (v *View) Vendors() []model.Vendor {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]model.Vendor, len(v.vendors))
	copy(out, v.vendors)
	return out
}

func (v *View) Incidents() []model.IncidentWithVendor {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]model.IncidentWithVendor, len(v.incidents))
	copy(out, v.incidents)
	return out
}

func (v *View) Applied() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.applied
}

// Apply folds one change into the view. Updates and deletes of unknown rows
// are ignored.
func (v *View) Apply(ctx context.Context, ev ChangeEvent) error {
	switch ev.Table {
	case TableVendors:
		return v.applyVendor(ev)
	case TableIncidents:
		return v.applyIncident(ctx, ev)
	}
	return fmt.Errorf("unknown table %q", ev.Table)
}

func (v *View) applyVendor(ev ChangeEvent) error {
	if ev.Type == OpDelete {
		id := ev.ID()
		v.mu.Lock()
		v.vendors = removeVendor(v.vendors, id)
		v.applied++
		v.mu.Unlock()
		return nil
	}
	vendor, err := normalizeVendor(ev.Record)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	switch ev.Type {
	case OpInsert:
		v.vendors = append([]model.Vendor{vendor}, removeVendor(v.vendors, vendor.ID)...)
	case OpUpdate:
		for i := range v.vendors {
			if v.vendors[i].ID == vendor.ID {
				v.vendors[i] = vendor
				break
			}
		}
	}
	for i := range v.incidents {
		if v.incidents[i].VendorID == vendor.ID {
			v.incidents[i].VendorName = vendor.Name
			v.incidents[i].VendorCategory = vendor.Category
		}
	}
	v.applied++
	return nil
}

func (v *View) applyIncident(ctx context.Context, ev ChangeEvent) error {
	if ev.Type == OpDelete {
		id := ev.ID()
		v.mu.Lock()
		v.incidents = removeIncident(v.incidents, id)
		v.applied++
		v.mu.Unlock()
		return nil
	}
	inc, err := normalizeIncident(ev.Record)
	if err != nil {
		return err
	}
	joined := v.enrich(ctx, inc)
	v.mu.Lock()
	defer v.mu.Unlock()
	switch ev.Type {
	case OpInsert:
		v.incidents = append([]model.IncidentWithVendor{joined}, removeIncident(v.incidents, inc.ID)...)
	case OpUpdate:
		for i := range v.incidents {
			if v.incidents[i].ID == inc.ID {
				v.incidents[i] = joined
				break
			}
		}
	}
	v.applied++
	return nil
}

func (v *View) enrich(ctx context.Context, inc model.Incident) model.IncidentWithVendor {
	out := model.IncidentWithVendor{Incident: inc, VendorName: model.UnknownVendorName}
	v.mu.RLock()
	for _, vendor := range v.vendors {
		if vendor.ID == inc.VendorID {
			out.VendorName = vendor.Name
			out.VendorCategory = vendor.Category
			v.mu.RUnlock()
			return out
		}
	}
	v.mu.RUnlock()
	if v.lookup == nil || inc.VendorID == "" {
		return out
	}
	vendor, err := v.lookup.GetVendor(ctx, inc.VendorID)
	if err != nil {
		if v.logger != nil {
			v.logger.Debug("vendor lookup failed", "vendor_id", inc.VendorID, "err", err)
		}
		return out
	}
	out.VendorName = vendor.Name
	out.VendorCategory = vendor.Category
	return out
}

// Consume applies events from in until ctx is done or in is closed. A nil
// dedupe applies every event.
func (v *View) Consume(ctx context.Context, in <-chan ChangeEvent, dedupe *DedupeCache) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if dedupe != nil && dedupe.Duplicate(ev, time.Now()) {
				continue
			}
			if err := v.Apply(ctx, ev); err != nil && v.logger != nil {
				v.logger.Warn("change event rejected", "table", ev.Table, "type", ev.Type, "source", ev.Source, "err", err)
			}
		}
	}
}

var errEmptyRecord = errors.New("change event has no record")

func removeVendor(list []model.Vendor, id string) []model.Vendor {
	out := make([]model.Vendor, 0, len(list))
	for _, v := range list {
		if v.ID != id {
			out = append(out, v)
		}
	}
	return out
}

func removeIncident(list []model.IncidentWithVendor, id string) []model.IncidentWithVendor {
	out := make([]model.IncidentWithVendor, 0, len(list))
	for _, inc := range list {
		if inc.ID != id {
			out = append(out, inc)
		}
	}
	return out
}
