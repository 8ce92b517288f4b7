package simulation

import (
	"context"
	"errors"
	"fmt"

	"vendorrisk/internal/config"
	"vendorrisk/internal/engine"
	"vendorrisk/internal/model"
)

type VendorLister interface {
	ListVendors(ctx context.Context) ([]model.Vendor, error)
}

// SeedVendors picks the starting population: configured vendors first, then
// the record source when seed_from_storage is set, else the built-in set.
func SeedVendors(ctx context.Context, cfg *config.Config, records VendorLister) ([]model.Vendor, error) {
	if len(cfg.Simulation.Vendors) > 0 {
		return append([]model.Vendor(nil), cfg.Simulation.Vendors...), nil
	}
	if cfg.Simulation.SeedFromStorage {
		if records == nil {
			return nil, errors.New("seed from storage: no record source")
		}
		vendors, err := records.ListVendors(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed from storage: %w", err)
		}
		return vendors, nil
	}
	return engine.DefaultVendors(), nil
}
