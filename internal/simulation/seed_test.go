package simulation

import (
	"context"
	"errors"
	"testing"

	"vendorrisk/internal/config"
	"vendorrisk/internal/model"
)

type stubLister struct {
	vendors []model.Vendor
	err     error
}

func (s stubLister) ListVendors(context.Context) ([]model.Vendor, error) {
	return s.vendors, s.err
}

func TestSeedVendorsPrecedence(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()

	got, err := SeedVendors(ctx, cfg, nil)
	if err != nil || len(got) != 3 || got[0].ID != "sim-1" {
		t.Fatalf("expected built-in vendors, got %+v (%v)", got, err)
	}

	cfg.Simulation.SeedFromStorage = true
	got, err = SeedVendors(ctx, cfg, stubLister{vendors: []model.Vendor{{ID: "db-1"}}})
	if err != nil || len(got) != 1 || got[0].ID != "db-1" {
		t.Fatalf("expected stored vendors, got %+v (%v)", got, err)
	}
	if _, err := SeedVendors(ctx, cfg, stubLister{err: errors.New("down")}); err == nil {
		t.Fatalf("expected storage error")
	}
	if _, err := SeedVendors(ctx, cfg, nil); err == nil {
		t.Fatalf("expected error without record source")
	}

	cfg.Simulation.Vendors = []model.Vendor{{ID: "cfg-1", SecurityRating: 90}}
	got, err = SeedVendors(ctx, cfg, stubLister{err: errors.New("unused")})
	if err != nil || len(got) != 1 || got[0].ID != "cfg-1" {
		t.Fatalf("expected configured vendors, got %+v (%v)", got, err)
	}
}
