package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vendorrisk/internal/config"
	"vendorrisk/internal/model"
)

func newSQLiteForTest(t *testing.T) *sqliteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "records.db") + "?_pragma=busy_timeout(5000)"
	st, err := NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := st.(*sqliteStore)
	t.Cleanup(func() { _ = s.Close() })
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestInitIsRepeatable(t *testing.T) {
	s := newSQLiteForTest(t)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("second init: %v", err)
	}
}

func TestVendorLifecycle(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()

	created, err := s.CreateVendor(ctx, model.Vendor{Name: "  Acme Cloud ", Category: "cloud", Compliance: model.Compliance{NIST: true}})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	if created.ID == "" || created.Name != "Acme Cloud" {
		t.Fatalf("unexpected vendor: %+v", created)
	}
	if created.Status != model.VendorActive || created.SecurityRating != 70 || created.RiskLevel != model.RiskMedium {
		t.Fatalf("expected create defaults, got %+v", created)
	}
	if !created.Compliance.NIST || created.Compliance.GDPR {
		t.Fatalf("unexpected compliance: %+v", created.Compliance)
	}

	rating := 35.0
	status := model.VendorStatus("under_review")
	updated, err := s.UpdateVendor(ctx, created.ID, VendorPatch{SecurityRating: &rating, Status: &status})
	if err != nil {
		t.Fatalf("update vendor: %v", err)
	}
	if updated.SecurityRating != 35 || updated.RiskLevel != model.RiskCritical || updated.Status != model.VendorUnderReview {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected updated_at to advance")
	}

	bad := 140.0
	if _, err := s.UpdateVendor(ctx, created.ID, VendorPatch{SecurityRating: &bad}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := s.UpdateVendor(ctx, "missing", VendorPatch{SecurityRating: &rating}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.CreateVendor(ctx, model.Vendor{Name: " "}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty name, got %v", err)
	}

	list, err := s.ListVendors(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one vendor, got %d (%v)", len(list), err)
	}
	if err := s.DeleteVendor(ctx, created.ID); err != nil {
		t.Fatalf("delete vendor: %v", err)
	}
	if _, err := s.GetVendor(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteVendor(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestIncidentsJoinVendorNewestFirst(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()
	v, err := s.CreateVendor(ctx, model.Vendor{ID: "v1", Name: "PayCo", Category: "payments"})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	older, err := s.CreateIncident(ctx, model.Incident{VendorID: v.ID, Title: "Old", DetectedAt: base})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if older.Severity != model.SeverityMedium || older.Status != model.IncidentOpen {
		t.Fatalf("expected incident defaults, got %+v", older)
	}
	if _, err := s.CreateIncident(ctx, model.Incident{VendorID: v.ID, Title: "New", Severity: model.SeverityCritical, DetectedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if _, err := s.CreateVendor(ctx, model.Vendor{ID: "gone", Name: "Retired"}); err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	if _, err := s.CreateIncident(ctx, model.Incident{VendorID: "gone", Title: "Orphan", DetectedAt: base.Add(-time.Hour)}); err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if err := s.DeleteVendor(ctx, "gone"); err != nil {
		t.Fatalf("delete vendor: %v", err)
	}

	list, err := s.ListIncidents(ctx)
	if err != nil {
		t.Fatalf("list incidents: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 incidents, got %d", len(list))
	}
	if list[0].Title != "New" || list[1].Title != "Old" || list[2].Title != "Orphan" {
		t.Fatalf("unexpected order: %s, %s, %s", list[0].Title, list[1].Title, list[2].Title)
	}
	if list[0].VendorName != "PayCo" || list[0].VendorCategory != "payments" {
		t.Fatalf("expected vendor join, got %+v", list[0])
	}
	if list[2].VendorName != model.UnknownVendorName {
		t.Fatalf("expected unknown vendor name, got %q", list[2].VendorName)
	}
	if !list[1].DetectedAt.Equal(base) {
		t.Fatalf("unexpected detected_at %s", list[1].DetectedAt)
	}

	counted, err := s.GetVendor(ctx, v.ID)
	if err != nil {
		t.Fatalf("get vendor: %v", err)
	}
	if counted.Incidents != 2 {
		t.Fatalf("expected vendor incident count 2, got %d", counted.Incidents)
	}

	if _, err := s.CreateIncident(ctx, model.Incident{VendorID: v.ID}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing title, got %v", err)
	}
	if _, err := s.CreateIncident(ctx, model.Incident{VendorID: v.ID, Title: "x", Severity: "extreme"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad severity, got %v", err)
	}
	if _, err := s.CreateIncident(ctx, model.Incident{VendorID: "no-such-vendor", Title: "Stray"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown vendor, got %v", err)
	}
	if _, err := s.GetVendor(ctx, "no-such-vendor"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed create must not leave a vendor behind, got %v", err)
	}
	if after, _ := s.GetVendor(ctx, v.ID); after.Incidents != 2 {
		t.Fatalf("rejected creates must not bump the count, got %d", after.Incidents)
	}
}

func TestResolveIncidentStampsOnce(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()
	if _, err := s.CreateVendor(ctx, model.Vendor{ID: "v1", Name: "PayCo"}); err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	inc, err := s.CreateIncident(ctx, model.Incident{VendorID: "v1", Title: "Leak", Severity: model.SeverityHigh})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	resolved, err := s.ResolveIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != model.IncidentResolved || resolved.ResolvedAt == nil {
		t.Fatalf("expected resolved incident, got %+v", resolved)
	}
	again, err := s.ResolveIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.ResolvedAt == nil || !again.ResolvedAt.Equal(*resolved.ResolvedAt) {
		t.Fatalf("expected resolved_at unchanged, got %v vs %v", again.ResolvedAt, resolved.ResolvedAt)
	}

	resolvedStatus := model.IncidentResolved
	same, err := s.UpdateIncident(ctx, inc.ID, IncidentPatch{Status: &resolvedStatus})
	if err != nil {
		t.Fatalf("no-op patch on resolved incident: %v", err)
	}
	if !same.ResolvedAt.Equal(*resolved.ResolvedAt) {
		t.Fatalf("no-op patch re-stamped resolved_at: %v vs %v", same.ResolvedAt, resolved.ResolvedAt)
	}
	low := model.SeverityLow
	open := model.IncidentOpen
	closed := model.IncidentClosed
	category := "changed"
	for name, patch := range map[string]IncidentPatch{
		"severity": {Status: &resolvedStatus, Severity: &low},
		"reopen":   {Status: &open},
		"close":    {Status: &closed},
		"category": {Category: &category},
	} {
		if _, err := s.UpdateIncident(ctx, inc.ID, patch); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid on resolved incident, got %v", name, err)
		}
	}
	final, err := s.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if final.Status != model.IncidentResolved || final.Severity != model.SeverityHigh || final.VendorID != "v1" {
		t.Fatalf("resolved incident changed: %+v", final)
	}
	if !final.ResolvedAt.Equal(*resolved.ResolvedAt) {
		t.Fatalf("resolved_at changed: %v vs %v", final.ResolvedAt, resolved.ResolvedAt)
	}

	if _, err := s.ResolveIncident(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteIncident(ctx, inc.ID); err != nil {
		t.Fatalf("delete incident: %v", err)
	}
	if _, err := s.GetIncident(ctx, inc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateIncidentBeforeResolution(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()
	if _, err := s.CreateVendor(ctx, model.Vendor{ID: "v1", Name: "PayCo"}); err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	inc, err := s.CreateIncident(ctx, model.Incident{VendorID: "v1", Title: "Leak"})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	investigating := model.IncidentInvestigating
	critical := model.SeverityCritical
	updated, err := s.UpdateIncident(ctx, inc.ID, IncidentPatch{Status: &investigating, Severity: &critical})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != investigating || updated.Severity != critical || updated.ResolvedAt != nil {
		t.Fatalf("unexpected incident after update: %+v", updated)
	}
	closed := model.IncidentClosed
	closedInc, err := s.UpdateIncident(ctx, inc.ID, IncidentPatch{Status: &closed})
	if err != nil || closedInc.ResolvedAt == nil {
		t.Fatalf("expected closing to stamp resolved_at, got %+v (%v)", closedInc, err)
	}
	if _, err := s.UpdateIncident(ctx, "missing", IncidentPatch{Status: &closed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := baseStore{numbered: true}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	lite := baseStore{}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("unexpected rebind: %s", got)
	}
}

func TestNewStoreDisabledAndUnknownDriver(t *testing.T) {
	st, err := NewStore(config.StorageConfig{Enabled: false})
	if err != nil || st != nil {
		t.Fatalf("expected nil store when disabled")
	}
	if _, err := NewStore(config.StorageConfig{Enabled: true, Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
