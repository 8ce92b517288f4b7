package normalize

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"vendorrisk/internal/model"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return obj
}

func TestVendorFlatShape(t *testing.T) {
	obj := decode(t, `{
		"id": "7b1c",
		"name": "CloudStore Inc",
		"category": "storage",
		"status": "under_review",
		"security_rating": 72,
		"compliance_nist": true,
		"compliance_iso27001": false,
		"compliance_soc2": true,
		"compliance_gdpr": false,
		"last_assessment": "2024-03-01T10:00:00Z",
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": "2024-03-01T10:00:00Z"
	}`)
	v, err := Vendor(obj)
	if err != nil {
		t.Fatalf("vendor: %v", err)
	}
	if v.ID != "7b1c" || v.Status != model.VendorUnderReview || v.SecurityRating != 72 {
		t.Fatalf("unexpected vendor: %+v", v)
	}
	if !v.Compliance.NIST || v.Compliance.ISO27001 || !v.Compliance.SOC2 {
		t.Fatalf("unexpected compliance: %+v", v.Compliance)
	}
	if v.RiskLevel != model.RiskMedium {
		t.Fatalf("expected medium risk, got %s", v.RiskLevel)
	}
	if v.LastAssessment == nil || !v.LastAssessment.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last_assessment: %v", v.LastAssessment)
	}
}

func TestVendorNestedShape(t *testing.T) {
	obj := decode(t, `{
		"id": 3,
		"name": "CloudStore Inc",
		"tier": "tier1",
		"accessLevel": "admin",
		"inherentRisk": 65,
		"securityRating": 85,
		"riskLevel": "low",
		"status": "incident",
		"compliance": {"NIST": true, "ISO27001": true},
		"incidents": 2,
		"lastAssessment": 1709287200000
	}`)
	v, err := Vendor(obj)
	if err != nil {
		t.Fatalf("vendor: %v", err)
	}
	if v.ID != "3" || v.Tier != 1 || v.AccessLevel != "admin" {
		t.Fatalf("unexpected vendor: %+v", v)
	}
	if v.InherentRisk != 65 || v.Incidents != 2 || v.Status != model.VendorAtRisk {
		t.Fatalf("unexpected vendor: %+v", v)
	}
	if !v.Compliance.NIST || !v.Compliance.ISO27001 || v.Compliance.GDPR {
		t.Fatalf("unexpected compliance: %+v", v.Compliance)
	}
	if v.LastAssessment == nil || v.LastAssessment.UnixMilli() != 1709287200000 {
		t.Fatalf("unexpected last_assessment: %v", v.LastAssessment)
	}
}

func TestVendorRejectsMissingIDAndBadStatus(t *testing.T) {
	if _, err := Vendor(map[string]any{"name": "x"}); err != ErrMissingID {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if _, err := Vendor(map[string]any{"id": "x", "status": "gone"}); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestIncidentDefaults(t *testing.T) {
	inc, err := Incident(decode(t, `{"id":"i1","vendor_id":"v1","title":"Leak","detected_at":1700000000}`))
	if err != nil {
		t.Fatalf("incident: %v", err)
	}
	if inc.Severity != model.SeverityMedium || inc.Status != model.IncidentOpen {
		t.Fatalf("unexpected defaults: %+v", inc)
	}
	if inc.DetectedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected detected_at: %s", inc.DetectedAt)
	}
	if inc.ResolvedAt != nil {
		t.Fatalf("expected no resolved_at")
	}
}

func TestIncidentCamelCase(t *testing.T) {
	inc, err := Incident(decode(t, `{"id":"i2","vendorId":"v9","severity":"CRITICAL","status":"resolved","resolvedAt":"2024-05-01 12:00:00"}`))
	if err != nil {
		t.Fatalf("incident: %v", err)
	}
	if inc.VendorID != "v9" || inc.Severity != model.SeverityCritical || !inc.Resolved() {
		t.Fatalf("unexpected incident: %+v", inc)
	}
	if inc.ResolvedAt == nil || inc.ResolvedAt.Hour() != 12 {
		t.Fatalf("unexpected resolved_at: %v", inc.ResolvedAt)
	}
	if _, err := Incident(map[string]any{"id": "i3", "severity": "extreme"}); err == nil {
		t.Fatalf("expected severity error")
	}
}

func TestCanonicalKey(t *testing.T) {
	cases := map[string]string{
		"securityRating":  "security_rating",
		"vendor_id":       "vendor_id",
		"ISO27001":        "iso27001",
		"complianceNIST":  "compliance_nist",
		"last-assessment": "last_assessment",
		"updatedAt":       "updated_at",
	}
	for in, want := range cases {
		if got := CanonicalKey(in); got != want {
			t.Fatalf("CanonicalKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	if _, err := ParseTimestamp("", time.UTC); err == nil {
		t.Fatalf("expected empty timestamp error")
	}
	if _, err := ParseTimestamp("yesterday", time.UTC); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	ts, err := ParseTimestamp("1700000000123", time.UTC)
	if err != nil || ts.UnixMilli() != 1700000000123 {
		t.Fatalf("unexpected ms parse: %v %v", ts, err)
	}
	ts, err = ParseTimestamp("2024-02-03", time.UTC)
	if err != nil || ts.Day() != 3 {
		t.Fatalf("unexpected date parse: %v %v", ts, err)
	}
}

func TestParseTier(t *testing.T) {
	if ParseTier("Tier 2") != 2 || ParseTier("3") != 3 || ParseTier("none") != 0 {
		t.Fatalf("unexpected tier parse")
	}
}
