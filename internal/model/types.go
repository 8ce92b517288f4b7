package model

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type VendorStatus string

const (
	VendorActive      VendorStatus = "active"
	VendorAtRisk      VendorStatus = "at-risk"
	VendorUnderReview VendorStatus = "under-review"
	VendorInactive    VendorStatus = "inactive"
)

type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// UnknownVendorName is shown for incidents whose vendor no longer exists.
const UnknownVendorName = "Unknown vendor"

type Compliance struct {
	NIST     bool `json:"nist" yaml:"nist"`
	ISO27001 bool `json:"iso27001" yaml:"iso27001"`
	SOC2     bool `json:"soc2" yaml:"soc2"`
	GDPR     bool `json:"gdpr" yaml:"gdpr"`
}

type Vendor struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	Category       string       `json:"category,omitempty" yaml:"category"`
	Tier           int          `json:"tier,omitempty" yaml:"tier"`
	AccessLevel    string       `json:"access_level,omitempty" yaml:"access_level"`
	InherentRisk   float64      `json:"inherent_risk" yaml:"inherent_risk"`
	SecurityRating float64      `json:"security_rating" yaml:"security_rating"`
	RiskLevel      RiskLevel    `json:"risk_level" yaml:"risk_level"`
	Status         VendorStatus `json:"status" yaml:"status"`
	Compliance     Compliance   `json:"compliance" yaml:"compliance"`
	Incidents      int          `json:"incidents" yaml:"incidents"`
	LastAssessment *time.Time   `json:"last_assessment,omitempty" yaml:"last_assessment"`
	CreatedAt      time.Time    `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt      time.Time    `json:"updated_at,omitempty" yaml:"-"`
}

type Incident struct {
	ID          string         `json:"id"`
	VendorID    string         `json:"vendor_id"`
	Category    string         `json:"category,omitempty"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      IncidentStatus `json:"status"`
	DetectedAt  time.Time      `json:"detected_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`
}

// Resolved reports whether the incident no longer counts against its vendor.
func (i Incident) Resolved() bool {
	return i.Status == IncidentResolved || i.Status == IncidentClosed
}

// IncidentWithVendor is an incident joined with the descriptive fields of its vendor.
type IncidentWithVendor struct {
	Incident
	VendorName     string `json:"vendor_name"`
	VendorCategory string `json:"vendor_category,omitempty"`
}

type State struct {
	Time      int        `json:"time"`
	Vendors   []Vendor   `json:"vendors"`
	Incidents []Incident `json:"incidents"`
}

// RiskLevelFor maps a security rating onto the fixed 80/60/40 risk buckets.
func RiskLevelFor(rating float64) RiskLevel {
	switch {
	case rating < 40:
		return RiskCritical
	case rating < 60:
		return RiskHigh
	case rating < 80:
		return RiskMedium
	default:
		return RiskLow
	}
}

func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	}
	return "", false
}

func ParseVendorStatus(s string) (VendorStatus, bool) {
	switch s {
	case "active":
		return VendorActive, true
	case "at-risk", "at_risk":
		return VendorAtRisk, true
	case "under-review", "under_review":
		return VendorUnderReview, true
	case "inactive":
		return VendorInactive, true
	case "incident":
		// numeric-id dashboard variant marks vendors with a live incident this way
		return VendorAtRisk, true
	}
	return "", false
}

func ParseIncidentStatus(s string) (IncidentStatus, bool) {
	switch IncidentStatus(s) {
	case IncidentOpen, IncidentInvestigating, IncidentResolved, IncidentClosed:
		return IncidentStatus(s), true
	}
	return "", false
}

type TimelineKind string

const (
	TimelineTick    TimelineKind = "tick"
	TimelineTrigger TimelineKind = "trigger"
	TimelineResolve TimelineKind = "resolve"
	TimelineReset   TimelineKind = "reset"
)

// TimelineEntry records what a single simulation step changed.
type TimelineEntry struct {
	At            time.Time    `json:"at"`
	Tick          int          `json:"tick"`
	Kind          TimelineKind `json:"kind"`
	Generated     *Incident    `json:"generated,omitempty"`
	Resolved      []string     `json:"resolved,omitempty"`
	OpenIncidents int          `json:"open_incidents"`
}

type RatingPoint struct {
	Tick      int       `json:"tick"`
	At        time.Time `json:"at"`
	Rating    float64   `json:"security_rating"`
	RiskLevel RiskLevel `json:"risk_level"`
}
