package engine

import "vendorrisk/internal/model"

type Template struct {
	Category string
	Severity model.Severity
	Titles   []string
}

var defaultCatalog = []Template{
	{Category: "breach", Severity: model.SeverityCritical, Titles: []string{"Data Exposure Detected", "Credential Leak Identified", "Unauthorized Data Access"}},
	{Category: "compliance", Severity: model.SeverityMedium, Titles: []string{"Policy Violation", "Certification Lapse", "Audit Finding"}},
	{Category: "performance", Severity: model.SeverityLow, Titles: []string{"Service Degradation", "High Latency Detected", "Availability Issue"}},
	{Category: "security", Severity: model.SeverityHigh, Titles: []string{"Vulnerability Discovered", "Suspicious Activity", "Access Anomaly"}},
	{Category: "operational", Severity: model.SeverityLow, Titles: []string{"System Outage", "Configuration Drift", "Capacity Warning"}},
	{Category: "API Abuse", Severity: model.SeverityHigh, Titles: []string{"API Rate Limit Bypass", "Token Replay Detected"}},
	{Category: "Credential Compromise", Severity: model.SeverityCritical, Titles: []string{"Admin Credentials Exposed", "Session Hijack Detected"}},
	{Category: "Data Exfiltration", Severity: model.SeverityCritical, Titles: []string{"Bulk Export Anomaly", "Outbound Transfer Spike"}},
	{Category: "Malware Injection", Severity: model.SeverityHigh, Titles: []string{"Malicious Package Published", "Tampered Build Artifact"}},
	{Category: "Privilege Escalation", Severity: model.SeverityHigh, Titles: []string{"Unexpected Role Grant", "Service Account Abuse"}},
	{Category: "DDoS Attack", Severity: model.SeverityMedium, Titles: []string{"Traffic Flood Detected", "Edge Saturation"}},
}

// DefaultCatalog returns a copy of the built-in incident templates.
func DefaultCatalog() []Template {
	out := make([]Template, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}
