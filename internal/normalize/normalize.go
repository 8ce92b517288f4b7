package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"vendorrisk/internal/model"
)

var ErrMissingID = errors.New("record has no id")

// Fields is a record payload with canonical snake_case keys. Nested
// compliance objects are flattened to compliance_<standard>.
type Fields map[string]any

func NewFields(obj map[string]any) Fields {
	out := make(Fields, len(obj))
	for key, val := range obj {
		k := CanonicalKey(key)
		if nested, ok := val.(map[string]any); ok && k == "compliance" {
			for std, flag := range nested {
				out["compliance_"+CanonicalKey(std)] = flag
			}
			continue
		}
		out[k] = val
	}
	return out
}

// CanonicalKey lowercases a key and splits camelCase words with underscores.
func CanonicalKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	runes := []rune(key)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
		}
		if r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func (f Fields) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := f[k]; ok && v != nil {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func (f Fields) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || v == nil {
			continue
		}
		if n, ok := asFloat(v); ok {
			return n, true
		}
	}
	return 0, false
}

func (f Fields) Bool(keys ...string) bool {
	for _, k := range keys {
		if v, ok := f[k]; ok && v != nil {
			return asBool(v)
		}
	}
	return false
}

func (f Fields) Time(keys ...string) (*time.Time, error) {
	raw := f.String(keys...)
	if raw == "" {
		return nil, nil
	}
	ts, err := ParseTimestamp(raw, time.UTC)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

// ID returns the record id, which may arrive as a string or a number.
func (f Fields) ID() string {
	return f.String("id")
}

// Vendor converts a record payload of either dashboard shape into a Vendor.
func Vendor(obj map[string]any) (model.Vendor, error) {
	f := NewFields(obj)
	v := model.Vendor{
		ID:          f.ID(),
		Name:        f.String("name", "vendor_name"),
		Category:    f.String("category"),
		AccessLevel: f.String("access_level"),
	}
	if v.ID == "" {
		return model.Vendor{}, ErrMissingID
	}
	if tier := f.String("tier"); tier != "" {
		v.Tier = ParseTier(tier)
	}
	if n, ok := f.Float("inherent_risk"); ok {
		v.InherentRisk = n
	}
	if n, ok := f.Float("security_rating", "rating", "score"); ok {
		v.SecurityRating = n
	}
	v.RiskLevel = model.RiskLevelFor(v.SecurityRating)
	if lvl := strings.ToLower(f.String("risk_level")); lvl != "" {
		v.RiskLevel = model.RiskLevel(lvl)
	}
	v.Status = model.VendorActive
	if s := strings.ToLower(f.String("status")); s != "" {
		st, ok := model.ParseVendorStatus(s)
		if !ok {
			return model.Vendor{}, fmt.Errorf("vendor %s: unknown status %q", v.ID, s)
		}
		v.Status = st
	}
	v.Compliance = model.Compliance{
		NIST:     f.Bool("compliance_nist"),
		ISO27001: f.Bool("compliance_iso27001", "compliance_iso"),
		SOC2:     f.Bool("compliance_soc2"),
		GDPR:     f.Bool("compliance_gdpr"),
	}
	if n, ok := f.Float("incidents", "incident_count"); ok {
		v.Incidents = int(n)
	}
	var err error
	if v.LastAssessment, err = f.Time("last_assessment"); err != nil {
		return model.Vendor{}, fmt.Errorf("vendor %s: last_assessment: %w", v.ID, err)
	}
	if v.CreatedAt, err = requiredTime(f, "created_at"); err != nil {
		return model.Vendor{}, fmt.Errorf("vendor %s: created_at: %w", v.ID, err)
	}
	if v.UpdatedAt, err = requiredTime(f, "updated_at"); err != nil {
		return model.Vendor{}, fmt.Errorf("vendor %s: updated_at: %w", v.ID, err)
	}
	return v, nil
}

func Incident(obj map[string]any) (model.Incident, error) {
	f := NewFields(obj)
	inc := model.Incident{
		ID:          f.ID(),
		VendorID:    f.String("vendor_id", "vendor"),
		Category:    f.String("category", "type"),
		Title:       f.String("title"),
		Description: f.String("description"),
		Severity:    model.SeverityMedium,
		Status:      model.IncidentOpen,
	}
	if inc.ID == "" {
		return model.Incident{}, ErrMissingID
	}
	if s := strings.ToLower(f.String("severity")); s != "" {
		sev, ok := model.ParseSeverity(s)
		if !ok {
			return model.Incident{}, fmt.Errorf("incident %s: unknown severity %q", inc.ID, s)
		}
		inc.Severity = sev
	}
	if s := strings.ToLower(f.String("status")); s != "" {
		st, ok := model.ParseIncidentStatus(s)
		if !ok {
			return model.Incident{}, fmt.Errorf("incident %s: unknown status %q", inc.ID, s)
		}
		inc.Status = st
	}
	var err error
	if inc.DetectedAt, err = requiredTime(f, "detected_at", "timestamp"); err != nil {
		return model.Incident{}, fmt.Errorf("incident %s: detected_at: %w", inc.ID, err)
	}
	if inc.ResolvedAt, err = f.Time("resolved_at"); err != nil {
		return model.Incident{}, fmt.Errorf("incident %s: resolved_at: %w", inc.ID, err)
	}
	if inc.CreatedAt, err = requiredTime(f, "created_at"); err != nil {
		return model.Incident{}, fmt.Errorf("incident %s: created_at: %w", inc.ID, err)
	}
	if inc.UpdatedAt, err = requiredTime(f, "updated_at"); err != nil {
		return model.Incident{}, fmt.Errorf("incident %s: updated_at: %w", inc.ID, err)
	}
	return inc, nil
}

// ParseTier accepts 2, "2", "tier2" or "Tier 2". Unparseable input is tier 0.
func ParseTier(value string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

func requiredTime(f Fields, keys ...string) (time.Time, error) {
	ts, err := f.Time(keys...)
	if err != nil || ts == nil {
		return time.Time{}, err
	}
	return *ts, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	}
	return 0, false
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "1", "yes", "y":
			return true
		}
		return false
	}
	if n, ok := asFloat(v); ok {
		return n != 0
	}
	return false
}
