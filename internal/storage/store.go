package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"vendorrisk/internal/config"
	"vendorrisk/internal/model"
	"vendorrisk/internal/normalize"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrInvalid  = errors.New("invalid record")
)

//go:embed migrations
var migrations embed.FS

// Store is the record source behind the dashboard: vendors and incidents as
// an operator edits them, independent of the simulation state.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	ListVendors(ctx context.Context) ([]model.Vendor, error)
	GetVendor(ctx context.Context, id string) (model.Vendor, error)
	CreateVendor(ctx context.Context, v model.Vendor) (model.Vendor, error)
	UpdateVendor(ctx context.Context, id string, patch VendorPatch) (model.Vendor, error)
	DeleteVendor(ctx context.Context, id string) error

	ListIncidents(ctx context.Context) ([]model.IncidentWithVendor, error)
	GetIncident(ctx context.Context, id string) (model.IncidentWithVendor, error)
	CreateIncident(ctx context.Context, inc model.Incident) (model.IncidentWithVendor, error)
	UpdateIncident(ctx context.Context, id string, patch IncidentPatch) (model.IncidentWithVendor, error)
	ResolveIncident(ctx context.Context, id string) (model.IncidentWithVendor, error)
	DeleteIncident(ctx context.Context, id string) error
}

// VendorPatch holds the fields of a partial vendor update; nil means unchanged.
type VendorPatch struct {
	Name           *string             `json:"name"`
	Category       *string             `json:"category"`
	Tier           *int                `json:"tier"`
	AccessLevel    *string             `json:"access_level"`
	InherentRisk   *float64            `json:"inherent_risk"`
	SecurityRating *float64            `json:"security_rating"`
	Status         *model.VendorStatus `json:"status"`
	Compliance     *model.Compliance   `json:"compliance"`
	LastAssessment *time.Time          `json:"last_assessment"`
}

// IncidentPatch holds the editable incident fields. The owning vendor is
// fixed at creation.
type IncidentPatch struct {
	Category    *string               `json:"category"`
	Severity    *model.Severity       `json:"severity"`
	Title       *string               `json:"title"`
	Description *string               `json:"description"`
	Status      *model.IncidentStatus `json:"status"`
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db       *sql.DB
	dialect  goose.Dialect
	dir      string
	numbered bool
	newID    func() string
	now      func() time.Time
}

func newBaseStore(db *sql.DB, dialect goose.Dialect, dir string, numbered bool) baseStore {
	return baseStore{
		db:       db,
		dialect:  dialect,
		dir:      dir,
		numbered: numbered,
		newID:    uuid.NewString,
		now:      nowUTC,
	}
}

// Init applies the embedded migrations for the store's dialect.
func (b *baseStore) Init(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	fsys, err := fs.Sub(migrations, "migrations/"+b.dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(b.dialect, b.db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders to $n for dialects that need it.
func (b *baseStore) rebind(query string) string {
	if !b.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

const vendorColumns = `id, name, category, tier, access_level, inherent_risk, security_rating, status,
	compliance_nist, compliance_iso27001, compliance_soc2, compliance_gdpr, incidents,
	last_assessment, created_at, updated_at`

const incidentColumns = `i.id, i.vendor_id, i.category, i.severity, i.title, i.description, i.status,
	i.detected_at, i.resolved_at, i.created_at, i.updated_at,
	COALESCE(v.name, ''), COALESCE(v.category, '')`

const incidentFrom = ` FROM incidents i LEFT JOIN vendors v ON v.id = i.vendor_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVendor(row rowScanner) (model.Vendor, error) {
	var v model.Vendor
	var status string
	var last nullTime
	var created, updated nullTime
	err := row.Scan(&v.ID, &v.Name, &v.Category, &v.Tier, &v.AccessLevel, &v.InherentRisk, &v.SecurityRating, &status,
		&v.Compliance.NIST, &v.Compliance.ISO27001, &v.Compliance.SOC2, &v.Compliance.GDPR, &v.Incidents,
		&last, &created, &updated)
	if err != nil {
		return model.Vendor{}, err
	}
	v.Status = model.VendorStatus(status)
	v.RiskLevel = model.RiskLevelFor(v.SecurityRating)
	v.LastAssessment = last.ptr()
	v.CreatedAt = created.Time
	v.UpdatedAt = updated.Time
	return v, nil
}

func scanIncident(row rowScanner) (model.IncidentWithVendor, error) {
	var out model.IncidentWithVendor
	var severity, status string
	var detected, resolved, created, updated nullTime
	err := row.Scan(&out.ID, &out.VendorID, &out.Category, &severity, &out.Title, &out.Description, &status,
		&detected, &resolved, &created, &updated, &out.VendorName, &out.VendorCategory)
	if err != nil {
		return model.IncidentWithVendor{}, err
	}
	out.Severity = model.Severity(severity)
	out.Status = model.IncidentStatus(status)
	out.DetectedAt = detected.Time
	out.ResolvedAt = resolved.ptr()
	out.CreatedAt = created.Time
	out.UpdatedAt = updated.Time
	if out.VendorName == "" {
		out.VendorName = model.UnknownVendorName
	}
	return out, nil
}

func (b *baseStore) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Vendor, 0)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (b *baseStore) GetVendor(ctx context.Context, id string) (model.Vendor, error) {
	row := b.db.QueryRowContext(ctx, b.rebind(`SELECT `+vendorColumns+` FROM vendors WHERE id = ?`), id)
	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vendor{}, ErrNotFound
	}
	return v, err
}

func (b *baseStore) CreateVendor(ctx context.Context, v model.Vendor) (model.Vendor, error) {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return model.Vendor{}, fmt.Errorf("%w: vendor name is required", ErrInvalid)
	}
	if v.ID == "" {
		v.ID = b.newID()
	}
	if v.Status == "" {
		v.Status = model.VendorActive
	}
	if v.SecurityRating == 0 {
		v.SecurityRating = 70
	}
	if v.SecurityRating < 0 || v.SecurityRating > 100 {
		return model.Vendor{}, fmt.Errorf("%w: security_rating must be within [0,100]", ErrInvalid)
	}
	now := b.now()
	_, err := b.db.ExecContext(ctx, b.rebind(`INSERT INTO vendors (`+vendorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.Name, v.Category, v.Tier, v.AccessLevel, v.InherentRisk, v.SecurityRating, string(v.Status),
		v.Compliance.NIST, v.Compliance.ISO27001, v.Compliance.SOC2, v.Compliance.GDPR, v.Incidents,
		timeArg(v.LastAssessment), now, now)
	if err != nil {
		return model.Vendor{}, err
	}
	return b.GetVendor(ctx, v.ID)
}

func (b *baseStore) UpdateVendor(ctx context.Context, id string, patch VendorPatch) (model.Vendor, error) {
	set := make([]string, 0, 12)
	args := make([]any, 0, 13)
	add := func(col string, val any) {
		set = append(set, col+" = ?")
		args = append(args, val)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Vendor{}, fmt.Errorf("%w: vendor name is required", ErrInvalid)
		}
		add("name", name)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Tier != nil {
		add("tier", *patch.Tier)
	}
	if patch.AccessLevel != nil {
		add("access_level", *patch.AccessLevel)
	}
	if patch.InherentRisk != nil {
		add("inherent_risk", *patch.InherentRisk)
	}
	if patch.SecurityRating != nil {
		if *patch.SecurityRating < 0 || *patch.SecurityRating > 100 {
			return model.Vendor{}, fmt.Errorf("%w: security_rating must be within [0,100]", ErrInvalid)
		}
		add("security_rating", *patch.SecurityRating)
	}
	if patch.Status != nil {
		st, ok := model.ParseVendorStatus(string(*patch.Status))
		if !ok {
			return model.Vendor{}, fmt.Errorf("%w: unknown vendor status %q", ErrInvalid, *patch.Status)
		}
		add("status", string(st))
	}
	if patch.Compliance != nil {
		add("compliance_nist", patch.Compliance.NIST)
		add("compliance_iso27001", patch.Compliance.ISO27001)
		add("compliance_soc2", patch.Compliance.SOC2)
		add("compliance_gdpr", patch.Compliance.GDPR)
	}
	if patch.LastAssessment != nil {
		add("last_assessment", patch.LastAssessment.UTC())
	}
	add("updated_at", b.now())
	args = append(args, id)
	res, err := b.db.ExecContext(ctx, b.rebind(`UPDATE vendors SET `+strings.Join(set, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return model.Vendor{}, err
	}
	if err := requireAffected(res); err != nil {
		return model.Vendor{}, err
	}
	return b.GetVendor(ctx, id)
}

func (b *baseStore) DeleteVendor(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, b.rebind(`DELETE FROM vendors WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (b *baseStore) ListIncidents(ctx context.Context) ([]model.IncidentWithVendor, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+incidentColumns+incidentFrom+` ORDER BY i.detected_at DESC, i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.IncidentWithVendor, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (b *baseStore) GetIncident(ctx context.Context, id string) (model.IncidentWithVendor, error) {
	row := b.db.QueryRowContext(ctx, b.rebind(`SELECT `+incidentColumns+incidentFrom+` WHERE i.id = ?`), id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IncidentWithVendor{}, ErrNotFound
	}
	return inc, err
}

func (b *baseStore) CreateIncident(ctx context.Context, inc model.Incident) (model.IncidentWithVendor, error) {
	inc.Title = strings.TrimSpace(inc.Title)
	if inc.Title == "" {
		return model.IncidentWithVendor{}, fmt.Errorf("%w: incident title is required", ErrInvalid)
	}
	if inc.VendorID == "" {
		return model.IncidentWithVendor{}, fmt.Errorf("%w: incident vendor_id is required", ErrInvalid)
	}
	if inc.ID == "" {
		inc.ID = b.newID()
	}
	if inc.Severity == "" {
		inc.Severity = model.SeverityMedium
	}
	if _, ok := model.ParseSeverity(string(inc.Severity)); !ok {
		return model.IncidentWithVendor{}, fmt.Errorf("%w: unknown severity %q", ErrInvalid, inc.Severity)
	}
	if inc.Status == "" {
		inc.Status = model.IncidentOpen
	}
	if _, ok := model.ParseIncidentStatus(string(inc.Status)); !ok {
		return model.IncidentWithVendor{}, fmt.Errorf("%w: unknown incident status %q", ErrInvalid, inc.Status)
	}
	now := b.now()
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = now
	}
	if inc.Resolved() && inc.ResolvedAt == nil {
		inc.ResolvedAt = &now
	}
	if err := b.insertIncident(ctx, inc, now); err != nil {
		return model.IncidentWithVendor{}, err
	}
	return b.GetIncident(ctx, inc.ID)
}

// insertIncident stores inc and bumps its vendor's cumulative incident count
// in one transaction. An unknown vendor is ErrInvalid.
func (b *baseStore) insertIncident(ctx context.Context, inc model.Incident, now time.Time) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, b.rebind(`UPDATE vendors SET incidents = incidents + 1, updated_at = ? WHERE id = ?`), now, inc.VendorID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: vendor %q does not exist", ErrInvalid, inc.VendorID)
	} else if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, b.rebind(`INSERT INTO incidents
		(id, vendor_id, category, severity, title, description, status, detected_at, resolved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		inc.ID, inc.VendorID, inc.Category, string(inc.Severity), inc.Title, inc.Description, string(inc.Status),
		inc.DetectedAt.UTC(), timeArg(inc.ResolvedAt), now, now); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateIncident applies patch to an open incident. resolved_at is stamped on
// the transition into resolved or closed. A resolved incident only accepts a
// patch that changes nothing.
func (b *baseStore) UpdateIncident(ctx context.Context, id string, patch IncidentPatch) (model.IncidentWithVendor, error) {
	if err := patch.validate(); err != nil {
		return model.IncidentWithVendor{}, err
	}
	current, err := b.GetIncident(ctx, id)
	if err != nil {
		return model.IncidentWithVendor{}, err
	}
	if current.Resolved() {
		if patch.changes(current.Incident) {
			return model.IncidentWithVendor{}, fmt.Errorf("%w: incident %s is %s and can no longer change", ErrInvalid, id, current.Status)
		}
		return current, nil
	}

	set := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(col string, val any) {
		set = append(set, col+" = ?")
		args = append(args, val)
	}
	now := b.now()
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Severity != nil {
		add("severity", string(*patch.Severity))
	}
	if patch.Title != nil {
		add("title", strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Status != nil {
		next := model.Incident{Status: *patch.Status}
		add("status", string(next.Status))
		if next.Resolved() {
			add("resolved_at", now)
		}
	}
	add("updated_at", now)
	args = append(args, id)
	// the status guard keeps a concurrent resolve from being overwritten
	res, err := b.db.ExecContext(ctx, b.rebind(`UPDATE incidents SET `+strings.Join(set, ", ")+
		` WHERE id = ? AND status NOT IN ('resolved', 'closed')`), args...)
	if err != nil {
		return model.IncidentWithVendor{}, err
	}
	if err := requireAffected(res); errors.Is(err, ErrNotFound) {
		return model.IncidentWithVendor{}, fmt.Errorf("%w: incident %s changed while updating", ErrInvalid, id)
	} else if err != nil {
		return model.IncidentWithVendor{}, err
	}
	return b.GetIncident(ctx, id)
}

func (p IncidentPatch) validate() error {
	if p.Severity != nil {
		if _, ok := model.ParseSeverity(string(*p.Severity)); !ok {
			return fmt.Errorf("%w: unknown severity %q", ErrInvalid, *p.Severity)
		}
	}
	if p.Status != nil {
		if _, ok := model.ParseIncidentStatus(string(*p.Status)); !ok {
			return fmt.Errorf("%w: unknown incident status %q", ErrInvalid, *p.Status)
		}
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: incident title is required", ErrInvalid)
	}
	return nil
}

// changes reports whether applying p would alter inc.
func (p IncidentPatch) changes(inc model.Incident) bool {
	return (p.Category != nil && *p.Category != inc.Category) ||
		(p.Severity != nil && *p.Severity != inc.Severity) ||
		(p.Title != nil && strings.TrimSpace(*p.Title) != inc.Title) ||
		(p.Description != nil && *p.Description != inc.Description) ||
		(p.Status != nil && *p.Status != inc.Status)
}

// ResolveIncident marks an incident resolved. Already resolved incidents keep
// their original resolved_at.
func (b *baseStore) ResolveIncident(ctx context.Context, id string) (model.IncidentWithVendor, error) {
	current, err := b.GetIncident(ctx, id)
	if err != nil {
		return model.IncidentWithVendor{}, err
	}
	if current.Resolved() {
		return current, nil
	}
	status := model.IncidentResolved
	return b.UpdateIncident(ctx, id, IncidentPatch{Status: &status})
}

func (b *baseStore) DeleteIncident(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, b.rebind(`DELETE FROM incidents WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullTime scans timestamps whether the driver returns time.Time or text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	case int64:
		n.Time, n.Valid = time.Unix(v, 0).UTC(), true
		return nil
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (n *nullTime) parse(s string) error {
	if strings.TrimSpace(s) == "" {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	ts, err := normalize.ParseTimestamp(s, time.UTC)
	if err != nil {
		return err
	}
	n.Time, n.Valid = ts.UTC(), true
	return nil
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
