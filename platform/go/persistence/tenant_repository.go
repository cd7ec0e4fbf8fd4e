package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TenantsTable is the hub catalog of provisioned tenant databases.
const TenantsTable = "tenants"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// TenantRecord is a tenants row joined with its owning system.
type TenantRecord struct {
	TenantID          uuid.UUID `db:"tenant_id"`
	SystemID          uuid.UUID `db:"system_id"`
	Slug              string    `db:"slug"`
	DisplayName       string    `db:"display_name"`
	DatabaseName      string    `db:"database_name"`
	DatabaseHost      string    `db:"database_host"`
	LogoURL           *string   `db:"logo_url"`
	PrimaryColor      *string   `db:"primary_color"`
	WelcomeMessage    *string   `db:"welcome_message"`
	IsActive          bool      `db:"is_active"`
	MaintenanceMode   bool      `db:"maintenance_mode"`
	AllowRegistration bool      `db:"allow_registration"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`

	SystemSlug  string  `db:"system_slug"`
	SystemName  string  `db:"system_name"`
	SystemIcon  *string `db:"system_icon"`
	SystemColor *string `db:"system_color"`
	MemberCount int     `db:"member_count"`
}

// TenantFilter narrows ListTenants. Zero values mean "no filter".
type TenantFilter struct {
	Slug               string
	SystemSlug         string
	IncludeInactive    bool
	ExcludeMaintenance bool
}

var (
	// ErrNotFound is returned when a tenant record is not found.
	ErrNotFound = errors.New("tenant not found")
	// ErrTenantConflict reports a duplicated slug or database name.
	ErrTenantConflict = errors.New("tenant conflict")
)

var tenantColumns = []string{
	"t.tenant_id", "t.system_id", "t.slug", "t.display_name", "t.database_name", "t.database_host",
	"t.logo_url", "t.primary_color", "t.welcome_message", "t.is_active", "t.maintenance_mode",
	"t.allow_registration", "t.created_at", "t.updated_at",
	"s.slug AS system_slug", "s.display_name AS system_name", "s.icon AS system_icon", "s.color AS system_color",
	"(SELECT COUNT(*) FROM user_tenants ut WHERE ut.tenant_id = t.tenant_id AND ut.is_active) AS member_count",
}

// TenantStore provides access to the tenants table.
type TenantStore struct {
	db DB
}

// NewTenantStore creates a store; assumes BootstrapHubSchema already created the table.
func NewTenantStore(db DB) *TenantStore {
	if db == nil {
		panic("tenant store: db is required")
	}
	return &TenantStore{db: db}
}

func selectTenants() sq.SelectBuilder {
	return psql.Select(tenantColumns...).
		From(TenantsTable + " t").
		Join("systems s ON s.system_id = t.system_id")
}

// Create inserts a tenant row. Callers only do this after physical provisioning succeeded.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}

	query, args, err := psql.Insert(TenantsTable).
		Columns("tenant_id", "system_id", "slug", "display_name", "database_name", "database_host",
			"logo_url", "primary_color", "welcome_message", "is_active", "maintenance_mode", "allow_registration").
		Values(rec.TenantID, rec.SystemID, rec.Slug, rec.DisplayName, rec.DatabaseName, rec.DatabaseHost,
			rec.LogoURL, rec.PrimaryColor, rec.WelcomeMessage, rec.IsActive, rec.MaintenanceMode, rec.AllowRegistration).
		ToSql()
	if err != nil {
		return TenantRecord{}, fmt.Errorf("build tenant insert: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return TenantRecord{}, mapTenantConflict(err)
	}
	return s.Get(ctx, rec.TenantID)
}

// Get fetches a tenant by id regardless of its active flag.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	return s.getOne(ctx, selectTenants().Where(sq.Eq{"t.tenant_id": id}))
}

// GetActive fetches an active tenant by id.
func (s *TenantStore) GetActive(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	return s.getOne(ctx, selectTenants().Where(sq.Eq{"t.tenant_id": id, "t.is_active": true}))
}

// GetBySlug returns the active tenant by slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	return s.getOne(ctx, selectTenants().Where(sq.Eq{"t.slug": strings.TrimSpace(slug), "t.is_active": true}))
}

// List returns tenants ordered by system display order, then tenant display name.
func (s *TenantStore) List(ctx context.Context, filter TenantFilter) ([]TenantRecord, error) {
	builder := selectTenants()
	if !filter.IncludeInactive {
		builder = builder.Where(sq.Eq{"t.is_active": true})
	}
	if filter.ExcludeMaintenance {
		builder = builder.Where(sq.Eq{"t.maintenance_mode": false})
	}
	if slug := strings.TrimSpace(filter.Slug); slug != "" {
		builder = builder.Where(sq.Eq{"t.slug": slug})
	}
	if system := strings.TrimSpace(filter.SystemSlug); system != "" {
		builder = builder.Where(sq.Eq{"s.slug": system})
	}

	query, args, err := builder.OrderBy("s.display_order", "t.display_name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenant list: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes the tenant row together with its memberships and join requests,
// and clears any session context pointing at it.
func (s *TenantStore) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	statements := []string{
		"UPDATE user_sessions SET current_tenant_id = NULL WHERE current_tenant_id = $1",
		"DELETE FROM user_tenant_requests WHERE tenant_id = $1",
		"DELETE FROM user_tenants WHERE tenant_id = $1",
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx, "DELETE FROM "+TenantsTable+" WHERE tenant_id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *TenantStore) getOne(ctx context.Context, builder sq.SelectBuilder) (TenantRecord, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return TenantRecord{}, fmt.Errorf("build tenant query: %w", err)
	}
	return scanTenantRecord(s.db.QueryRow(ctx, query, args...))
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(
		&rec.TenantID, &rec.SystemID, &rec.Slug, &rec.DisplayName, &rec.DatabaseName, &rec.DatabaseHost,
		&rec.LogoURL, &rec.PrimaryColor, &rec.WelcomeMessage, &rec.IsActive, &rec.MaintenanceMode,
		&rec.AllowRegistration, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.SystemSlug, &rec.SystemName, &rec.SystemIcon, &rec.SystemColor, &rec.MemberCount,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

func mapTenantConflict(err error) error {
	var pgErr *pgconn.PgError
	if isUniqueViolation(err) && errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s", ErrTenantConflict, pgErr.ConstraintName)
	}
	return err
}
