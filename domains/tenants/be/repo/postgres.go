package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

// PostgresRepository implements the tenant catalog on the hub database.
type PostgresRepository struct {
	tenants *persistence.TenantStore
	systems *persistence.SystemStore
}

// NewPostgresRepository constructs a repository backed by the hub stores.
func NewPostgresRepository(tenants *persistence.TenantStore, systems *persistence.SystemStore) *PostgresRepository {
	if tenants == nil || systems == nil {
		panic("tenant and system stores are required")
	}
	return &PostgresRepository{tenants: tenants, systems: systems}
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error) {
	records, err := r.tenants.List(ctx, persistence.TenantFilter{
		Slug:               opts.Slug,
		SystemSlug:         opts.SystemSlug,
		IncludeInactive:    opts.IncludeInactive,
		ExcludeMaintenance: opts.ExcludeMaintenance,
	})
	if err != nil {
		return nil, err
	}

	tenants := make([]service.Tenant, 0, len(records))
	for _, rec := range records {
		tenants = append(tenants, ToServiceTenant(rec))
	}
	return tenants, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.tenants.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapError(err)
	}
	return ToServiceTenant(rec), nil
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string, includeInactive bool) (service.Tenant, error) {
	if !includeInactive {
		rec, err := r.tenants.GetBySlug(ctx, slug)
		if err != nil {
			return service.Tenant{}, mapError(err)
		}
		return ToServiceTenant(rec), nil
	}

	tenants, err := r.List(ctx, service.ListOptions{Slug: slug, IncludeInactive: true})
	if err != nil {
		return service.Tenant{}, err
	}
	if len(tenants) == 0 {
		return service.Tenant{}, service.ErrNotFound
	}
	return tenants[0], nil
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.tenants.Create(ctx, persistence.TenantRecord{
		TenantID:          t.ID,
		SystemID:          t.System.ID,
		Slug:              t.Slug,
		DisplayName:       t.DisplayName,
		DatabaseName:      t.DatabaseName,
		DatabaseHost:      t.DatabaseHost,
		LogoURL:           t.LogoURL,
		PrimaryColor:      t.PrimaryColor,
		WelcomeMessage:    t.WelcomeMessage,
		IsActive:          t.IsActive,
		MaintenanceMode:   t.MaintenanceMode,
		AllowRegistration: t.AllowRegistration,
	})
	if err != nil {
		return service.Tenant{}, mapError(err)
	}
	return ToServiceTenant(rec), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return mapError(r.tenants.Delete(ctx, id))
}

func (r *PostgresRepository) FindSystem(ctx context.Context, slug string) (service.System, error) {
	rec, err := r.systems.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, persistence.ErrSystemNotFound) {
			return service.System{}, service.ErrSystemNotFound
		}
		return service.System{}, err
	}
	return service.System{
		ID:           rec.SystemID,
		Slug:         rec.Slug,
		Name:         rec.DisplayName,
		DisplayOrder: rec.DisplayOrder,
		Icon:         rec.Icon,
		Color:        rec.Color,
	}, nil
}

// ToServiceTenant maps a joined tenants row onto the catalog type.
func ToServiceTenant(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:                rec.TenantID,
		Slug:              rec.Slug,
		DisplayName:       rec.DisplayName,
		DatabaseName:      rec.DatabaseName,
		DatabaseHost:      rec.DatabaseHost,
		LogoURL:           rec.LogoURL,
		PrimaryColor:      rec.PrimaryColor,
		WelcomeMessage:    rec.WelcomeMessage,
		IsActive:          rec.IsActive,
		MaintenanceMode:   rec.MaintenanceMode,
		AllowRegistration: rec.AllowRegistration,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		MemberCount:       rec.MemberCount,
		System: service.System{
			ID:    rec.SystemID,
			Slug:  rec.SystemSlug,
			Name:  rec.SystemName,
			Icon:  rec.SystemIcon,
			Color: rec.SystemColor,
		},
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrTenantConflict):
		return service.ErrConflictSlug
	default:
		return err
	}
}

var _ service.Repository = (*PostgresRepository)(nil)
