package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	"github.com/zenGate-Global/seletor-hub/platform/go/metrics"
	"github.com/zenGate-Global/seletor-hub/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound       = errors.New("tenant not found")
	ErrConflictSlug   = errors.New("tenant slug already exists")
	ErrDisabled       = errors.New("tenant disabled")
	ErrMaintenance    = errors.New("tenant under maintenance")
	ErrSystemNotFound = errors.New("system not found")
)

// System is the downstream product family a tenant belongs to.
type System struct {
	ID           uuid.UUID
	Slug         string
	Name         string
	DisplayOrder int
	Icon         *string
	Color        *string
}

// Tenant is a hub catalog entry for one provisioned tenant database.
type Tenant struct {
	ID                uuid.UUID
	Slug              string
	DisplayName       string
	DatabaseName      string
	DatabaseHost      string
	LogoURL           *string
	PrimaryColor      *string
	WelcomeMessage    *string
	IsActive          bool
	MaintenanceMode   bool
	AllowRegistration bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	System            System
	MemberCount       int
}

// ListOptions captures catalog filters.
type ListOptions struct {
	Slug               string
	SystemSlug         string
	IncludeInactive    bool
	ExcludeMaintenance bool
}

// Repository abstracts the hub catalog.
type Repository interface {
	List(ctx context.Context, opts ListOptions) ([]Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	FindBySlug(ctx context.Context, slug string, includeInactive bool) (Tenant, error)
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindSystem(ctx context.Context, slug string) (System, error)
}

// ProvisionInput is the request to create a tenant database and register it.
type ProvisionInput struct {
	Slug              string
	DisplayName       string
	SystemSlug        string
	Host              string
	TemplatePath      string
	LogoURL           *string
	PrimaryColor      *string
	WelcomeMessage    *string
	AllowRegistration bool
}

// ProvisionResult reports what a provisioning call did.
type ProvisionResult struct {
	Tenant             Tenant
	DatabaseCreated    bool
	AlreadyProvisioned bool
	Template           TemplateResult
}

// Options carries the optional collaborators of the service.
type Options struct {
	TemplatePath string
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Service provides tenant lifecycle and catalog operations.
type Service struct {
	repo         Repository
	deps         ProvisioningDeps
	templatePath string
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// New constructs a Service with required dependencies.
func New(repo Repository, deps ProvisioningDeps, opts Options) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if deps.DB == nil || deps.Template == nil || deps.Connector == nil {
		panic("tenants provisioning deps are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:         repo,
		deps:         deps,
		templatePath: strings.TrimSpace(opts.TemplatePath),
		logger:       logger,
		metrics:      opts.Metrics,
	}
}

// List returns catalog entries matching opts.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Tenant, error) {
	return s.repo.List(ctx, opts)
}

// Available lists active tenants open to users, optionally limited to one system.
func (s *Service) Available(ctx context.Context, systemSlug string) ([]Tenant, error) {
	return s.repo.List(ctx, ListOptions{SystemSlug: systemSlug, ExcludeMaintenance: true})
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Provision creates the tenant database, applies the template and registers the tenant.
// The hub row is written only after the physical steps succeeded; a failed template leaves
// the database in place for inspection and no hub row. Provisioning an already registered
// slug returns the existing tenant.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (res ProvisionResult, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case err != nil:
			outcome = metrics.OutcomeFailure
		case res.AlreadyProvisioned:
			outcome = metrics.OutcomeSkipped
		}
		s.metrics.ObserveProvision(outcome, time.Since(start))
	}()

	slug, err := tenant.ValidateSlug(in.Slug)
	if err != nil {
		return ProvisionResult{}, err
	}
	dbName, err := tenant.DatabaseName(slug)
	if err != nil {
		return ProvisionResult{}, err
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		return ProvisionResult{}, apperrors.NewValidation("display_name", "display name is required")
	}
	if strings.TrimSpace(in.SystemSlug) == "" {
		return ProvisionResult{}, apperrors.NewValidation("system", "system slug is required")
	}
	host := s.deps.Connector.ResolveHost(in.Host)
	if host == "" {
		return ProvisionResult{}, apperrors.NewValidation("database_host", "no tenant database host configured")
	}

	system, err := s.repo.FindSystem(ctx, in.SystemSlug)
	if err != nil {
		return ProvisionResult{}, err
	}

	existing, err := s.repo.FindBySlug(ctx, slug, true)
	switch {
	case err == nil:
		s.logger.Info("tenant already provisioned", zap.String("slug", slug), zap.String("database", existing.DatabaseName))
		return ProvisionResult{Tenant: existing, AlreadyProvisioned: true}, nil
	case !errors.Is(err, ErrNotFound):
		return ProvisionResult{}, err
	}

	logger := s.logger.With(zap.String("slug", slug), zap.String("database", dbName), zap.String("host", host))

	created, err := s.deps.DB.CreateDatabase(ctx, host, dbName)
	if err != nil {
		return ProvisionResult{}, err
	}

	tpl, err := s.applyTemplate(ctx, host, dbName, in.TemplatePath)
	if err != nil {
		logger.Error("tenant template failed; database left in place", zap.Error(err))
		return ProvisionResult{}, err
	}

	t, err := s.repo.Create(ctx, Tenant{
		ID:                uuid.New(),
		Slug:              slug,
		DisplayName:       displayName,
		DatabaseName:      dbName,
		DatabaseHost:      host,
		LogoURL:           in.LogoURL,
		PrimaryColor:      in.PrimaryColor,
		WelcomeMessage:    in.WelcomeMessage,
		IsActive:          true,
		AllowRegistration: in.AllowRegistration,
		System:            system,
	})
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("register tenant %s: %w", slug, err)
	}

	logger.Info("tenant provisioned", zap.Bool("database_created", created), zap.Int("statements", tpl.Total()))
	return ProvisionResult{Tenant: t, DatabaseCreated: created, Template: tpl}, nil
}

// Teardown drops a tenant database. Dropping an absent database is not an error.
func (s *Service) Teardown(ctx context.Context, host, dbName string) error {
	err := s.deps.DB.DropDatabase(ctx, s.deps.Connector.ResolveHost(host), dbName)
	if err != nil {
		s.metrics.ObserveTeardown(metrics.OutcomeFailure)
		return err
	}
	s.metrics.ObserveTeardown(metrics.OutcomeSuccess)
	return nil
}

// TeardownTenant drops the physical database of a registered tenant and then removes its hub row.
func (s *Service) TeardownTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if err := s.Teardown(ctx, t.DatabaseHost, t.DatabaseName); err != nil {
		return Tenant{}, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return Tenant{}, fmt.Errorf("unregister tenant %s: %w", t.Slug, err)
	}
	s.logger.Info("tenant torn down", zap.String("slug", t.Slug), zap.String("database", t.DatabaseName))
	return t, nil
}

// ApplyTemplateToExistingDatabase applies a template to a database that already exists.
// An empty templatePath falls back to the configured template.
func (s *Service) ApplyTemplateToExistingDatabase(ctx context.Context, host, dbName, templatePath string) (TemplateResult, error) {
	if err := tenant.ValidateDatabaseName(dbName); err != nil {
		return TemplateResult{}, err
	}
	return s.applyTemplate(ctx, s.deps.Connector.ResolveHost(host), dbName, templatePath)
}

// BuildConnectionURL returns the connection string of a tenant database.
func (s *Service) BuildConnectionURL(host, dbName string) (string, error) {
	if err := tenant.ValidateDatabaseName(dbName); err != nil {
		return "", err
	}
	return s.deps.Connector.TenantURL(host, dbName), nil
}

// ResolveTenantSpace returns a lightweight tenant Space for middleware consumption.
func (s *Service) ResolveTenantSpace(ctx context.Context, slug string) (tenant.Space, error) {
	t, err := s.repo.FindBySlug(ctx, slug, true)
	if err != nil {
		return tenant.Space{}, err
	}
	if !t.IsActive {
		return tenant.Space{}, ErrDisabled
	}
	if t.MaintenanceMode {
		return tenant.Space{}, ErrMaintenance
	}
	return tenant.Space{
		TenantID:     t.ID,
		Slug:         t.Slug,
		Name:         t.DisplayName,
		DatabaseName: t.DatabaseName,
		DatabaseHost: t.DatabaseHost,
		SystemSlug:   t.System.Slug,
	}, nil
}

func (s *Service) applyTemplate(ctx context.Context, host, dbName, templatePath string) (TemplateResult, error) {
	if strings.TrimSpace(templatePath) == "" {
		templatePath = s.templatePath
	}

	conn, err := s.deps.Connector.OpenTenant(ctx, host, dbName)
	if err != nil {
		return TemplateResult{}, err
	}
	defer func() {
		if cerr := conn.Close(ctx); cerr != nil {
			s.logger.Warn("close tenant connection", zap.String("database", dbName), zap.Error(cerr))
		}
	}()

	return s.deps.Template.Apply(ctx, conn, templatePath)
}
