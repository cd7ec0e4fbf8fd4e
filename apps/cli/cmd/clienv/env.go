// Package clienv opens the process resources shared by CLI commands.
package clienv

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	tenantsprov "github.com/zenGate-Global/seletor-hub/domains/tenants/be/provisioning"
	tenantsrepo "github.com/zenGate-Global/seletor-hub/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/config"
	platformlogging "github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

// Env bundles configuration, logging and database handles for one command run.
type Env struct {
	Config   config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Registry *persistence.Registry
}

// Open loads configuration from the environment and connects to the hub database.
// Callers must Close the returned Env.
func Open(ctx context.Context, verbose bool) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     level,
		Format:    platformlogging.FormatConsole,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.HubURL(),
		MaxConns:        cfg.HubMaxConns,
		ConnectAttempts: cfg.StartupRetry,
		ConnectWait:     cfg.StartupWait,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect hub: %w", err)
	}

	return &Env{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Registry: persistence.NewRegistry(pool, Credentials(cfg)),
	}, nil
}

// Credentials maps the tenant database settings onto the registry credentials.
func Credentials(cfg config.Config) persistence.TenantCredentials {
	return persistence.TenantCredentials{
		Driver:        cfg.TenantDB.Driver,
		Host:          cfg.TenantDB.Host,
		Port:          cfg.TenantDB.Port,
		User:          cfg.TenantDB.User,
		Password:      cfg.TenantDB.Password,
		AdminDatabase: cfg.TenantDB.AdminDatabase,
		SSLMode:       cfg.TenantDB.SSLMode,
	}
}

// Tenants builds the tenant lifecycle service over the hub and the tenant servers.
func (e *Env) Tenants() *tenantsservice.Service {
	return tenantsservice.New(
		tenantsrepo.NewPostgresRepository(persistence.NewTenantStore(e.Pool), persistence.NewSystemStore(e.Pool)),
		tenantsservice.ProvisioningDeps{
			DB:        tenantsprov.NewDBProvisioner(e.Registry, e.Logger),
			Template:  tenantsprov.NewTemplateApplier(e.Logger, nil),
			Connector: e.Registry,
		},
		tenantsservice.Options{TemplatePath: e.Config.TemplatePath, Logger: e.Logger},
	)
}

// Close releases every connection and flushes the logger.
func (e *Env) Close() {
	e.Registry.Close()
	persistence.ClosePool(e.Pool)
	_ = e.Logger.Sync()
}
