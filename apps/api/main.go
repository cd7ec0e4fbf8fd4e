package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	authrepo "github.com/zenGate-Global/seletor-hub/domains/auth/be/repo"
	authservice "github.com/zenGate-Global/seletor-hub/domains/auth/be/service"
	membersrepo "github.com/zenGate-Global/seletor-hub/domains/memberships/be/repo"
	membersservice "github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantsprov "github.com/zenGate-Global/seletor-hub/domains/tenants/be/provisioning"
	tenantsrepo "github.com/zenGate-Global/seletor-hub/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/domains/users/be/aggregator"
	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
	"github.com/zenGate-Global/seletor-hub/platform/go/config"
	platformlogging "github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/metrics"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

const tenantCacheTTL = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatalf("load config: %v", &apperrors.ConfigurationError{Key: "JWT_SECRET", Reason: "required by the api server"})
	}

	logFormat := platformlogging.FormatJSON
	if cfg.IsDev() {
		logFormat = platformlogging.FormatConsole
	}
	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
		Format:    logFormat,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.HubURL(),
		MaxConns:        cfg.HubMaxConns,
		ConnectAttempts: cfg.StartupRetry,
		ConnectWait:     cfg.StartupWait,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("init hub pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registry := persistence.NewRegistry(pool, persistence.TenantCredentials{
		Driver:        cfg.TenantDB.Driver,
		Host:          cfg.TenantDB.Host,
		Port:          cfg.TenantDB.Port,
		User:          cfg.TenantDB.User,
		Password:      cfg.TenantDB.Password,
		AdminDatabase: cfg.TenantDB.AdminDatabase,
		SSLMode:       cfg.TenantDB.SSLMode,
	})
	defer registry.Close()

	m := metrics.New()

	tenantStore := persistence.NewTenantStore(pool)
	userStore := persistence.NewUserStore(pool)
	sessionStore := persistence.NewSessionStore(pool)

	tenantService := tenantsservice.New(
		tenantsrepo.NewPostgresRepository(tenantStore, persistence.NewSystemStore(pool)),
		tenantsservice.ProvisioningDeps{
			DB:        tenantsprov.NewDBProvisioner(registry, logger),
			Template:  tenantsprov.NewTemplateApplier(logger, m),
			Connector: registry,
		},
		tenantsservice.Options{TemplatePath: cfg.TemplatePath, Logger: logger, Metrics: m},
	)

	membershipService := membersservice.New(membersrepo.NewPostgresRepository(membersrepo.Stores{
		Tenants:     tenantStore,
		Users:       userStore,
		Memberships: persistence.NewMembershipStore(pool),
		Requests:    persistence.NewRequestStore(pool),
		Sessions:    sessionStore,
	}), logger)

	authService := authservice.New(
		authrepo.NewPostgresRepository(userStore, sessionStore),
		membershipService,
		platformauth.NewTokens(cfg.JWTSecret, cfg.JWTExpiry),
		m,
		logger,
	)

	userAggregator := aggregator.New(tenantService, aggregator.NewPostgresFetcher(registry, logger), aggregator.Options{
		Concurrency:   cfg.AggregationConcurrency,
		TenantTimeout: cfg.AggregationTenantTimeout,
		Logger:        logger,
		Metrics:       m,
	})

	if cfg.ServiceAPIKey == "" {
		logger.Warn("SERVICE_API_KEY is empty; service routes reject every request")
	}

	handler := newRouter(routerConfig{
		Dev:            cfg.IsDev(),
		RequestTimeout: cfg.RequestTimeout,
		ServiceAPIKey:  cfg.ServiceAPIKey,
		TenantCacheTTL: tenantCacheTTL,
	}, services{
		Tenants:     tenantService,
		Auth:        authService,
		Memberships: membershipService,
		Users:       userAggregator,
		Ready:       pool.Ping,
	}, logger, m)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
