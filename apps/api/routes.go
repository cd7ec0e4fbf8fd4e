package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	authhandler "github.com/zenGate-Global/seletor-hub/domains/auth/be/handler"
	authservice "github.com/zenGate-Global/seletor-hub/domains/auth/be/service"
	membershandler "github.com/zenGate-Global/seletor-hub/domains/memberships/be/handler"
	membersservice "github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantshandler "github.com/zenGate-Global/seletor-hub/domains/tenants/be/handler"
	tenantsservice "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	usershandler "github.com/zenGate-Global/seletor-hub/domains/users/be/handler"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
	platformlogging "github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/seletor-hub/platform/go/middleware"
	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
	tenantmiddleware "github.com/zenGate-Global/seletor-hub/platform/go/tenant/middleware"
)

// services are the collaborators mounted by the router.
type services struct {
	Tenants     *tenantsservice.Service
	Auth        *authservice.Service
	Memberships *membersservice.Service
	Users       usershandler.Lister
	// Ready reports whether the hub database answers; nil means always ready.
	Ready func(ctx context.Context) error
}

type routerConfig struct {
	Dev            bool
	RequestTimeout time.Duration
	ServiceAPIKey  string
	TenantCacheTTL time.Duration
}

func newRouter(cfg routerConfig, svc services, logger *zap.Logger, m *metrics.Metrics) http.Handler {
	tenantHTTPHandler := tenantshandler.New(svc.Tenants, logger, cfg.Dev)
	authHTTPHandler := authhandler.New(svc.Auth, logger, cfg.Dev)
	membersHTTPHandler := membershandler.New(svc.Memberships, logger, cfg.Dev)
	usersHTTPHandler := usershandler.New(svc.Users, logger, cfg.Dev)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		platformmiddleware.DefaultCORS(),
		platformlogging.RequestLogger(logger),
		m.Middleware,
	)
	if cfg.RequestTimeout > 0 {
		rootRouter.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready != nil {
			if err := svc.Ready(r.Context()); err != nil {
				platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
				problems.Write(w, problems.Unavailable("hub database unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", m.Handler())

	requireSession := platformauth.RequireSession(svc.Auth, logger)

	rootRouter.Route("/api", func(api chi.Router) {
		api.Group(func(r chi.Router) {
			r.Use(platformmiddleware.RequestTrace)
			authHTTPHandler.RegisterPublic(r)
			tenantHTTPHandler.RegisterPublic(r)
		})

		api.Group(func(r chi.Router) {
			r.Use(requireSession, platformmiddleware.RequestTrace)
			authHTTPHandler.RegisterSession(r)
			membersHTTPHandler.RegisterSession(r)
		})

		api.Route("/admin", func(r chi.Router) {
			r.Use(requireSession, platformauth.RequireSuperAdmin(svc.Auth, logger), platformmiddleware.RequestTrace)
			tenantHTTPHandler.RegisterAdmin(r)
			membersHTTPHandler.RegisterAdmin(r)
			usersHTTPHandler.RegisterAdmin(r)
		})

		api.Group(func(r chi.Router) {
			r.Use(
				platformauth.RequireServiceKey(cfg.ServiceAPIKey),
				platformmiddleware.ServiceTrace,
				tenantmiddleware.WithTenantSpace(svc.Tenants, tenantmiddleware.Config{
					CacheTTL: cfg.TenantCacheTTL,
					OnError:  tenantHTTPHandler.WriteError,
				}),
			)
			membersHTTPHandler.RegisterService(r)
		})
	})

	return rootRouter
}
