package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	authrepo "github.com/zenGate-Global/seletor-hub/domains/auth/be/repo"
	authservice "github.com/zenGate-Global/seletor-hub/domains/auth/be/service"
	membersrepo "github.com/zenGate-Global/seletor-hub/domains/memberships/be/repo"
	membersservice "github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantsrepo "github.com/zenGate-Global/seletor-hub/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/domains/users/be/aggregator"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
	"github.com/zenGate-Global/seletor-hub/platform/go/metrics"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

type noopDB struct{}

func (noopDB) CreateDatabase(context.Context, string, string) (bool, error) { return true, nil }
func (noopDB) DropDatabase(context.Context, string, string) error           { return nil }
func (noopDB) DatabaseExists(context.Context, string, string) (bool, error) { return false, nil }

type noopTemplate struct{}

func (noopTemplate) Apply(context.Context, persistence.Executor, string) (tenantsservice.TemplateResult, error) {
	return tenantsservice.TemplateResult{}, nil
}

type noopConn struct{}

func (noopConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopConn) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopConn) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopConn) Close(context.Context) error                             { return nil }

type noopConnector struct{}

func (noopConnector) OpenTenant(context.Context, string, string) (persistence.TenantConn, error) {
	return noopConn{}, nil
}
func (noopConnector) TenantURL(host, database string) string {
	return "postgres://" + host + "/" + database
}
func (noopConnector) ResolveHost(host string) string { return host }

type emptyLister struct{}

func (emptyLister) List(context.Context, aggregator.Query) (aggregator.Result, error) {
	return aggregator.Result{}, nil
}

type fixture struct {
	router http.Handler
	users  *authrepo.MemoryRepository
}

func newFixture(t *testing.T, ready func(context.Context) error) fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	tenants := tenantsservice.New(tenantsrepo.NewMemoryRepository(), tenantsservice.ProvisioningDeps{
		DB: noopDB{}, Template: noopTemplate{}, Connector: noopConnector{},
	}, tenantsservice.Options{Logger: logger})
	members := membersservice.New(membersrepo.NewMemoryRepository(), logger)
	users := authrepo.NewMemoryRepository()
	auth := authservice.New(users, members, platformauth.NewTokens("test-secret", time.Hour), nil, logger)
	auth.SetHashCost(bcrypt.MinCost)

	router := newRouter(routerConfig{Dev: true, ServiceAPIKey: "k3y", TenantCacheTTL: time.Minute}, services{
		Tenants:     tenants,
		Auth:        auth,
		Memberships: members,
		Users:       emptyLister{},
		Ready:       ready,
	}, logger, metrics.New())
	return fixture{router: router, users: users}
}

func (f fixture) do(t *testing.T, method, path string, headers map[string]string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestProbesAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil, "").Code)

	rec := f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	down := newFixture(t, func(context.Context) error { return errors.New("connection refused") })
	require.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/readyz", nil, "").Code)
}

func TestSessionAndAdminGuards(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/auth/me", nil, "").Code)

	rec := f.do(t, http.MethodPost, "/api/auth/register", nil,
		`{"name":"Ana","email":"ana@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/auth/me", bearer(session.Token), "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/user/tenants", bearer(session.Token), "").Code)

	require.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/admin/tenants", bearer(session.Token), "").Code)
	require.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/admin/users", bearer(session.Token), "").Code)

	f.users.GrantSuperAdmin("ana@example.com")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/admin/tenants", bearer(session.Token), "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/admin/users", bearer(session.Token), "").Code)
}

func TestServiceRoutesRequireKeyAndKnownTenant(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/users/by-tenant/varzea", nil, "").Code)

	rec := f.do(t, http.MethodGet, "/api/users/by-tenant/varzea", map[string]string{platformauth.ServiceKeyHeader: "k3y"}, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestPreflightBypassesAuth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodOptions, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}
