package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/repo"
	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
)

type nopDB struct{ dropped []string }

func (d *nopDB) CreateDatabase(context.Context, string, string) (bool, error) { return true, nil }
func (d *nopDB) DropDatabase(_ context.Context, _ string, name string) error {
	d.dropped = append(d.dropped, name)
	return nil
}
func (d *nopDB) DatabaseExists(context.Context, string, string) (bool, error) { return true, nil }

type nopTemplate struct{ err error }

func (t nopTemplate) Apply(context.Context, persistence.Executor, string) (service.TemplateResult, error) {
	return service.TemplateResult{Database: "x", CreateTable: 2}, t.err
}

type nopConn struct{}

func (nopConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (nopConn) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (nopConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unsupported")
}
func (nopConn) Close(context.Context) error { return nil }

type nopConnector struct{}

func (nopConnector) OpenTenant(context.Context, string, string) (persistence.TenantConn, error) {
	return nopConn{}, nil
}
func (nopConnector) TenantURL(host, db string) string { return host + "/" + db }
func (nopConnector) ResolveHost(host string) string {
	if host == "" {
		return "primary"
	}
	return host
}

func newRouter(t *testing.T, tpl nopTemplate) (http.Handler, *repo.MemoryRepository, *nopDB) {
	t.Helper()
	icon := "ball"
	memory := repo.NewMemoryRepository(
		service.System{Slug: "futebol", Name: "Futebol", Icon: &icon, DisplayOrder: 1},
		service.System{Slug: "tenis", Name: "Tenis", DisplayOrder: 2},
	)
	db := &nopDB{}
	svc := service.New(memory, service.ProvisioningDeps{DB: db, Template: tpl, Connector: nopConnector{}}, service.Options{})
	h := New(svc, zaptest.NewLogger(t), false)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterPublic(r)
		r.Route("/admin", h.RegisterAdmin)
	})
	return r, memory, db
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProvisionAndListAvailable(t *testing.T) {
	router, _, _ := newRouter(t, nopTemplate{})

	rec := do(t, router, http.MethodPost, "/api/admin/tenants", `{"slug":"copa-brahma","displayName":"Copa Brahma","system":"futebol"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "/api/tenants/copa-brahma", rec.Header().Get("Location"))

	var created struct {
		Tenant             adminTenantDTO `json:"tenant"`
		AlreadyProvisioned bool           `json:"alreadyProvisioned"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, "copa_brahma_db", created.Tenant.DatabaseName)
	require.Equal(t, defaultPrimaryColor, created.Tenant.PrimaryColor)
	require.True(t, created.Tenant.AllowRegistration)

	rec = do(t, router, http.MethodPost, "/api/admin/tenants", `{"slug":"copa-brahma","displayName":"Copa Brahma","system":"futebol"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/admin/tenants", `{"slug":"open-rio","displayName":"Open Rio","system":"tenis","allowRegistration":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/tenants/available", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var available struct {
		Systems []systemDTO `json:"systems"`
		Total   int         `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&available))
	require.Equal(t, 2, available.Total)
	require.Len(t, available.Systems, 2)
	require.Equal(t, "futebol", available.Systems[0].Slug)
	require.Equal(t, "copa-brahma", available.Systems[0].Tenants[0].Slug)
	require.False(t, available.Systems[1].Tenants[0].AllowRegistration)

	rec = do(t, router, http.MethodGet, "/api/tenants/available?system=tenis", "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&available))
	require.Equal(t, 1, available.Total)
}

func TestProvisionValidationProblem(t *testing.T) {
	router, _, _ := newRouter(t, nopTemplate{})

	rec := do(t, router, http.MethodPost, "/api/admin/tenants", `{"slug":"Bad Slug!","displayName":"x","system":"futebol"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var p problems.Details
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	require.Equal(t, problems.TypeValidation, p.Type)
	require.Contains(t, p.Errors, "slug")

	rec = do(t, router, http.MethodPost, "/api/admin/tenants", `{"slug":"acme","displayName":"x","system":"volei"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProvisionTemplateFailureHidesStatement(t *testing.T) {
	router, memory, _ := newRouter(t, nopTemplate{err: &apperrors.TemplateApplicationError{
		Database: "acme_db", Phase: "create table", Index: 1, Statement: "CREATE TABLE secret_stuff (x INT)",
	}})

	rec := do(t, router, http.MethodPost, "/api/admin/tenants", `{"slug":"acme","displayName":"Acme","system":"futebol"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret_stuff")

	all, err := memory.List(context.Background(), service.ListOptions{IncludeInactive: true})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestTeardownAndDetails(t *testing.T) {
	router, memory, db := newRouter(t, nopTemplate{})

	rec := do(t, router, http.MethodPost, "/api/admin/tenants", `{"slug":"acme","displayName":"Acme","system":"futebol"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/tenants/acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var details tenantDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&details))
	require.NotNil(t, details.System)
	require.Equal(t, "futebol", details.System.Slug)

	rec = do(t, router, http.MethodPost, "/api/admin/tenants/"+details.ID.String()+"/apply-template", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/admin/tenants/"+details.ID.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"acme_db"}, db.dropped)

	_, err := memory.Get(context.Background(), details.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	rec = do(t, router, http.MethodGet, "/api/tenants/acme", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/admin/tenants/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
