package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/seletor-hub/domains/memberships/be/repo"
	"github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantsvc "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
)

const testUserHeader = "X-Test-User"

type testServer struct {
	router http.Handler
	repo   *repo.MemoryRepository
	open   tenantsvc.Tenant
	gated  tenantsvc.Tenant
	admin  service.Profile
	player service.Profile
}

// withTestIdentity stands in for RequireSession.
func withTestIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(testUserHeader); raw != "" {
			r = r.WithContext(platformauth.WithIdentity(r.Context(), platformauth.Identity{UserID: uuid.MustParse(raw)}))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	r := repo.NewMemoryRepository()
	svc := service.New(r, logger)
	h := New(svc, logger, true)

	futebol := tenantsvc.System{ID: uuid.New(), Slug: "futebol", Name: "Futebol"}
	s := testServer{
		repo:   r,
		open:   r.AddTenant(tenantsvc.Tenant{Slug: "varzea", DisplayName: "Varzea", IsActive: true, AllowRegistration: true, System: futebol}),
		gated:  r.AddTenant(tenantsvc.Tenant{Slug: "elite", DisplayName: "Elite", IsActive: true, System: futebol}),
		admin:  r.AddProfile(service.Profile{Name: "Alice", Email: "alice@x.com"}),
		player: r.AddProfile(service.Profile{Name: "Bob", Email: "bob@x.com"}),
	}
	for _, tenant := range []tenantsvc.Tenant{s.open, s.gated} {
		_, _, err := svc.AddUserToTenant(t.Context(), s.admin.ID, s.admin.ID, tenant.ID, service.RoleAdmin)
		require.NoError(t, err)
	}

	router := chi.NewRouter()
	router.Route("/api", func(api chi.Router) {
		api.Group(func(session chi.Router) {
			session.Use(withTestIdentity)
			h.RegisterSession(session)
			session.Route("/admin", h.RegisterAdmin)
		})
		api.Group(func(svcRoutes chi.Router) {
			svcRoutes.Use(platformauth.RequireServiceKey("k3y"))
			h.RegisterService(svcRoutes)
		})
	})
	s.router = router
	return s
}

func (s testServer) do(t *testing.T, method, path string, user uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != uuid.Nil {
		req.Header.Set(testUserHeader, user.String())
	} else {
		req.Header.Set(platformauth.ServiceKeyHeader, "k3y")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestJoinStatuses(t *testing.T) {
	s := newTestServer(t)
	bob := s.player.ID

	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/user/tenants/join", bob, `{}`).Code)
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/user/tenants/join", bob, `{"tenantSlug":"nope"}`).Code)

	rec := s.do(t, http.MethodPost, "/api/user/tenants/join", bob, `{"tenantSlug":"varzea"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "joined", decode(t, rec)["status"])
	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/user/tenants/join", bob, `{"tenantSlug":"varzea"}`).Code)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/user/tenants/"+s.open.ID.String(), bob, "").Code)
	require.True(t, s.repo.SessionCleared(bob, s.open.ID))
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/user/tenants/"+s.open.ID.String(), bob, "").Code)

	rec = s.do(t, http.MethodPost, "/api/user/tenants/join", bob, `{"tenantId":"`+s.open.ID.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "reactivated", decode(t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/api/user/tenants/join", bob, `{"tenantSlug":"elite","message":"let me in"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "pending", decode(t, rec)["status"])
}

func TestMyTenantsGroupedBySystem(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/user/tenants", s.admin.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.EqualValues(t, 2, body["total"])
	systems := body["systems"].([]any)
	require.Len(t, systems, 1)
	group := systems[0].(map[string]any)
	require.Equal(t, "futebol", group["slug"])
	require.Len(t, group["tenants"], 2)

	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/user/tenants", uuid.Nil, "").Code)
}

func TestLastAdminCannotLeave(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodDelete, "/api/user/tenants/"+s.open.ID.String(), s.admin.ID, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/api/user/tenants/not-a-uuid", s.admin.ID, "").Code)
}

func TestTenantAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	bob := s.player.ID
	base := "/api/tenants/" + s.gated.ID.String()

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/user/tenants/join", bob, `{"tenantSlug":"elite"}`).Code)
	require.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, base+"/members", bob, "").Code)
	require.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, base+"/requests", bob, "").Code)

	rec := s.do(t, http.MethodGet, base+"/requests", s.admin.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	reqs := decode(t, rec)["requests"].([]any)
	require.Len(t, reqs, 1)
	requestID := reqs[0].(map[string]any)["id"].(string)

	rec = s.do(t, http.MethodPost, base+"/requests/"+requestID+"/approve", s.admin.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "bob@x.com", decode(t, rec)["user"].(map[string]any)["email"])
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, base+"/requests/"+requestID+"/approve", s.admin.ID, "").Code)

	rec = s.do(t, http.MethodGet, base+"/members", s.admin.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode(t, rec)["members"].([]any)
	require.Len(t, members, 2)
	require.Equal(t, "admin", members[0].(map[string]any)["role"])
	require.Equal(t, "player", members[1].(map[string]any)["role"])

	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, base+"/requests/"+uuid.NewString()+"/reject", s.admin.ID, `{"reason":"full"}`).Code)
}

func TestSuperAdminMembershipRoutes(t *testing.T) {
	s := newTestServer(t)
	path := "/api/admin/users/" + s.player.ID.String() + "/tenants/" + s.gated.ID.String()

	rec := s.do(t, http.MethodPost, path, s.admin.ID, `{"role":"manager"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "manager", decode(t, rec)["role"])

	m, ok := s.repo.Membership(s.player.ID, s.gated.ID)
	require.True(t, ok)
	require.True(t, m.IsActive)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, s.admin.ID, "").Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, s.admin.ID, "").Code)

	missing := "/api/admin/users/" + uuid.NewString() + "/tenants/" + s.gated.ID.String()
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, missing, s.admin.ID, "").Code)
}

func TestServiceRoutes(t *testing.T) {
	s := newTestServer(t)

	link := "/api/users/tenants/varzea/link/" + s.player.ID.String()
	rec := s.do(t, http.MethodPost, link, uuid.Nil, `{"role":"superuser"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "client", decode(t, rec)["role"])

	rec = s.do(t, http.MethodGet, "/api/users/by-tenant/varzea", uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.EqualValues(t, 2, body["total"])
	require.Equal(t, "varzea", body["tenant"].(map[string]any)["slug"])

	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/users/by-tenant/nope", uuid.Nil, "").Code)
	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodDelete, "/api/users/tenants/varzea/unlink/"+s.player.ID.String(), uuid.Nil, "").Code)

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/user/tenants/join", s.player.ID, `{"tenantSlug":"elite"}`).Code)
	rec = s.do(t, http.MethodGet, "/api/users/tenants/elite/requests", uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	reqs := decode(t, rec)["requests"].([]any)
	require.Len(t, reqs, 1)
	requestID := reqs[0].(map[string]any)["id"].(string)

	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodPost, "/api/users/tenants/elite/requests/"+requestID+"/reject", uuid.Nil, "").Code)
	require.Equal(t, http.StatusNotFound,
		s.do(t, http.MethodPost, "/api/users/tenants/elite/requests/"+requestID+"/approve", uuid.Nil, "").Code)
}

func TestServiceRoutesRequireKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/users/by-tenant/varzea", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
