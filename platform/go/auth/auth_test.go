package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubAuthenticator struct {
	id  Identity
	err error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if s.err != nil {
		return Identity{}, s.err
	}
	id := s.id
	id.TokenHash = HashToken(token)
	return id, nil
}

type stubChecker map[string]bool

func (c stubChecker) IsSuperAdmin(_ context.Context, email string) (bool, error) {
	if email == "boom@x.com" {
		return false, errors.New("db down")
	}
	return c[email], nil
}

func echoIdentity(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-User", id.Email)
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireSession(t *testing.T) {
	reason := "chargeback"
	cases := []struct {
		name   string
		authn  stubAuthenticator
		header string
		status int
	}{
		{"valid", stubAuthenticator{id: Identity{UserID: uuid.New(), Email: "ana@x.com"}}, "Bearer tok", http.StatusNoContent},
		{"missing header", stubAuthenticator{}, "", http.StatusUnauthorized},
		{"expired", stubAuthenticator{err: ErrTokenExpired}, "Bearer tok", http.StatusUnauthorized},
		{"revoked", stubAuthenticator{err: ErrSessionInvalid}, "Bearer tok", http.StatusUnauthorized},
		{"inactive", stubAuthenticator{err: ErrUserInactive}, "Bearer tok", http.StatusUnauthorized},
		{"blocked", stubAuthenticator{err: &BlockedError{Reason: &reason}}, "Bearer tok", http.StatusForbidden},
		{"store failure", stubAuthenticator{err: errors.New("conn reset")}, "Bearer tok", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireSession(tc.authn, zaptest.NewLogger(t))(echoIdentity(t))
			rec := serve(h, tc.header)
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusNoContent {
				require.Equal(t, "ana@x.com", rec.Header().Get("X-User"))
			} else {
				require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	checker := stubChecker{"root@x.com": true}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	for email, status := range map[string]int{
		"root@x.com": http.StatusOK,
		"ana@x.com":  http.StatusForbidden,
		"boom@x.com": http.StatusInternalServerError,
	} {
		h := RequireSession(stubAuthenticator{id: Identity{Email: email}}, nil)(RequireSuperAdmin(checker, zaptest.NewLogger(t))(ok))
		require.Equal(t, status, serve(h, "Bearer tok").Code, email)
	}

	require.Equal(t, http.StatusUnauthorized, serve(RequireSuperAdmin(checker, nil)(ok), "").Code)
}

func TestRequireServiceKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	send := func(h http.Handler, key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/users/by-tenant/varzea", nil)
		if key != "" {
			req.Header.Set(ServiceKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	h := RequireServiceKey("k3y")(ok)
	require.Equal(t, http.StatusOK, send(h, "k3y"))
	require.Equal(t, http.StatusForbidden, send(h, "nope"))
	require.Equal(t, http.StatusForbidden, send(h, ""))

	require.Equal(t, http.StatusForbidden, send(RequireServiceKey("")(ok), ""))
}
