package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
)

type ctxKey string

const ctxIdentity ctxKey = "SELETOR_IDENTITY"

// ServiceKeyHeader carries the shared secret of sibling services.
const ServiceKeyHeader = "X-Service-Key"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID          uuid.UUID
	Email           string
	SessionID       uuid.UUID
	TokenHash       string
	CurrentTenantID *uuid.UUID
}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// IdentityFromContext returns the identity set by RequireSession.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	return id, ok
}

var (
	// ErrSessionInvalid reports a revoked, expired or unknown session.
	ErrSessionInvalid = errors.New("session invalid or expired")
	// ErrUserInactive reports a deactivated or missing account.
	ErrUserInactive = errors.New("user not found or inactive")
)

// BlockedError rejects a blocked account.
type BlockedError struct {
	Reason *string
}

func (e *BlockedError) Error() string {
	if e.Reason == nil || *e.Reason == "" {
		return "account blocked"
	}
	return "account blocked: " + *e.Reason
}

// Authenticator resolves a bearer token to a live session identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// SuperAdminChecker reports whether an email belongs to an active super administrator.
type SuperAdminChecker interface {
	IsSuperAdmin(ctx context.Context, email string) (bool, error)
}

// RequireSession rejects requests without a valid bearer session and stores the Identity otherwise.
func RequireSession(authn Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	if authn == nil {
		panic("auth.RequireSession: authenticator must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := ExtractBearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				problems.Write(w, problems.Unauthorized("authentication token missing"))
				return
			}

			id, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				var blocked *BlockedError
				switch {
				case errors.As(err, &blocked):
					problems.Write(w, problems.Forbidden(blocked.Error()))
				case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid),
					errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrUserInactive):
					w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
					problems.Write(w, problems.Unauthorized(err.Error()))
				default:
					logging.FromRequest(r, logger).Error("session lookup failed", zap.Error(err))
					problems.Write(w, problems.FromError(err, false))
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireSuperAdmin must run after RequireSession. It lets through super administrators only.
func RequireSuperAdmin(checker SuperAdminChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	if checker == nil {
		panic("auth.RequireSuperAdmin: checker must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				problems.Write(w, problems.Unauthorized("authentication required"))
				return
			}

			allowed, err := checker.IsSuperAdmin(r.Context(), id.Email)
			if err != nil {
				logging.FromRequest(r, logger).Error("super admin lookup failed", zap.Error(err))
				problems.Write(w, problems.FromError(err, false))
				return
			}
			if !allowed {
				problems.Write(w, problems.Forbidden("restricted to super administrators"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireServiceKey admits sibling services presenting the configured X-Service-Key.
// An empty configured key rejects every request.
func RequireServiceKey(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(ServiceKeyHeader))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				problems.Write(w, problems.Forbidden("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
