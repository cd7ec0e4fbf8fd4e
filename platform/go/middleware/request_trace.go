package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
	platformlogging "github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/requesttrace"
)

// RequestTrace populates the context with request-scoped AuditInfo and tags the request logger
// with the actor. It should run after RequireSession so the session identity is available when present.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if id, ok := platformauth.IdentityFromContext(r.Context()); ok {
			audit = requesttrace.FromIdentity(id, requestID)
		}
		next.ServeHTTP(w, r.WithContext(withAudit(r, audit)))
	})
}

// ServiceTrace marks requests admitted by RequireServiceKey as service calls.
func ServiceTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		audit := requesttrace.Service(middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(withAudit(r, audit)))
	})
}

func withAudit(r *http.Request, audit requesttrace.AuditInfo) context.Context {
	ctx := requesttrace.IntoContext(r.Context(), audit)
	logger, ok := platformlogging.FromContext(ctx)
	if !ok {
		return ctx
	}
	fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
	if audit.UserID != nil {
		fields = append(fields, zap.String("user_id", *audit.UserID))
	}
	return platformlogging.WithLogger(ctx, logger.With(fields...))
}
