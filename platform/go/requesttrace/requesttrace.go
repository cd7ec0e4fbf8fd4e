package requesttrace

import (
	"context"

	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
)

type contextKey string

const ctxAuditInfo contextKey = "SELETOR_REQUEST_TRACE"

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindService   ActorKind = "service"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata used to attribute hub writes.
// UserID and SessionID are set only when ActorKind is user.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *string
	SessionID *string
	TenantID  *string
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromIdentity builds an AuditInfo for a request carrying a live session.
func FromIdentity(id platformauth.Identity, requestID string) AuditInfo {
	userID := id.UserID.String()
	sessionID := id.SessionID.String()
	audit := AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &userID,
		SessionID: &sessionID,
		RequestID: requestID,
	}
	if id.CurrentTenantID != nil {
		tenantID := id.CurrentTenantID.String()
		audit.TenantID = &tenantID
	}
	return audit
}

// Service builds an AuditInfo for calls authenticated by the shared service key.
func Service(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindService, RequestID: requestID}
}

// Anonymous builds an AuditInfo for unauthenticated requests (e.g., register, login).
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for CLI and background operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
