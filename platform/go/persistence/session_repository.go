package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionRecord is a user_sessions row. TokenHash is the hex SHA-256 of the bearer token.
type SessionRecord struct {
	SessionID       uuid.UUID
	UserID          uuid.UUID
	TokenHash       string
	DeviceName      *string
	DeviceType      string
	IPAddress       *string
	UserAgent       *string
	CurrentTenantID *uuid.UUID
	ExpiresAt       time.Time
	RevokedAt       *time.Time
	RevokedReason   *string
	LastActivityAt  time.Time
	CreatedAt       time.Time
}

// ErrSessionNotFound indicates no live session matched.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore exposes user_sessions.
type SessionStore struct {
	db DB
}

// NewSessionStore returns a store backed by the hub database.
func NewSessionStore(db DB) *SessionStore {
	if db == nil {
		panic("session store: db is required")
	}
	return &SessionStore{db: db}
}

// Create inserts a new session.
func (s *SessionStore) Create(ctx context.Context, rec SessionRecord) error {
	if rec.SessionID == uuid.Nil {
		rec.SessionID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO user_sessions (
            session_id, user_id, token_hash, device_name, device_type,
            ip_address, user_agent, current_tenant_id, expires_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.SessionID, rec.UserID, rec.TokenHash, rec.DeviceName, rec.DeviceType,
		rec.IPAddress, rec.UserAgent, rec.CurrentTenantID, rec.ExpiresAt)
	return err
}

// GetActiveByHash returns the unrevoked, unexpired session for a token hash.
func (s *SessionStore) GetActiveByHash(ctx context.Context, tokenHash string) (SessionRecord, error) {
	var r SessionRecord
	err := s.db.QueryRow(ctx, `
        SELECT session_id, user_id, token_hash, device_name, device_type, ip_address, user_agent,
               current_tenant_id, expires_at, revoked_at, revoked_reason, last_activity_at, created_at
        FROM user_sessions
        WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()`, tokenHash).Scan(
		&r.SessionID, &r.UserID, &r.TokenHash, &r.DeviceName, &r.DeviceType, &r.IPAddress, &r.UserAgent,
		&r.CurrentTenantID, &r.ExpiresAt, &r.RevokedAt, &r.RevokedReason, &r.LastActivityAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, err
	}
	return r, nil
}

// Touch updates last_activity_at.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE user_sessions SET last_activity_at = NOW() WHERE session_id = $1`, sessionID)
	return err
}

// RevokeByHash revokes the live session with the given token hash.
func (s *SessionStore) RevokeByHash(ctx context.Context, tokenHash, reason string) error {
	_, err := s.db.Exec(ctx, `
        UPDATE user_sessions SET revoked_at = NOW(), revoked_reason = $2
        WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash, reason)
	return err
}

// RevokeAllForUser revokes every live session of the user except keep (when non-nil).
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason string, keep *uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE user_sessions SET revoked_at = NOW(), revoked_reason = $2
        WHERE user_id = $1 AND revoked_at IS NULL AND ($3::uuid IS NULL OR session_id <> $3)`,
		userID, reason, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetCurrentTenant points the session at a tenant context.
func (s *SessionStore) SetCurrentTenant(ctx context.Context, sessionID, tenantID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE user_sessions SET current_tenant_id = $2 WHERE session_id = $1`, sessionID, tenantID)
	return err
}

// ClearTenantContext drops the tenant context from every session of the user pointing at tenantID.
func (s *SessionStore) ClearTenantContext(ctx context.Context, userID, tenantID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
        UPDATE user_sessions SET current_tenant_id = NULL
        WHERE user_id = $1 AND current_tenant_id = $2`, userID, tenantID)
	return err
}
