package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/seletor-hub/domains/auth/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

// PostgresRepository implements service.Repository over the hub user and session stores.
type PostgresRepository struct {
	users    *persistence.UserStore
	sessions *persistence.SessionStore
}

func NewPostgresRepository(users *persistence.UserStore, sessions *persistence.SessionStore) *PostgresRepository {
	if users == nil || sessions == nil {
		panic("auth repository: user and session stores are required")
	}
	return &PostgresRepository{users: users, sessions: sessions}
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u service.NewUser) (service.User, error) {
	rec, err := r.users.CreateUser(ctx, persistence.CreateUserParams{
		UserID:       u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Nickname:     u.Nickname,
		Phone:        u.Phone,
	})
	if err != nil {
		return service.User{}, mapError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (service.User, error) {
	rec, err := r.users.GetUser(ctx, id)
	if err != nil {
		return service.User{}, mapError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (service.User, error) {
	rec, err := r.users.GetUserByEmail(ctx, email)
	if err != nil {
		return service.User{}, mapError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	return r.users.TouchLastLogin(ctx, id)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return mapError(r.users.UpdatePasswordHash(ctx, id, hash))
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update service.ProfileUpdate) (service.User, error) {
	rec, err := r.users.UpdateProfile(ctx, id, persistence.UpdateProfileParams{
		Name:      update.Name,
		Nickname:  update.Nickname,
		Phone:     update.Phone,
		Bio:       update.Bio,
		AvatarURL: update.AvatarURL,
	})
	if err != nil {
		return service.User{}, mapError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresRepository) IsSuperAdmin(ctx context.Context, email string) (bool, error) {
	return r.users.IsSuperAdmin(ctx, email)
}

func (r *PostgresRepository) CreateSession(ctx context.Context, rec service.SessionRecord) error {
	return r.sessions.Create(ctx, persistence.SessionRecord{
		SessionID:       rec.ID,
		UserID:          rec.UserID,
		TokenHash:       rec.TokenHash,
		DeviceName:      rec.DeviceName,
		DeviceType:      rec.DeviceType,
		IPAddress:       rec.IPAddress,
		UserAgent:       rec.UserAgent,
		CurrentTenantID: rec.CurrentTenantID,
		ExpiresAt:       rec.ExpiresAt,
	})
}

func (r *PostgresRepository) ActiveSession(ctx context.Context, tokenHash string) (service.SessionRecord, error) {
	rec, err := r.sessions.GetActiveByHash(ctx, tokenHash)
	if err != nil {
		return service.SessionRecord{}, mapError(err)
	}
	return service.SessionRecord{
		ID:              rec.SessionID,
		UserID:          rec.UserID,
		TokenHash:       rec.TokenHash,
		DeviceName:      rec.DeviceName,
		DeviceType:      rec.DeviceType,
		IPAddress:       rec.IPAddress,
		UserAgent:       rec.UserAgent,
		CurrentTenantID: rec.CurrentTenantID,
		ExpiresAt:       rec.ExpiresAt,
	}, nil
}

func (r *PostgresRepository) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	return r.sessions.Touch(ctx, sessionID)
}

func (r *PostgresRepository) RevokeSession(ctx context.Context, tokenHash, reason string) error {
	return r.sessions.RevokeByHash(ctx, tokenHash, reason)
}

func (r *PostgresRepository) RevokeAllSessions(ctx context.Context, userID uuid.UUID, reason string, keep *uuid.UUID) (int64, error) {
	return r.sessions.RevokeAllForUser(ctx, userID, reason, keep)
}

func (r *PostgresRepository) SetSessionTenant(ctx context.Context, sessionID, tenantID uuid.UUID) error {
	return r.sessions.SetCurrentTenant(ctx, sessionID, tenantID)
}

func toUser(rec persistence.User) service.User {
	return service.User{
		ID:            rec.UserID,
		Name:          rec.Name,
		Email:         rec.Email,
		PasswordHash:  rec.PasswordHash,
		Nickname:      rec.Nickname,
		Phone:         rec.Phone,
		CPF:           rec.CPF,
		CNPJ:          rec.CNPJ,
		City:          rec.City,
		State:         rec.State,
		AvatarURL:     rec.AvatarURL,
		Bio:           rec.Bio,
		IsActive:      rec.IsActive,
		IsBlocked:     rec.IsBlocked,
		BlockedReason: rec.BlockedReason,
		LastLoginAt:   rec.LastLoginAt,
		CreatedAt:     rec.CreatedAt,
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrUserNotFound):
		return service.ErrUserNotFound
	case errors.Is(err, persistence.ErrUserConflict):
		return service.ErrEmailTaken
	case errors.Is(err, persistence.ErrSessionNotFound):
		return service.ErrSessionNotFound
	default:
		return err
	}
}
