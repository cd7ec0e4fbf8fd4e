package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	membersvc "github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
	"github.com/zenGate-Global/seletor-hub/platform/go/metrics"
)

// Session revocation reasons.
const (
	RevokeLogout         = "user_logout"
	RevokeLogoutAll      = "logout_all"
	RevokePasswordChange = "password_change"
)

const minPasswordLength = 6

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionNotFound    = errors.New("session not found")
)

// User is a hub identity.
type User struct {
	ID            uuid.UUID
	Name          string
	Email         string
	PasswordHash  string
	Nickname      *string
	Phone         *string
	CPF           *string
	CNPJ          *string
	City          *string
	State         *string
	AvatarURL     *string
	Bio           *string
	IsActive      bool
	IsBlocked     bool
	BlockedReason *string
	LastLoginAt   *time.Time
	CreatedAt     time.Time
}

// NewUser is the row inserted by Register.
type NewUser struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Nickname     *string
	Phone        *string
}

// ProfileUpdate carries the editable profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	Name      *string
	Nickname  *string
	Phone     *string
	Bio       *string
	AvatarURL *string
}

func (p ProfileUpdate) empty() bool {
	return p.Name == nil && p.Nickname == nil && p.Phone == nil && p.Bio == nil && p.AvatarURL == nil
}

// SessionRecord is a persisted bearer session.
type SessionRecord struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	TokenHash       string
	DeviceName      *string
	DeviceType      string
	IPAddress       *string
	UserAgent       *string
	CurrentTenantID *uuid.UUID
	ExpiresAt       time.Time
}

// Repository abstracts the users, user_sessions and super_admins tables.
type Repository interface {
	CreateUser(ctx context.Context, u NewUser) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (User, error)
	IsSuperAdmin(ctx context.Context, email string) (bool, error)

	CreateSession(ctx context.Context, rec SessionRecord) error
	ActiveSession(ctx context.Context, tokenHash string) (SessionRecord, error)
	TouchSession(ctx context.Context, sessionID uuid.UUID) error
	RevokeSession(ctx context.Context, tokenHash, reason string) error
	RevokeAllSessions(ctx context.Context, userID uuid.UUID, reason string, keep *uuid.UUID) (int64, error)
	SetSessionTenant(ctx context.Context, sessionID, tenantID uuid.UUID) error
}

// Memberships is the part of the membership service the auth flows rely on.
type Memberships interface {
	MyTenants(ctx context.Context, userID uuid.UUID) ([]membersvc.UserTenant, error)
	ActiveMembership(ctx context.Context, userID uuid.UUID, ref membersvc.TenantRef) (membersvc.UserTenant, error)
}

// Session is the result of a successful register or login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
	Tenants   []membersvc.UserTenant
}

// Me describes the caller of GET /api/auth/me.
type Me struct {
	User            User
	Tenants         []membersvc.UserTenant
	CurrentTenantID *uuid.UUID
	IsSuperAdmin    bool
}

// RegisterInput is the payload of POST /api/auth/register.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Nickname *string
	Phone    *string
}

// Service implements registration, login and session management for the hub.
type Service struct {
	repo     Repository
	members  Memberships
	tokens   *platformauth.Tokens
	metrics  *metrics.Metrics
	logger   *zap.Logger
	hashCost int
}

// New wires the auth service. m may be nil.
func New(repo Repository, members Memberships, tokens *platformauth.Tokens, m *metrics.Metrics, logger *zap.Logger) *Service {
	if repo == nil {
		panic("auth repository is required")
	}
	if members == nil {
		panic("memberships are required")
	}
	if tokens == nil {
		panic("token issuer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, members: members, tokens: tokens, metrics: m, logger: logger, hashCost: bcrypt.DefaultCost}
}

// SetHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) SetHashCost(cost int) {
	s.hashCost = cost
}

// Register creates a user and opens a session for it.
func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo) (Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	switch {
	case in.Name == "":
		return Session{}, apperrors.NewValidation("name", "name is required")
	case in.Email == "":
		return Session{}, apperrors.NewValidation("email", "email is required")
	case in.Password == "":
		return Session{}, apperrors.NewValidation("password", "password is required")
	case len(in.Password) < minPasswordLength:
		return Session{}, apperrors.NewValidation("password", "password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, NewUser{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Nickname:     trimmed(in.Nickname),
		Phone:        trimmed(in.Phone),
	})
	if err != nil {
		return Session{}, err
	}

	token, expires, err := s.openSession(ctx, user, client)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Login verifies credentials and opens a session. The result lists the user's tenants.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, apperrors.NewValidation("email", "email and password are required")
	}

	sess, err := s.login(ctx, email, password, client)
	if err != nil {
		s.metrics.ObserveLogin(metrics.OutcomeFailure)
		return Session{}, err
	}
	s.metrics.ObserveLogin(metrics.OutcomeSuccess)
	return sess, nil
}

func (s *Service) login(ctx context.Context, email, password string, client ClientInfo) (Session, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return Session{}, ErrAccountDisabled
	}
	if user.IsBlocked {
		return Session{}, &platformauth.BlockedError{Reason: user.BlockedReason}
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID); err != nil {
		return Session{}, fmt.Errorf("touch last login: %w", err)
	}
	token, expires, err := s.openSession(ctx, user, client)
	if err != nil {
		return Session{}, err
	}
	tenants, err := s.members.MyTenants(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user, Tenants: tenants}, nil
}

// Authenticate resolves a bearer token to the identity of a live session.
func (s *Service) Authenticate(ctx context.Context, token string) (platformauth.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return platformauth.Identity{}, err
	}

	hash := platformauth.HashToken(token)
	sess, err := s.repo.ActiveSession(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return platformauth.Identity{}, platformauth.ErrSessionInvalid
		}
		return platformauth.Identity{}, err
	}
	if sess.UserID.String() != claims.UserID {
		return platformauth.Identity{}, platformauth.ErrSessionInvalid
	}

	user, err := s.repo.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return platformauth.Identity{}, platformauth.ErrUserInactive
		}
		return platformauth.Identity{}, err
	}
	if !user.IsActive {
		return platformauth.Identity{}, platformauth.ErrUserInactive
	}
	if user.IsBlocked {
		return platformauth.Identity{}, &platformauth.BlockedError{Reason: user.BlockedReason}
	}

	if err := s.repo.TouchSession(ctx, sess.ID); err != nil {
		s.logger.Warn("session activity update failed", zap.String("session_id", sess.ID.String()), zap.Error(err))
	}

	return platformauth.Identity{
		UserID:          user.ID,
		Email:           user.Email,
		SessionID:       sess.ID,
		TokenHash:       hash,
		CurrentTenantID: sess.CurrentTenantID,
	}, nil
}

// Logout revokes the caller's current session.
func (s *Service) Logout(ctx context.Context, id platformauth.Identity) error {
	return s.repo.RevokeSession(ctx, id.TokenHash, RevokeLogout)
}

// LogoutAll revokes every session of the caller, the current one included.
func (s *Service) LogoutAll(ctx context.Context, id platformauth.Identity) (int64, error) {
	return s.repo.RevokeAllSessions(ctx, id.UserID, RevokeLogoutAll, nil)
}

// Me returns the caller's profile, tenants and current tenant context.
func (s *Service) Me(ctx context.Context, id platformauth.Identity) (Me, error) {
	user, err := s.repo.GetUser(ctx, id.UserID)
	if err != nil {
		return Me{}, err
	}
	tenants, err := s.members.MyTenants(ctx, id.UserID)
	if err != nil {
		return Me{}, err
	}
	super, err := s.repo.IsSuperAdmin(ctx, user.Email)
	if err != nil {
		return Me{}, err
	}
	return Me{User: user, Tenants: tenants, CurrentTenantID: id.CurrentTenantID, IsSuperAdmin: super}, nil
}

// UpdateProfile edits the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (User, error) {
	if update.empty() {
		return User{}, apperrors.NewValidation("body", "no fields to update")
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return User{}, apperrors.NewValidation("name", "name cannot be empty")
	}
	return s.repo.UpdateProfile(ctx, userID, update)
}

// ChangePassword replaces the caller's password and revokes every other session.
func (s *Service) ChangePassword(ctx context.Context, id platformauth.Identity, current, next string) error {
	switch {
	case current == "" || next == "":
		return apperrors.NewValidation("newPassword", "currentPassword and newPassword are required")
	case len(next) < minPasswordLength:
		return apperrors.NewValidation("newPassword", "password must be at least %d characters", minPasswordLength)
	}

	user, err := s.repo.GetUser(ctx, id.UserID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	keep := id.SessionID
	revoked, err := s.repo.RevokeAllSessions(ctx, user.ID, RevokePasswordChange, &keep)
	if err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", user.ID.String()), zap.Int64("sessions_revoked", revoked))
	return nil
}

// SwitchTenant points the caller's session at a tenant where they hold an active membership.
func (s *Service) SwitchTenant(ctx context.Context, id platformauth.Identity, ref membersvc.TenantRef) (membersvc.UserTenant, error) {
	ut, err := s.members.ActiveMembership(ctx, id.UserID, ref)
	if err != nil {
		return membersvc.UserTenant{}, err
	}
	if err := s.repo.SetSessionTenant(ctx, id.SessionID, ut.Tenant.ID); err != nil {
		return membersvc.UserTenant{}, err
	}
	return ut, nil
}

// IsSuperAdmin reports whether the email belongs to an active super administrator.
func (s *Service) IsSuperAdmin(ctx context.Context, email string) (bool, error) {
	return s.repo.IsSuperAdmin(ctx, email)
}

func (s *Service) openSession(ctx context.Context, user User, client ClientInfo) (string, time.Time, error) {
	token, expires, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", time.Time{}, err
	}
	err = s.repo.CreateSession(ctx, SessionRecord{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  platformauth.HashToken(token),
		DeviceName: optional(client.DeviceName),
		DeviceType: ClassifyDevice(client.UserAgent),
		IPAddress:  optional(client.IP),
		UserAgent:  optional(truncate(client.UserAgent, maxUserAgent)),
		ExpiresAt:  expires,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return token, expires, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	return optional(*v)
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
