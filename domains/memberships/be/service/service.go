package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tenantsvc "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
	"github.com/zenGate-Global/seletor-hub/platform/go/requesttrace"
	"github.com/zenGate-Global/seletor-hub/platform/go/tenant"
)

// Tenant roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RolePlayer  = "player"
	RoleViewer  = "viewer"
	RoleClient  = "client"
)

var validRoles = map[string]bool{
	RoleAdmin:   true,
	RoleManager: true,
	RolePlayer:  true,
	RoleViewer:  true,
	RoleClient:  true,
}

// NormalizeRole returns role when it is a known tenant role, fallback otherwise.
func NormalizeRole(role, fallback string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if validRoles[role] {
		return role
	}
	return fallback
}

// Domain sentinel errors.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrMaintenance     = errors.New("tenant is under maintenance")
	ErrAlreadyMember   = errors.New("user is already a member of this tenant")
	ErrNotMember       = errors.New("user is not a member of this tenant")
	ErrLastAdmin       = errors.New("user is the only administrator of this tenant; promote another member first")
	ErrForbidden       = errors.New("tenant admin or manager role required")
	ErrRequestNotFound = errors.New("join request not found")
)

// TenantRef identifies a tenant by id or, when ID is nil, by slug.
type TenantRef struct {
	ID   uuid.UUID
	Slug string
}

func (r TenantRef) empty() bool {
	return r.ID == uuid.Nil && strings.TrimSpace(r.Slug) == ""
}

// Membership links a hub user to a tenant with a role.
type Membership struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Role       string
	IsActive   bool
	JoinedAt   time.Time
	ApprovedBy *uuid.UUID
}

// UserTenant is one active membership of a user together with its tenant.
type UserTenant struct {
	Membership Membership
	Tenant     tenantsvc.Tenant
}

// Profile is the hub identity shown to tenant administrators and sibling services.
type Profile struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Nickname  *string
	Phone     *string
	CPF       *string
	CNPJ      *string
	City      *string
	State     *string
	AvatarURL *string
	Bio       *string
	IsActive  bool
	CreatedAt time.Time
}

// Member is an active tenant member.
type Member struct {
	Profile  Profile
	Role     string
	JoinedAt time.Time
}

// JoinRequest is a pending request to join an approval-gated tenant.
type JoinRequest struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Message   *string
	Status    string
	CreatedAt time.Time
	User      Profile
}

// UpsertInput inserts or reactivates a membership.
type UpsertInput struct {
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Role       string
	ApprovedBy *uuid.UUID
}

// JoinStatus reports how a join request was honoured.
type JoinStatus int

const (
	// JoinCreated means a new membership was inserted.
	JoinCreated JoinStatus = iota
	// JoinReactivated means a previously left membership was reactivated.
	JoinReactivated
	// JoinPending means the tenant requires approval and a request was recorded.
	JoinPending
)

// JoinResult is the outcome of Join.
type JoinResult struct {
	Status JoinStatus
	Tenant tenantsvc.Tenant
}

// Repository abstracts the hub tables backing memberships.
type Repository interface {
	FindTenant(ctx context.Context, ref TenantRef) (tenantsvc.Tenant, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error)
	GetMembership(ctx context.Context, userID, tenantID uuid.UUID) (Membership, error)
	UpsertMembership(ctx context.Context, input UpsertInput) (Membership, error)
	ReactivateMembership(ctx context.Context, membershipID uuid.UUID) error
	DeactivateMembership(ctx context.Context, userID, tenantID uuid.UUID) (bool, error)
	CountActiveAdmins(ctx context.Context, tenantID uuid.UUID) (int, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]UserTenant, error)
	ListMembers(ctx context.Context, tenantID uuid.UUID) ([]Member, error)
	UpsertPendingRequest(ctx context.Context, userID, tenantID uuid.UUID, message *string) (uuid.UUID, error)
	ListPendingRequests(ctx context.Context, tenantID uuid.UUID) ([]JoinRequest, error)
	GetRequest(ctx context.Context, requestID, tenantID uuid.UUID) (JoinRequest, error)
	ApproveRequest(ctx context.Context, requestID, tenantID uuid.UUID, approver *uuid.UUID) (Membership, error)
	RejectRequest(ctx context.Context, requestID, tenantID uuid.UUID, responder *uuid.UUID, reason string) error
	ClearSessionTenant(ctx context.Context, userID, tenantID uuid.UUID) error
}

// Service implements membership management on the hub.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

func New(repo Repository, logger *zap.Logger) *Service {
	if repo == nil {
		panic("membership repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// MyTenants lists the user's active memberships in active tenants, ordered by system then tenant.
func (s *Service) MyTenants(ctx context.Context, userID uuid.UUID) ([]UserTenant, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Join subscribes the user to a tenant. Approval-gated tenants record a pending request instead.
func (s *Service) Join(ctx context.Context, userID uuid.UUID, ref TenantRef, message string) (JoinResult, error) {
	if ref.empty() {
		return JoinResult{}, apperrors.NewValidation("tenantId", "tenantId or tenantSlug is required")
	}

	t, err := s.repo.FindTenant(ctx, ref)
	if err != nil {
		return JoinResult{}, err
	}
	if t.MaintenanceMode {
		return JoinResult{}, ErrMaintenance
	}

	existing, err := s.repo.GetMembership(ctx, userID, t.ID)
	switch {
	case err == nil:
		if existing.IsActive {
			return JoinResult{}, ErrAlreadyMember
		}
		if err := s.repo.ReactivateMembership(ctx, existing.ID); err != nil {
			return JoinResult{}, fmt.Errorf("reactivate membership: %w", err)
		}
		s.audit(ctx, "membership reactivated", userID, t.ID)
		return JoinResult{Status: JoinReactivated, Tenant: t}, nil
	case !errors.Is(err, ErrNotMember):
		return JoinResult{}, err
	}

	if !t.AllowRegistration {
		var msg *string
		if m := strings.TrimSpace(message); m != "" {
			msg = &m
		}
		if _, err := s.repo.UpsertPendingRequest(ctx, userID, t.ID, msg); err != nil {
			return JoinResult{}, fmt.Errorf("record join request: %w", err)
		}
		s.audit(ctx, "join request recorded", userID, t.ID)
		return JoinResult{Status: JoinPending, Tenant: t}, nil
	}

	if _, err := s.repo.UpsertMembership(ctx, UpsertInput{UserID: userID, TenantID: t.ID, Role: RolePlayer}); err != nil {
		return JoinResult{}, fmt.Errorf("create membership: %w", err)
	}
	s.audit(ctx, "membership created", userID, t.ID)
	return JoinResult{Status: JoinCreated, Tenant: t}, nil
}

// ActiveMembership returns the user's active membership in an active tenant.
func (s *Service) ActiveMembership(ctx context.Context, userID uuid.UUID, ref TenantRef) (UserTenant, error) {
	if ref.empty() {
		return UserTenant{}, apperrors.NewValidation("tenantId", "tenantId or tenantSlug is required")
	}
	t, err := s.repo.FindTenant(ctx, ref)
	if err != nil {
		return UserTenant{}, err
	}
	m, err := s.repo.GetMembership(ctx, userID, t.ID)
	if err != nil {
		return UserTenant{}, err
	}
	if !m.IsActive {
		return UserTenant{}, ErrNotMember
	}
	return UserTenant{Membership: m, Tenant: t}, nil
}

// Leave deactivates the user's membership and clears session contexts pointing at the tenant.
func (s *Service) Leave(ctx context.Context, userID, tenantID uuid.UUID) error {
	m, err := s.repo.GetMembership(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return ErrNotMember
	}
	return s.deactivate(ctx, m)
}

// Members lists the active members of a tenant. The actor must be an admin or manager there.
func (s *Service) Members(ctx context.Context, actorID, tenantID uuid.UUID) ([]Member, error) {
	if err := s.requireManager(ctx, actorID, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, tenantID)
}

// PendingRequests lists pending join requests. The actor must be an admin or manager there.
func (s *Service) PendingRequests(ctx context.Context, actorID, tenantID uuid.UUID) ([]JoinRequest, error) {
	if err := s.requireManager(ctx, actorID, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListPendingRequests(ctx, tenantID)
}

// Approve accepts a pending request, making the requester a player.
func (s *Service) Approve(ctx context.Context, actorID, tenantID, requestID uuid.UUID) (JoinRequest, error) {
	if err := s.requireManager(ctx, actorID, tenantID); err != nil {
		return JoinRequest{}, err
	}
	return s.approve(ctx, tenantID, requestID, &actorID)
}

// Reject declines a pending request with an optional reason.
func (s *Service) Reject(ctx context.Context, actorID, tenantID, requestID uuid.UUID, reason string) error {
	if err := s.requireManager(ctx, actorID, tenantID); err != nil {
		return err
	}
	return s.reject(ctx, tenantID, requestID, &actorID, reason)
}

// AddUserToTenant inserts or reactivates a membership on behalf of a super administrator.
// Unknown roles fall back to player.
func (s *Service) AddUserToTenant(ctx context.Context, adminID, userID, tenantID uuid.UUID, role string) (Membership, tenantsvc.Tenant, error) {
	if _, err := s.repo.GetProfile(ctx, userID); err != nil {
		return Membership{}, tenantsvc.Tenant{}, err
	}
	t, err := s.repo.FindTenant(ctx, TenantRef{ID: tenantID})
	if err != nil {
		return Membership{}, tenantsvc.Tenant{}, err
	}

	m, err := s.repo.UpsertMembership(ctx, UpsertInput{
		UserID:     userID,
		TenantID:   t.ID,
		Role:       NormalizeRole(role, RolePlayer),
		ApprovedBy: &adminID,
	})
	if err != nil {
		return Membership{}, tenantsvc.Tenant{}, fmt.Errorf("add membership: %w", err)
	}
	s.audit(ctx, "user added to tenant", userID, t.ID, zap.String("tenant", t.Slug), zap.String("role", m.Role))
	return m, t, nil
}

// RemoveUserFromTenant deactivates a membership. Removing a non-member is a no-op.
func (s *Service) RemoveUserFromTenant(ctx context.Context, userID, tenantID uuid.UUID) error {
	m, err := s.repo.GetMembership(ctx, userID, tenantID)
	if errors.Is(err, ErrNotMember) {
		return nil
	}
	if err != nil {
		return err
	}
	if !m.IsActive {
		return nil
	}
	return s.deactivate(ctx, m)
}

// MembersBySlug lists the active members of an active tenant for sibling services.
func (s *Service) MembersBySlug(ctx context.Context, slug string) (tenantsvc.Tenant, []Member, error) {
	t, err := s.tenantBySlug(ctx, slug)
	if err != nil {
		return tenantsvc.Tenant{}, nil, err
	}
	members, err := s.repo.ListMembers(ctx, t.ID)
	if err != nil {
		return tenantsvc.Tenant{}, nil, err
	}
	return t, members, nil
}

// Link attaches a user to a tenant for a sibling service. Unknown roles fall back to client.
func (s *Service) Link(ctx context.Context, slug string, userID uuid.UUID, role string) (Membership, tenantsvc.Tenant, error) {
	t, err := s.tenantBySlug(ctx, slug)
	if err != nil {
		return Membership{}, tenantsvc.Tenant{}, err
	}
	if _, err := s.repo.GetProfile(ctx, userID); err != nil {
		return Membership{}, tenantsvc.Tenant{}, err
	}
	m, err := s.repo.UpsertMembership(ctx, UpsertInput{
		UserID:   userID,
		TenantID: t.ID,
		Role:     NormalizeRole(role, RoleClient),
	})
	if err != nil {
		return Membership{}, tenantsvc.Tenant{}, fmt.Errorf("link membership: %w", err)
	}
	s.audit(ctx, "user linked to tenant", userID, t.ID, zap.String("role", m.Role))
	return m, t, nil
}

// Unlink removes a user from a tenant for a sibling service.
func (s *Service) Unlink(ctx context.Context, slug string, userID uuid.UUID) error {
	t, err := s.tenantBySlug(ctx, slug)
	if err != nil {
		return err
	}
	return s.RemoveUserFromTenant(ctx, userID, t.ID)
}

// RequestsBySlug lists pending join requests of a tenant for sibling services.
func (s *Service) RequestsBySlug(ctx context.Context, slug string) ([]JoinRequest, error) {
	t, err := s.tenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPendingRequests(ctx, t.ID)
}

// ApproveBySlug accepts a pending request for a sibling service.
func (s *Service) ApproveBySlug(ctx context.Context, slug string, requestID uuid.UUID) (JoinRequest, error) {
	t, err := s.tenantBySlug(ctx, slug)
	if err != nil {
		return JoinRequest{}, err
	}
	return s.approve(ctx, t.ID, requestID, nil)
}

// RejectBySlug declines a pending request for a sibling service.
func (s *Service) RejectBySlug(ctx context.Context, slug string, requestID uuid.UUID, reason string) error {
	t, err := s.tenantBySlug(ctx, slug)
	if err != nil {
		return err
	}
	return s.reject(ctx, t.ID, requestID, nil, reason)
}

func (s *Service) approve(ctx context.Context, tenantID, requestID uuid.UUID, approver *uuid.UUID) (JoinRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID, tenantID)
	if err != nil {
		return JoinRequest{}, err
	}
	if req.Status != persistence.RequestPending {
		return JoinRequest{}, ErrRequestNotFound
	}
	if _, err := s.repo.ApproveRequest(ctx, requestID, tenantID, approver); err != nil {
		return JoinRequest{}, err
	}
	s.audit(ctx, "join request approved", req.User.ID, tenantID, zap.String("request_id", requestID.String()))
	return req, nil
}

func (s *Service) reject(ctx context.Context, tenantID, requestID uuid.UUID, responder *uuid.UUID, reason string) error {
	if err := s.repo.RejectRequest(ctx, requestID, tenantID, responder, strings.TrimSpace(reason)); err != nil {
		return err
	}
	s.logger.Info("join request rejected", append(auditFields(ctx),
		zap.String("tenant_id", tenantID.String()), zap.String("request_id", requestID.String()))...)
	return nil
}

// tenantBySlug prefers the tenant space already resolved by the routing middleware.
func (s *Service) tenantBySlug(ctx context.Context, slug string) (tenantsvc.Tenant, error) {
	if space, ok := tenant.FromContext(ctx); ok && strings.EqualFold(space.Slug, strings.TrimSpace(slug)) {
		return tenantsvc.Tenant{
			ID:           space.TenantID,
			Slug:         space.Slug,
			DisplayName:  space.Name,
			DatabaseName: space.DatabaseName,
			DatabaseHost: space.DatabaseHost,
			IsActive:     true,
			System:       tenantsvc.System{Slug: space.SystemSlug},
		}, nil
	}
	return s.repo.FindTenant(ctx, TenantRef{Slug: slug})
}

// audit logs a membership write attributed to the request actor.
func (s *Service) audit(ctx context.Context, msg string, userID, tenantID uuid.UUID, fields ...zap.Field) {
	fields = append(fields, zap.String("member_id", userID.String()), zap.String("tenant_id", tenantID.String()))
	s.logger.Info(msg, append(auditFields(ctx), fields...)...)
}

func auditFields(ctx context.Context) []zap.Field {
	info := requesttrace.FromContextOrAnonymous(ctx)
	fields := []zap.Field{zap.String("actor_kind", string(info.ActorKind))}
	if info.UserID != nil {
		fields = append(fields, zap.String("actor_id", *info.UserID))
	}
	if info.SessionID != nil {
		fields = append(fields, zap.String("actor_session_id", *info.SessionID))
	}
	if info.TenantID != nil {
		fields = append(fields, zap.String("actor_tenant_id", *info.TenantID))
	}
	if info.RequestID != "" {
		fields = append(fields, zap.String("request_id", info.RequestID))
	}
	return fields
}

// deactivate applies the last-admin guard, then soft-deletes the membership.
func (s *Service) deactivate(ctx context.Context, m Membership) error {
	if m.Role == RoleAdmin {
		admins, err := s.repo.CountActiveAdmins(ctx, m.TenantID)
		if err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := s.repo.DeactivateMembership(ctx, m.UserID, m.TenantID); err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	if err := s.repo.ClearSessionTenant(ctx, m.UserID, m.TenantID); err != nil {
		return fmt.Errorf("clear session tenant: %w", err)
	}
	s.audit(ctx, "membership deactivated", m.UserID, m.TenantID)
	return nil
}

func (s *Service) requireManager(ctx context.Context, actorID, tenantID uuid.UUID) error {
	m, err := s.repo.GetMembership(ctx, actorID, tenantID)
	if errors.Is(err, ErrNotMember) {
		return ErrForbidden
	}
	if err != nil {
		return err
	}
	if !m.IsActive || (m.Role != RoleAdmin && m.Role != RoleManager) {
		return ErrForbidden
	}
	return nil
}
