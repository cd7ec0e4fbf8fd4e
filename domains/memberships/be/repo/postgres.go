package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantrepo "github.com/zenGate-Global/seletor-hub/domains/tenants/be/repo"
	tenantsvc "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

// Stores groups the hub stores the membership repository reads and writes.
type Stores struct {
	Tenants     *persistence.TenantStore
	Users       *persistence.UserStore
	Memberships *persistence.MembershipStore
	Requests    *persistence.RequestStore
	Sessions    *persistence.SessionStore
}

// PostgresRepository implements service.Repository on the hub database.
type PostgresRepository struct {
	s Stores
}

func NewPostgresRepository(stores Stores) *PostgresRepository {
	if stores.Tenants == nil || stores.Users == nil || stores.Memberships == nil || stores.Requests == nil || stores.Sessions == nil {
		panic("membership repository: all hub stores are required")
	}
	return &PostgresRepository{s: stores}
}

func (r *PostgresRepository) FindTenant(ctx context.Context, ref service.TenantRef) (tenantsvc.Tenant, error) {
	var (
		rec persistence.TenantRecord
		err error
	)
	if ref.ID != uuid.Nil {
		rec, err = r.s.Tenants.GetActive(ctx, ref.ID)
	} else {
		rec, err = r.s.Tenants.GetBySlug(ctx, ref.Slug)
	}
	if err != nil {
		return tenantsvc.Tenant{}, mapError(err)
	}
	return tenantrepo.ToServiceTenant(rec), nil
}

func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (service.Profile, error) {
	u, err := r.s.Users.GetUser(ctx, userID)
	if err != nil {
		return service.Profile{}, mapError(err)
	}
	return toProfile(u), nil
}

func (r *PostgresRepository) GetMembership(ctx context.Context, userID, tenantID uuid.UUID) (service.Membership, error) {
	m, err := r.s.Memberships.Get(ctx, userID, tenantID)
	if err != nil {
		return service.Membership{}, mapError(err)
	}
	return toMembership(m), nil
}

func (r *PostgresRepository) UpsertMembership(ctx context.Context, in service.UpsertInput) (service.Membership, error) {
	m, err := r.s.Memberships.Upsert(ctx, persistence.UpsertMembershipParams{
		UserID:     in.UserID,
		TenantID:   in.TenantID,
		Role:       in.Role,
		ApprovedBy: in.ApprovedBy,
	})
	if err != nil {
		return service.Membership{}, err
	}
	return toMembership(m), nil
}

func (r *PostgresRepository) ReactivateMembership(ctx context.Context, membershipID uuid.UUID) error {
	return mapError(r.s.Memberships.Reactivate(ctx, membershipID))
}

func (r *PostgresRepository) DeactivateMembership(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	return r.s.Memberships.Deactivate(ctx, userID, tenantID)
}

func (r *PostgresRepository) CountActiveAdmins(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return r.s.Memberships.CountActiveAdmins(ctx, tenantID)
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]service.UserTenant, error) {
	records, err := r.s.Memberships.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]service.UserTenant, 0, len(records))
	for _, rec := range records {
		out = append(out, service.UserTenant{
			Membership: toMembership(rec.Membership),
			Tenant:     tenantrepo.ToServiceTenant(rec.Tenant),
		})
	}
	return out, nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]service.Member, error) {
	records, err := r.s.Memberships.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]service.Member, 0, len(records))
	for _, rec := range records {
		out = append(out, service.Member{
			Profile:  toProfile(rec.User),
			Role:     rec.Membership.Role,
			JoinedAt: rec.Membership.JoinedAt,
		})
	}
	return out, nil
}

func (r *PostgresRepository) UpsertPendingRequest(ctx context.Context, userID, tenantID uuid.UUID, message *string) (uuid.UUID, error) {
	return r.s.Requests.UpsertPending(ctx, userID, tenantID, message)
}

func (r *PostgresRepository) ListPendingRequests(ctx context.Context, tenantID uuid.UUID) ([]service.JoinRequest, error) {
	records, err := r.s.Requests.ListPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]service.JoinRequest, 0, len(records))
	for _, rec := range records {
		out = append(out, toJoinRequest(rec))
	}
	return out, nil
}

func (r *PostgresRepository) GetRequest(ctx context.Context, requestID, tenantID uuid.UUID) (service.JoinRequest, error) {
	rec, err := r.s.Requests.Get(ctx, requestID, tenantID)
	if err != nil {
		return service.JoinRequest{}, mapError(err)
	}
	return toJoinRequest(rec), nil
}

func (r *PostgresRepository) ApproveRequest(ctx context.Context, requestID, tenantID uuid.UUID, approver *uuid.UUID) (service.Membership, error) {
	m, err := r.s.Requests.Approve(ctx, requestID, tenantID, approver)
	if err != nil {
		return service.Membership{}, mapError(err)
	}
	return toMembership(m), nil
}

func (r *PostgresRepository) RejectRequest(ctx context.Context, requestID, tenantID uuid.UUID, responder *uuid.UUID, reason string) error {
	return mapError(r.s.Requests.Reject(ctx, requestID, tenantID, responder, reason))
}

func (r *PostgresRepository) ClearSessionTenant(ctx context.Context, userID, tenantID uuid.UUID) error {
	return r.s.Sessions.ClearTenantContext(ctx, userID, tenantID)
}

func toMembership(m persistence.MembershipRecord) service.Membership {
	return service.Membership{
		ID:         m.MembershipID,
		UserID:     m.UserID,
		TenantID:   m.TenantID,
		Role:       m.Role,
		IsActive:   m.IsActive,
		JoinedAt:   m.JoinedAt,
		ApprovedBy: m.ApprovedBy,
	}
}

func toProfile(u persistence.User) service.Profile {
	return service.Profile{
		ID:        u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		Nickname:  u.Nickname,
		Phone:     u.Phone,
		CPF:       u.CPF,
		CNPJ:      u.CNPJ,
		City:      u.City,
		State:     u.State,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func toJoinRequest(rec persistence.JoinRequestRecord) service.JoinRequest {
	return service.JoinRequest{
		ID:        rec.RequestID,
		TenantID:  rec.TenantID,
		Message:   rec.Message,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
		User: service.Profile{
			ID:        rec.UserID,
			Name:      rec.UserName,
			Email:     rec.UserEmail,
			Nickname:  rec.UserNickname,
			Phone:     rec.UserPhone,
			AvatarURL: rec.UserAvatarURL,
		},
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrTenantNotFound
	case errors.Is(err, persistence.ErrUserNotFound):
		return service.ErrUserNotFound
	case errors.Is(err, persistence.ErrMembershipNotFound):
		return service.ErrNotMember
	case errors.Is(err, persistence.ErrRequestNotFound):
		return service.ErrRequestNotFound
	default:
		return err
	}
}

var _ service.Repository = (*PostgresRepository)(nil)
