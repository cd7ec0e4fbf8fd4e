package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantsvc "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

type pair struct {
	user   uuid.UUID
	tenant uuid.UUID
}

// MemoryRepository is an in-process service.Repository used by tests.
type MemoryRepository struct {
	mu          sync.Mutex
	tenants     map[uuid.UUID]tenantsvc.Tenant
	profiles    map[uuid.UUID]service.Profile
	memberships map[pair]service.Membership
	requests    map[uuid.UUID]service.JoinRequest
	cleared     []pair
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tenants:     map[uuid.UUID]tenantsvc.Tenant{},
		profiles:    map[uuid.UUID]service.Profile{},
		memberships: map[pair]service.Membership{},
		requests:    map[uuid.UUID]service.JoinRequest{},
	}
}

// AddTenant registers a tenant. Inactive tenants are invisible to FindTenant.
func (r *MemoryRepository) AddTenant(t tenantsvc.Tenant) tenantsvc.Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.tenants[t.ID] = t
	return t
}

// AddProfile registers a hub user.
func (r *MemoryRepository) AddProfile(p service.Profile) service.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.profiles[p.ID] = p
	return p
}

// Membership returns the stored membership for (user, tenant), if any.
func (r *MemoryRepository) Membership(userID, tenantID uuid.UUID) (service.Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[pair{userID, tenantID}]
	return m, ok
}

// SessionCleared reports whether ClearSessionTenant ran for (user, tenant).
func (r *MemoryRepository) SessionCleared(userID, tenantID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.cleared {
		if p.user == userID && p.tenant == tenantID {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) FindTenant(_ context.Context, ref service.TenantRef) (tenantsvc.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if !t.IsActive {
			continue
		}
		if (ref.ID != uuid.Nil && t.ID == ref.ID) || (ref.ID == uuid.Nil && t.Slug == ref.Slug) {
			return t, nil
		}
	}
	return tenantsvc.Tenant{}, service.ErrTenantNotFound
}

func (r *MemoryRepository) GetProfile(_ context.Context, userID uuid.UUID) (service.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return service.Profile{}, service.ErrUserNotFound
	}
	return p, nil
}

func (r *MemoryRepository) GetMembership(_ context.Context, userID, tenantID uuid.UUID) (service.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[pair{userID, tenantID}]
	if !ok {
		return service.Membership{}, service.ErrNotMember
	}
	return m, nil
}

func (r *MemoryRepository) UpsertMembership(_ context.Context, in service.UpsertInput) (service.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertLocked(in, false), nil
}

func (r *MemoryRepository) upsertLocked(in service.UpsertInput, keepRole bool) service.Membership {
	if in.Role == "" {
		in.Role = service.RolePlayer
	}
	key := pair{in.UserID, in.TenantID}
	m, ok := r.memberships[key]
	if !ok {
		m = service.Membership{ID: uuid.New(), UserID: in.UserID, TenantID: in.TenantID, Role: in.Role, JoinedAt: time.Now()}
	} else if !keepRole {
		m.Role = in.Role
	}
	m.IsActive = true
	if in.ApprovedBy != nil {
		m.ApprovedBy = in.ApprovedBy
	}
	r.memberships[key] = m
	return m
}

func (r *MemoryRepository) ReactivateMembership(_ context.Context, membershipID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, m := range r.memberships {
		if m.ID == membershipID {
			m.IsActive = true
			m.JoinedAt = time.Now()
			r.memberships[k] = m
			return nil
		}
	}
	return service.ErrNotMember
}

func (r *MemoryRepository) DeactivateMembership(_ context.Context, userID, tenantID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pair{userID, tenantID}
	m, ok := r.memberships[key]
	if !ok || !m.IsActive {
		return false, nil
	}
	m.IsActive = false
	r.memberships[key] = m
	return true, nil
}

func (r *MemoryRepository) CountActiveAdmins(_ context.Context, tenantID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.memberships {
		if m.TenantID == tenantID && m.IsActive && m.Role == service.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListForUser(_ context.Context, userID uuid.UUID) ([]service.UserTenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.UserTenant
	for _, m := range r.memberships {
		t, ok := r.tenants[m.TenantID]
		if m.UserID != userID || !m.IsActive || !ok || !t.IsActive {
			continue
		}
		out = append(out, service.UserTenant{Membership: m, Tenant: t})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Tenant, out[j].Tenant
		if a.System.DisplayOrder != b.System.DisplayOrder {
			return a.System.DisplayOrder < b.System.DisplayOrder
		}
		return a.DisplayName < b.DisplayName
	})
	return out, nil
}

func (r *MemoryRepository) ListMembers(_ context.Context, tenantID uuid.UUID) ([]service.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.Member
	for _, m := range r.memberships {
		if m.TenantID != tenantID || !m.IsActive {
			continue
		}
		out = append(out, service.Member{Profile: r.profiles[m.UserID], Role: m.Role, JoinedAt: m.JoinedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Role == service.RoleAdmin, out[j].Role == service.RoleAdmin
		if ai != aj {
			return ai
		}
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Profile.Name < out[j].Profile.Name
	})
	return out, nil
}

func (r *MemoryRepository) UpsertPendingRequest(_ context.Context, userID, tenantID uuid.UUID, message *string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, req := range r.requests {
		if req.User.ID == userID && req.TenantID == tenantID {
			req.Status = persistence.RequestPending
			req.Message = message
			req.CreatedAt = time.Now()
			r.requests[id] = req
			return id, nil
		}
	}
	id := uuid.New()
	user := r.profiles[userID]
	user.ID = userID
	r.requests[id] = service.JoinRequest{
		ID:        id,
		TenantID:  tenantID,
		Message:   message,
		Status:    persistence.RequestPending,
		CreatedAt: time.Now(),
		User:      user,
	}
	return id, nil
}

func (r *MemoryRepository) ListPendingRequests(_ context.Context, tenantID uuid.UUID) ([]service.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.JoinRequest
	for _, req := range r.requests {
		if req.TenantID == tenantID && req.Status == persistence.RequestPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) GetRequest(_ context.Context, requestID, tenantID uuid.UUID) (service.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok || req.TenantID != tenantID {
		return service.JoinRequest{}, service.ErrRequestNotFound
	}
	return req, nil
}

func (r *MemoryRepository) ApproveRequest(_ context.Context, requestID, tenantID uuid.UUID, approver *uuid.UUID) (service.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok || req.TenantID != tenantID || req.Status != persistence.RequestPending {
		return service.Membership{}, service.ErrRequestNotFound
	}
	req.Status = persistence.RequestApproved
	r.requests[requestID] = req
	return r.upsertLocked(service.UpsertInput{
		UserID:     req.User.ID,
		TenantID:   tenantID,
		Role:       service.RolePlayer,
		ApprovedBy: approver,
	}, true), nil
}

func (r *MemoryRepository) RejectRequest(_ context.Context, requestID, tenantID uuid.UUID, _ *uuid.UUID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok || req.TenantID != tenantID || req.Status != persistence.RequestPending {
		return service.ErrRequestNotFound
	}
	req.Status = persistence.RequestRejected
	r.requests[requestID] = req
	return nil
}

func (r *MemoryRepository) ClearSessionTenant(_ context.Context, userID, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, pair{userID, tenantID})
	return nil
}

var _ service.Repository = (*MemoryRepository)(nil)
