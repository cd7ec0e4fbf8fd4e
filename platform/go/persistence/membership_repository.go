package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MembershipRecord is a user_tenants row.
type MembershipRecord struct {
	MembershipID uuid.UUID
	UserID       uuid.UUID
	TenantID     uuid.UUID
	Role         string
	IsActive     bool
	JoinedAt     time.Time
	LeftAt       *time.Time
	ApprovedBy   *uuid.UUID
	ApprovedAt   *time.Time
}

// UserTenantRecord is a membership joined with its tenant and system, as listed for one user.
type UserTenantRecord struct {
	Membership MembershipRecord
	Tenant     TenantRecord
}

// MemberRecord is a membership joined with the member's hub identity.
type MemberRecord struct {
	Membership MembershipRecord
	User       User
}

// UpsertMembershipParams inserts or reactivates a membership.
type UpsertMembershipParams struct {
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Role       string
	ApprovedBy *uuid.UUID
	// KeepRole leaves an existing row's role untouched on reactivation.
	KeepRole bool
}

// ErrMembershipNotFound indicates a missing user_tenants row.
var ErrMembershipNotFound = errors.New("membership not found")

const membershipColumns = "ut.membership_id, ut.user_id, ut.tenant_id, ut.role, ut.is_active, ut.joined_at, ut.left_at, ut.approved_by, ut.approved_at"

// MembershipStore exposes user_tenants.
type MembershipStore struct {
	db DB
}

// NewMembershipStore returns a store backed by the hub database.
func NewMembershipStore(db DB) *MembershipStore {
	if db == nil {
		panic("membership store: db is required")
	}
	return &MembershipStore{db: db}
}

// Get returns the membership for (user, tenant) whether active or not.
func (s *MembershipStore) Get(ctx context.Context, userID, tenantID uuid.UUID) (MembershipRecord, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM user_tenants ut
        WHERE ut.user_id = $1 AND ut.tenant_id = $2`, membershipColumns), userID, tenantID)
	rec, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MembershipRecord{}, ErrMembershipNotFound
		}
		return MembershipRecord{}, err
	}
	return rec, nil
}

// Upsert inserts the membership or reactivates the existing (user, tenant) row.
func (s *MembershipStore) Upsert(ctx context.Context, params UpsertMembershipParams) (MembershipRecord, error) {
	return upsertMembership(ctx, s.db, params)
}

// Reactivate marks an existing membership active again and resets joined_at.
func (s *MembershipStore) Reactivate(ctx context.Context, membershipID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE user_tenants SET is_active = TRUE, left_at = NULL, joined_at = NOW()
        WHERE membership_id = $1`, membershipID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// Deactivate soft-deletes the membership. It reports whether an active row was changed.
func (s *MembershipStore) Deactivate(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE user_tenants SET is_active = FALSE, left_at = NOW()
        WHERE user_id = $1 AND tenant_id = $2 AND is_active`, userID, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountActiveAdmins counts active admin memberships of a tenant.
func (s *MembershipStore) CountActiveAdmins(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM user_tenants
        WHERE tenant_id = $1 AND role = 'admin' AND is_active`, tenantID).Scan(&n)
	return n, err
}

// ListForUser returns the user's active memberships in active tenants, grouped order by system.
func (s *MembershipStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]UserTenantRecord, error) {
	query, args, err := selectTenants().
		Columns(membershipColumns).
		Join("user_tenants ut ON ut.tenant_id = t.tenant_id").
		Where("ut.user_id = ? AND ut.is_active AND t.is_active", userID).
		OrderBy("s.display_order", "t.display_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build membership list: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserTenantRecord
	for rows.Next() {
		var rec UserTenantRecord
		t := &rec.Tenant
		m := &rec.Membership
		if err := rows.Scan(
			&t.TenantID, &t.SystemID, &t.Slug, &t.DisplayName, &t.DatabaseName, &t.DatabaseHost,
			&t.LogoURL, &t.PrimaryColor, &t.WelcomeMessage, &t.IsActive, &t.MaintenanceMode,
			&t.AllowRegistration, &t.CreatedAt, &t.UpdatedAt,
			&t.SystemSlug, &t.SystemName, &t.SystemIcon, &t.SystemColor, &t.MemberCount,
			&m.MembershipID, &m.UserID, &m.TenantID, &m.Role, &m.IsActive, &m.JoinedAt, &m.LeftAt, &m.ApprovedBy, &m.ApprovedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListMembers returns the active members of a tenant, admins first.
func (s *MembershipStore) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]MemberRecord, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
        SELECT %s, %s
        FROM user_tenants ut
        INNER JOIN users u ON u.user_id = ut.user_id
        WHERE ut.tenant_id = $1 AND ut.is_active
        ORDER BY ut.role = 'admin' DESC, ut.role, u.name`, membershipColumns, prefixed("u", userColumns)), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberRecord
	for rows.Next() {
		var rec MemberRecord
		m := &rec.Membership
		u := &rec.User
		if err := rows.Scan(
			&m.MembershipID, &m.UserID, &m.TenantID, &m.Role, &m.IsActive, &m.JoinedAt, &m.LeftAt, &m.ApprovedBy, &m.ApprovedAt,
			&u.UserID, &u.Name, &u.Email, &u.PasswordHash, &u.Nickname, &u.Phone,
			&u.CPF, &u.CNPJ, &u.City, &u.State, &u.AvatarURL, &u.Bio,
			&u.IsActive, &u.IsBlocked, &u.BlockedReason, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertMembership(ctx context.Context, db queryRower, params UpsertMembershipParams) (MembershipRecord, error) {
	if params.Role == "" {
		params.Role = "player"
	}
	roleUpdate := "EXCLUDED.role"
	if params.KeepRole {
		roleUpdate = "ut.role"
	}

	row := db.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO user_tenants AS ut (membership_id, user_id, tenant_id, role, approved_by, approved_at)
        VALUES ($1, $2, $3, $4, $5, CASE WHEN $5::uuid IS NULL THEN NULL ELSE NOW() END)
        ON CONFLICT (user_id, tenant_id) DO UPDATE SET
            is_active = TRUE,
            left_at = NULL,
            role = %s,
            approved_by = COALESCE(EXCLUDED.approved_by, ut.approved_by),
            approved_at = COALESCE(EXCLUDED.approved_at, ut.approved_at)
        RETURNING %s`, roleUpdate, membershipColumns),
		uuid.New(), params.UserID, params.TenantID, params.Role, params.ApprovedBy)
	return scanMembership(row)
}

func scanMembership(row pgx.Row) (MembershipRecord, error) {
	var m MembershipRecord
	err := row.Scan(&m.MembershipID, &m.UserID, &m.TenantID, &m.Role, &m.IsActive, &m.JoinedAt, &m.LeftAt, &m.ApprovedBy, &m.ApprovedAt)
	return m, err
}
