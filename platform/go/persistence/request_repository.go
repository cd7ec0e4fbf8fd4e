package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Join request statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// JoinRequestRecord is a user_tenant_requests row with the requesting user.
type JoinRequestRecord struct {
	RequestID       uuid.UUID
	UserID          uuid.UUID
	TenantID        uuid.UUID
	Message         *string
	Status          string
	ResponseMessage *string
	RespondedBy     *uuid.UUID
	RespondedAt     *time.Time
	CreatedAt       time.Time

	UserName      string
	UserEmail     string
	UserNickname  *string
	UserPhone     *string
	UserAvatarURL *string
}

// ErrRequestNotFound indicates no pending request matched.
var ErrRequestNotFound = errors.New("join request not found")

// RequestStore exposes user_tenant_requests.
type RequestStore struct {
	db DB
}

// NewRequestStore returns a store backed by the hub database.
func NewRequestStore(db DB) *RequestStore {
	if db == nil {
		panic("request store: db is required")
	}
	return &RequestStore{db: db}
}

// UpsertPending records a pending request; a previous request for the same pair is reset to pending.
func (s *RequestStore) UpsertPending(ctx context.Context, userID, tenantID uuid.UUID, message *string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
        INSERT INTO user_tenant_requests AS r (request_id, user_id, tenant_id, message)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, tenant_id) DO UPDATE SET
            status = 'pending',
            message = EXCLUDED.message,
            response_message = NULL,
            responded_by = NULL,
            responded_at = NULL,
            created_at = NOW()
        RETURNING r.request_id`, uuid.New(), userID, tenantID, message).Scan(&id)
	return id, err
}

const requestSelect = `
        SELECT r.request_id, r.user_id, r.tenant_id, r.message, r.status, r.response_message,
               r.responded_by, r.responded_at, r.created_at,
               u.name, u.email, u.nickname, u.phone, u.avatar_url
        FROM user_tenant_requests r
        INNER JOIN users u ON u.user_id = r.user_id`

// ListPending returns pending requests of a tenant, oldest first.
func (s *RequestStore) ListPending(ctx context.Context, tenantID uuid.UUID) ([]JoinRequestRecord, error) {
	rows, err := s.db.Query(ctx, requestSelect+`
        WHERE r.tenant_id = $1 AND r.status = 'pending'
        ORDER BY r.created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JoinRequestRecord
	for rows.Next() {
		rec, err := scanJoinRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns a request of the tenant regardless of status.
func (s *RequestStore) Get(ctx context.Context, requestID, tenantID uuid.UUID) (JoinRequestRecord, error) {
	rec, err := scanJoinRequest(s.db.QueryRow(ctx, requestSelect+`
        WHERE r.request_id = $1 AND r.tenant_id = $2`, requestID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JoinRequestRecord{}, ErrRequestNotFound
		}
		return JoinRequestRecord{}, err
	}
	return rec, nil
}

// Approve marks a pending request approved and inserts or reactivates the membership as player,
// in one transaction.
func (s *RequestStore) Approve(ctx context.Context, requestID, tenantID uuid.UUID, approver *uuid.UUID) (MembershipRecord, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return MembershipRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
        UPDATE user_tenant_requests
        SET status = 'approved', responded_by = $3, responded_at = NOW()
        WHERE request_id = $1 AND tenant_id = $2 AND status = 'pending'
        RETURNING user_id`, requestID, tenantID, approver).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MembershipRecord{}, ErrRequestNotFound
		}
		return MembershipRecord{}, fmt.Errorf("approve request: %w", err)
	}

	m, err := upsertMembership(ctx, tx, UpsertMembershipParams{
		UserID:     userID,
		TenantID:   tenantID,
		Role:       "player",
		ApprovedBy: approver,
		KeepRole:   true,
	})
	if err != nil {
		return MembershipRecord{}, fmt.Errorf("upsert membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return MembershipRecord{}, err
	}
	return m, nil
}

// Reject marks a pending request rejected with an optional reason.
func (s *RequestStore) Reject(ctx context.Context, requestID, tenantID uuid.UUID, responder *uuid.UUID, reason string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE user_tenant_requests
        SET status = 'rejected', response_message = $4, responded_by = $3, responded_at = NOW()
        WHERE request_id = $1 AND tenant_id = $2 AND status = 'pending'`,
		requestID, tenantID, responder, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func scanJoinRequest(row pgx.Row) (JoinRequestRecord, error) {
	var r JoinRequestRecord
	err := row.Scan(&r.RequestID, &r.UserID, &r.TenantID, &r.Message, &r.Status, &r.ResponseMessage,
		&r.RespondedBy, &r.RespondedAt, &r.CreatedAt,
		&r.UserName, &r.UserEmail, &r.UserNickname, &r.UserPhone, &r.UserAvatarURL)
	return r, err
}
