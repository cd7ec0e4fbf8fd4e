package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/seletor-hub/domains/auth/be/service"
)

type memorySession struct {
	rec           service.SessionRecord
	revokedReason string
}

// MemoryRepository is an in-process service.Repository used by tests.
type MemoryRepository struct {
	mu          sync.Mutex
	users       map[uuid.UUID]service.User
	sessions    map[string]*memorySession
	superAdmins map[string]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:       map[uuid.UUID]service.User{},
		sessions:    map[string]*memorySession{},
		superAdmins: map[string]bool{},
	}
}

// PutUser stores u as is, replacing any user with the same id.
func (r *MemoryRepository) PutUser(u service.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// GrantSuperAdmin marks an email as super administrator.
func (r *MemoryRepository) GrantSuperAdmin(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.superAdmins[strings.ToLower(email)] = true
}

// Session returns the session stored for a token hash and the reason it was revoked, if any.
func (r *MemoryRepository) Session(tokenHash string) (service.SessionRecord, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenHash]
	if !ok {
		return service.SessionRecord{}, "", false
	}
	return s.rec, s.revokedReason, true
}

func (r *MemoryRepository) CreateUser(_ context.Context, u service.NewUser) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return service.User{}, service.ErrEmailTaken
		}
	}
	user := service.User{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Nickname:     u.Nickname,
		Phone:        u.Phone,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryRepository) GetUser(_ context.Context, id uuid.UUID) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return service.User{}, service.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return service.User{}, service.ErrUserNotFound
}

func (r *MemoryRepository) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		now := time.Now().UTC()
		u.LastLoginAt = &now
		r.users[id] = u
	}
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return service.ErrUserNotFound
	}
	u.PasswordHash = hash
	r.users[id] = u
	return nil
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, id uuid.UUID, update service.ProfileUpdate) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return service.User{}, service.ErrUserNotFound
	}
	if update.Name != nil {
		u.Name = strings.TrimSpace(*update.Name)
	}
	apply := func(dst **string, v *string) {
		if v == nil {
			return
		}
		if s := strings.TrimSpace(*v); s != "" {
			*dst = &s
		} else {
			*dst = nil
		}
	}
	apply(&u.Nickname, update.Nickname)
	apply(&u.Phone, update.Phone)
	apply(&u.Bio, update.Bio)
	apply(&u.AvatarURL, update.AvatarURL)
	r.users[id] = u
	return u, nil
}

func (r *MemoryRepository) IsSuperAdmin(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.superAdmins[strings.ToLower(email)], nil
}

func (r *MemoryRepository) CreateSession(_ context.Context, rec service.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[rec.TokenHash] = &memorySession{rec: rec}
	return nil
}

func (r *MemoryRepository) ActiveSession(_ context.Context, tokenHash string) (service.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenHash]
	if !ok || s.revokedReason != "" || !s.rec.ExpiresAt.After(time.Now()) {
		return service.SessionRecord{}, service.ErrSessionNotFound
	}
	return s.rec, nil
}

func (r *MemoryRepository) TouchSession(context.Context, uuid.UUID) error { return nil }

func (r *MemoryRepository) RevokeSession(_ context.Context, tokenHash, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[tokenHash]; ok && s.revokedReason == "" {
		s.revokedReason = reason
	}
	return nil
}

func (r *MemoryRepository) RevokeAllSessions(_ context.Context, userID uuid.UUID, reason string, keep *uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.rec.UserID != userID || s.revokedReason != "" {
			continue
		}
		if keep != nil && s.rec.ID == *keep {
			continue
		}
		s.revokedReason = reason
		n++
	}
	return n, nil
}

func (r *MemoryRepository) SetSessionTenant(_ context.Context, sessionID, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.rec.ID == sessionID {
			id := tenantID
			s.rec.CurrentTenantID = &id
		}
	}
	return nil
}
