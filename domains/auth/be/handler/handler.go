package handler

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/domains/auth/be/service"
	membersvc "github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
	"github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
)

// DeviceNameHeader lets clients label the session they open.
const DeviceNameHeader = "X-Device-Name"

// Handler exposes registration, login and session management over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	dev    bool
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger, dev bool) *Handler {
	if svc == nil {
		panic("auth service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger, dev: dev}
}

// RegisterPublic mounts the routes that open a session.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
}

// RegisterSession mounts the routes that require a bearer session.
func (h *Handler) RegisterSession(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/logout-all", h.LogoutAll)
	r.Get("/auth/me", h.Me)
	r.Put("/auth/me", h.UpdateMe)
	r.Post("/auth/change-password", h.ChangePassword)
	r.Post("/auth/switch-tenant", h.SwitchTenant)
}

type userDTO struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Nickname    *string    `json:"nickname"`
	Phone       *string    `json:"phone"`
	CPF         *string    `json:"cpf"`
	CNPJ        *string    `json:"cnpj"`
	City        *string    `json:"city"`
	State       *string    `json:"state"`
	AvatarURL   *string    `json:"avatarUrl"`
	Bio         *string    `json:"bio"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type tenantDTO struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"displayName"`
	LogoURL     *string   `json:"logoUrl"`
	System      string    `json:"system"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type sessionDTO struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      userDTO     `json:"user"`
	Tenants   []tenantDTO `json:"tenants"`
}

type registerRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Nickname *string `json:"nickname"`
	Phone    *string `json:"phone"`
}

// Register implements POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Nickname: body.Nickname,
		Phone:    body.Phone,
	}, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusCreated, toSessionDTO(sess))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login implements POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.svc.Login(r.Context(), body.Email, body.Password, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, toSessionDTO(sess))
}

// Logout implements POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll implements POST /api/auth/logout-all.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	n, err := h.svc.LogoutAll(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"sessionsRevoked": n})
}

// Me implements GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	me, err := h.svc.Me(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{
		"user":            toUserDTO(me.User),
		"tenants":         toTenantDTOs(me.Tenants),
		"currentTenantId": me.CurrentTenantID,
		"isSuperAdmin":    me.IsSuperAdmin,
	})
}

type updateMeRequest struct {
	Name      *string `json:"name"`
	Nickname  *string `json:"nickname"`
	Phone     *string `json:"phone"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

// UpdateMe implements PUT /api/auth/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body updateMeRequest
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), id.UserID, service.ProfileUpdate(body))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"user": toUserDTO(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword implements POST /api/auth/change-password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body changePasswordRequest
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), id, body.CurrentPassword, body.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type switchTenantRequest struct {
	TenantID   string `json:"tenantId"`
	TenantSlug string `json:"tenantSlug"`
}

// SwitchTenant implements POST /api/auth/switch-tenant.
func (h *Handler) SwitchTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body switchTenantRequest
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	ref := membersvc.TenantRef{Slug: strings.TrimSpace(body.TenantSlug)}
	if raw := strings.TrimSpace(body.TenantID); raw != "" {
		tid, err := uuid.Parse(raw)
		if err != nil {
			problems.Write(w, problems.BadRequest("tenantId", "tenant id must be a UUID"))
			return
		}
		ref.ID = tid
	}

	ut, err := h.svc.SwitchTenant(r.Context(), id, ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{
		"tenant": toTenantDTOs([]membersvc.UserTenant{ut})[0],
		"role":   ut.Membership.Role,
	})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (platformauth.Identity, bool) {
	id, ok := platformauth.IdentityFromContext(r.Context())
	if !ok {
		problems.Write(w, problems.Unauthorized("authentication required"))
	}
	return id, ok
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	problems.Write(w, h.problemForError(r, err))
}

func (h *Handler) problemForError(r *http.Request, err error) problems.Details {
	var blocked *platformauth.BlockedError
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		return problems.Conflict(err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrWrongPassword):
		return problems.Unauthorized(err.Error())
	case errors.Is(err, service.ErrAccountDisabled):
		return problems.Forbidden(err.Error())
	case errors.As(err, &blocked):
		return problems.Forbidden(blocked.Error())
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, membersvc.ErrTenantNotFound):
		return problems.NotFound(err.Error())
	case errors.Is(err, membersvc.ErrNotMember):
		return problems.Forbidden(err.Error())
	default:
		p := problems.FromError(err, h.dev)
		if p.Status >= http.StatusInternalServerError {
			logging.FromRequest(r, h.logger).Error("auth operation failed", zap.Error(err))
		}
		return p
	}
}

func clientInfo(r *http.Request) service.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.ClientInfo{
		IP:         ip,
		UserAgent:  r.UserAgent(),
		DeviceName: r.Header.Get(DeviceNameHeader),
	}
}

func toSessionDTO(s service.Session) sessionDTO {
	return sessionDTO{Token: s.Token, ExpiresAt: s.ExpiresAt, User: toUserDTO(s.User), Tenants: toTenantDTOs(s.Tenants)}
}

func toUserDTO(u service.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Nickname:    u.Nickname,
		Phone:       u.Phone,
		CPF:         u.CPF,
		CNPJ:        u.CNPJ,
		City:        u.City,
		State:       u.State,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func toTenantDTOs(tenants []membersvc.UserTenant) []tenantDTO {
	out := make([]tenantDTO, 0, len(tenants))
	for _, ut := range tenants {
		name := ut.Tenant.DisplayName
		if name == "" {
			name = ut.Tenant.Slug
		}
		out = append(out, tenantDTO{
			ID:          ut.Tenant.ID,
			Slug:        ut.Tenant.Slug,
			DisplayName: name,
			LogoURL:     ut.Tenant.LogoURL,
			System:      ut.Tenant.System.Slug,
			Role:        ut.Membership.Role,
			JoinedAt:    ut.Membership.JoinedAt,
		})
	}
	return out
}
