package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantsvc "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
	"github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
)

// Handler exposes tenant memberships and join requests over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	dev    bool
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger, dev bool) *Handler {
	if svc == nil {
		panic("memberships service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger, dev: dev}
}

// RegisterSession mounts the routes available to any signed-in user.
func (h *Handler) RegisterSession(r chi.Router) {
	r.Get("/user/tenants", h.MyTenants)
	r.Post("/user/tenants/join", h.Join)
	r.Delete("/user/tenants/{tenantID}", h.Leave)
	r.Get("/tenants/{tenantID}/members", h.Members)
	r.Get("/tenants/{tenantID}/requests", h.Requests)
	r.Post("/tenants/{tenantID}/requests/{requestID}/approve", h.Approve)
	r.Post("/tenants/{tenantID}/requests/{requestID}/reject", h.Reject)
}

// RegisterAdmin mounts the super-admin membership routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/users/{userID}/tenants/{tenantID}", h.AdminAdd)
	r.Delete("/users/{userID}/tenants/{tenantID}", h.AdminRemove)
}

// RegisterService mounts the routes sibling services call with X-Service-Key.
func (h *Handler) RegisterService(r chi.Router) {
	r.Get("/users/by-tenant/{slug}", h.ServiceMembers)
	r.Post("/users/tenants/{slug}/link/{userID}", h.ServiceLink)
	r.Delete("/users/tenants/{slug}/unlink/{userID}", h.ServiceUnlink)
	r.Get("/users/tenants/{slug}/requests", h.ServiceRequests)
	r.Post("/users/tenants/{slug}/requests/{requestID}/approve", h.ServiceApprove)
	r.Post("/users/tenants/{slug}/requests/{requestID}/reject", h.ServiceReject)
}

type profileDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Nickname  *string   `json:"nickname"`
	Phone     *string   `json:"phone"`
	CPF       *string   `json:"cpf"`
	CNPJ      *string   `json:"cnpj"`
	City      *string   `json:"city"`
	State     *string   `json:"state"`
	AvatarURL *string   `json:"avatarUrl"`
	Bio       *string   `json:"bio"`
	CreatedAt time.Time `json:"createdAt"`
}

type memberDTO struct {
	profileDTO
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type requestDTO struct {
	ID        uuid.UUID  `json:"id"`
	Message   *string    `json:"message"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	User      profileDTO `json:"user"`
}

type tenantRefDTO struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"displayName"`
}

type myTenantDTO struct {
	tenantRefDTO
	LogoURL      *string   `json:"logoUrl"`
	PrimaryColor *string   `json:"primaryColor"`
	Role         string    `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type systemDTO struct {
	Slug        string        `json:"slug"`
	DisplayName string        `json:"displayName"`
	Icon        *string       `json:"icon"`
	Color       *string       `json:"color"`
	Tenants     []myTenantDTO `json:"tenants"`
}

// MyTenants implements GET /api/user/tenants, grouped by system.
func (h *Handler) MyTenants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	tenants, err := h.svc.MyTenants(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	systems := []*systemDTO{}
	bySlug := map[string]*systemDTO{}
	for _, ut := range tenants {
		sys := ut.Tenant.System
		group, ok := bySlug[sys.Slug]
		if !ok {
			group = &systemDTO{Slug: sys.Slug, DisplayName: sys.Name, Icon: sys.Icon, Color: sys.Color}
			bySlug[sys.Slug] = group
			systems = append(systems, group)
		}
		group.Tenants = append(group.Tenants, myTenantDTO{
			tenantRefDTO: toTenantRef(ut.Tenant),
			LogoURL:      ut.Tenant.LogoURL,
			PrimaryColor: ut.Tenant.PrimaryColor,
			Role:         ut.Membership.Role,
			JoinedAt:     ut.Membership.JoinedAt,
		})
	}

	problems.WriteJSON(w, http.StatusOK, map[string]any{
		"systems":         systems,
		"total":           len(tenants),
		"currentTenantId": id.CurrentTenantID,
	})
}

type joinRequest struct {
	TenantID   string `json:"tenantId"`
	TenantSlug string `json:"tenantSlug"`
	Message    string `json:"message"`
}

// Join implements POST /api/user/tenants/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body joinRequest
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	ref := service.TenantRef{Slug: strings.TrimSpace(body.TenantSlug)}
	if raw := strings.TrimSpace(body.TenantID); raw != "" {
		tid, err := uuid.Parse(raw)
		if err != nil {
			problems.Write(w, problems.BadRequest("tenantId", "tenant id must be a UUID"))
			return
		}
		ref.ID = tid
	}

	res, err := h.svc.Join(r.Context(), id.UserID, ref, body.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, outcome := http.StatusCreated, "joined"
	switch res.Status {
	case service.JoinReactivated:
		status, outcome = http.StatusOK, "reactivated"
	case service.JoinPending:
		status, outcome = http.StatusAccepted, "pending"
	}
	problems.WriteJSON(w, status, map[string]any{"status": outcome, "tenant": toTenantRef(res.Tenant)})
}

// Leave implements DELETE /api/user/tenants/{tenantID}.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(w, r, "tenantID")
	if !ok {
		return
	}
	if err := h.svc.Leave(r.Context(), id.UserID, tenantID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members implements GET /api/tenants/{tenantID}/members.
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(w, r, "tenantID")
	if !ok {
		return
	}
	members, err := h.svc.Members(r.Context(), id.UserID, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"members": toMemberDTOs(members), "total": len(members)})
}

// Requests implements GET /api/tenants/{tenantID}/requests.
func (h *Handler) Requests(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(w, r, "tenantID")
	if !ok {
		return
	}
	reqs, err := h.svc.PendingRequests(r.Context(), id.UserID, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"requests": toRequestDTOs(reqs), "total": len(reqs)})
}

// Approve implements POST /api/tenants/{tenantID}/requests/{requestID}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(w, r, "tenantID")
	if !ok {
		return
	}
	requestID, ok := h.uuidParam(w, r, "requestID")
	if !ok {
		return
	}
	req, err := h.svc.Approve(r.Context(), id.UserID, tenantID, requestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"status": "approved", "user": toProfileDTO(req.User)})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject implements POST /api/tenants/{tenantID}/requests/{requestID}/reject. The body is optional.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(w, r, "tenantID")
	if !ok {
		return
	}
	requestID, ok := h.uuidParam(w, r, "requestID")
	if !ok {
		return
	}
	reason, ok := h.rejectReason(w, r)
	if !ok {
		return
	}
	if err := h.svc.Reject(r.Context(), id.UserID, tenantID, requestID, reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleRequest struct {
	Role string `json:"role"`
}

// AdminAdd implements POST /api/admin/users/{userID}/tenants/{tenantID}.
func (h *Handler) AdminAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(w, r, "tenantID")
	if !ok {
		return
	}
	body, ok := h.roleBody(w, r)
	if !ok {
		return
	}
	m, t, err := h.svc.AddUserToTenant(r.Context(), id.UserID, userID, tenantID, body.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"tenant": toTenantRef(t), "role": m.Role})
}

// AdminRemove implements DELETE /api/admin/users/{userID}/tenants/{tenantID}.
func (h *Handler) AdminRemove(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	tenantID, ok := h.uuidParam(w, r, "tenantID")
	if !ok {
		return
	}
	if err := h.svc.RemoveUserFromTenant(r.Context(), userID, tenantID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServiceMembers implements GET /api/users/by-tenant/{slug}.
func (h *Handler) ServiceMembers(w http.ResponseWriter, r *http.Request) {
	t, members, err := h.svc.MembersBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{
		"tenant": toTenantRef(t),
		"users":  toMemberDTOs(members),
		"total":  len(members),
	})
}

// ServiceLink implements POST /api/users/tenants/{slug}/link/{userID}.
func (h *Handler) ServiceLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	body, ok := h.roleBody(w, r)
	if !ok {
		return
	}
	m, t, err := h.svc.Link(r.Context(), chi.URLParam(r, "slug"), userID, body.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"tenant": toTenantRef(t), "role": m.Role})
}

// ServiceUnlink implements DELETE /api/users/tenants/{slug}/unlink/{userID}.
func (h *Handler) ServiceUnlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	if err := h.svc.Unlink(r.Context(), chi.URLParam(r, "slug"), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServiceRequests implements GET /api/users/tenants/{slug}/requests.
func (h *Handler) ServiceRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.RequestsBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"requests": toRequestDTOs(reqs), "total": len(reqs)})
}

// ServiceApprove implements POST /api/users/tenants/{slug}/requests/{requestID}/approve.
func (h *Handler) ServiceApprove(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.uuidParam(w, r, "requestID")
	if !ok {
		return
	}
	req, err := h.svc.ApproveBySlug(r.Context(), chi.URLParam(r, "slug"), requestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"status": "approved", "user": toProfileDTO(req.User)})
}

// ServiceReject implements POST /api/users/tenants/{slug}/requests/{requestID}/reject.
func (h *Handler) ServiceReject(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.uuidParam(w, r, "requestID")
	if !ok {
		return
	}
	reason, ok := h.rejectReason(w, r)
	if !ok {
		return
	}
	if err := h.svc.RejectBySlug(r.Context(), chi.URLParam(r, "slug"), requestID, reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (platformauth.Identity, bool) {
	id, ok := platformauth.IdentityFromContext(r.Context())
	if !ok {
		problems.Write(w, problems.Unauthorized("authentication required"))
	}
	return id, ok
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		problems.Write(w, problems.BadRequest(name, "%s must be a UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

// roleBody reads an optional {"role": ...} body.
func (h *Handler) roleBody(w http.ResponseWriter, r *http.Request) (roleRequest, bool) {
	var body roleRequest
	if r.ContentLength == 0 {
		return body, true
	}
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return body, false
	}
	return body, true
}

func (h *Handler) rejectReason(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body rejectRequest
	if r.ContentLength == 0 {
		return "", true
	}
	if err := problems.Decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return body.Reason, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	problems.Write(w, h.problemForError(r, err))
}

func (h *Handler) problemForError(r *http.Request, err error) problems.Details {
	switch {
	case errors.Is(err, service.ErrTenantNotFound), errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrRequestNotFound):
		return problems.NotFound(err.Error())
	case errors.Is(err, service.ErrAlreadyMember), errors.Is(err, service.ErrLastAdmin):
		return problems.Conflict(err.Error())
	case errors.Is(err, service.ErrForbidden):
		return problems.Forbidden(err.Error())
	case errors.Is(err, service.ErrMaintenance):
		return problems.Unavailable(err.Error())
	default:
		p := problems.FromError(err, h.dev)
		if p.Status >= http.StatusInternalServerError {
			logging.FromRequest(r, h.logger).Error("membership operation failed", zap.Error(err))
		}
		return p
	}
}

func toTenantRef(t tenantsvc.Tenant) tenantRefDTO {
	name := t.DisplayName
	if name == "" {
		name = t.Slug
	}
	return tenantRefDTO{ID: t.ID, Slug: t.Slug, DisplayName: name}
}

func toProfileDTO(p service.Profile) profileDTO {
	return profileDTO{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Nickname:  p.Nickname,
		Phone:     p.Phone,
		CPF:       p.CPF,
		CNPJ:      p.CNPJ,
		City:      p.City,
		State:     p.State,
		AvatarURL: p.AvatarURL,
		Bio:       p.Bio,
		CreatedAt: p.CreatedAt,
	}
}

func toMemberDTOs(members []service.Member) []memberDTO {
	out := make([]memberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, memberDTO{profileDTO: toProfileDTO(m.Profile), Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return out
}

func toRequestDTOs(reqs []service.JoinRequest) []requestDTO {
	out := make([]requestDTO, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, requestDTO{
			ID:        req.ID,
			Message:   req.Message,
			Status:    req.Status,
			CreatedAt: req.CreatedAt,
			User:      toProfileDTO(req.User),
		})
	}
	return out
}
