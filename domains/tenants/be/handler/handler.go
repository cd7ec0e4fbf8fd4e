package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
)

const defaultPrimaryColor = "#ef4444"

// Handler exposes the tenant catalog and lifecycle over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	dev    bool
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger, dev bool) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger, dev: dev}
}

// RegisterPublic mounts the unauthenticated catalog routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/tenants/available", h.Available)
	r.Get("/tenants/{slug}", h.Details)
}

// RegisterAdmin mounts the super-admin lifecycle routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/tenants", h.AdminList)
	r.Post("/tenants", h.Provision)
	r.Delete("/tenants/{tenantID}", h.Teardown)
	r.Post("/tenants/{tenantID}/apply-template", h.ApplyTemplate)
}

type systemDTO struct {
	Slug        string      `json:"slug"`
	DisplayName string      `json:"displayName"`
	Icon        *string     `json:"icon"`
	Color       *string     `json:"color"`
	Tenants     []tenantDTO `json:"tenants,omitempty"`
}

type tenantDTO struct {
	ID                uuid.UUID  `json:"id"`
	Slug              string     `json:"slug"`
	DisplayName       string     `json:"displayName"`
	LogoURL           *string    `json:"logoUrl"`
	PrimaryColor      string     `json:"primaryColor"`
	WelcomeMessage    *string    `json:"welcomeMessage"`
	AllowRegistration bool       `json:"allowRegistration"`
	MemberCount       int        `json:"memberCount"`
	System            *systemDTO `json:"system,omitempty"`
}

type adminTenantDTO struct {
	tenantDTO
	DatabaseName    string    `json:"databaseName"`
	DatabaseHost    string    `json:"databaseHost"`
	IsActive        bool      `json:"isActive"`
	MaintenanceMode bool      `json:"maintenanceMode"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Available implements GET /api/tenants/available, grouped by system.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.Available(r.Context(), r.URL.Query().Get("system"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	var systems []*systemDTO
	bySlug := map[string]*systemDTO{}
	for _, t := range tenants {
		group, ok := bySlug[t.System.Slug]
		if !ok {
			group = &systemDTO{Slug: t.System.Slug, DisplayName: t.System.Name, Icon: t.System.Icon, Color: t.System.Color}
			bySlug[t.System.Slug] = group
			systems = append(systems, group)
		}
		group.Tenants = append(group.Tenants, toTenantDTO(t, false))
	}
	if systems == nil {
		systems = []*systemDTO{}
	}

	problems.WriteJSON(w, http.StatusOK, map[string]any{"systems": systems, "total": len(tenants)})
}

// Details implements GET /api/tenants/{slug}.
func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.List(r.Context(), service.ListOptions{Slug: chi.URLParam(r, "slug")})
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if len(tenants) == 0 {
		problems.Write(w, problems.NotFound(service.ErrNotFound.Error()))
		return
	}
	problems.WriteJSON(w, http.StatusOK, toTenantDTO(tenants[0], true))
}

// AdminList implements GET /api/admin/tenants.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenants, err := h.svc.List(r.Context(), service.ListOptions{
		SystemSlug:      q.Get("system"),
		IncludeInactive: q.Get("include_inactive") == "true",
	})
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	items := make([]adminTenantDTO, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, toAdminDTO(t))
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{"tenants": items, "total": len(items)})
}

type provisionRequest struct {
	Slug              string  `json:"slug"`
	DisplayName       string  `json:"displayName"`
	System            string  `json:"system"`
	DatabaseHost      string  `json:"databaseHost"`
	LogoURL           *string `json:"logoUrl"`
	PrimaryColor      *string `json:"primaryColor"`
	WelcomeMessage    *string `json:"welcomeMessage"`
	AllowRegistration *bool   `json:"allowRegistration"`
}

// Provision implements POST /api/admin/tenants.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var body provisionRequest
	if err := problems.Decode(r, &body); err != nil {
		h.WriteError(w, r, err)
		return
	}

	allow := true
	if body.AllowRegistration != nil {
		allow = *body.AllowRegistration
	}

	res, err := h.svc.Provision(r.Context(), service.ProvisionInput{
		Slug:              body.Slug,
		DisplayName:       body.DisplayName,
		SystemSlug:        body.System,
		Host:              body.DatabaseHost,
		LogoURL:           body.LogoURL,
		PrimaryColor:      body.PrimaryColor,
		WelcomeMessage:    body.WelcomeMessage,
		AllowRegistration: allow,
	})
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyProvisioned {
		status = http.StatusOK
	} else {
		w.Header().Set("Location", fmt.Sprintf("/api/tenants/%s", res.Tenant.Slug))
	}
	problems.WriteJSON(w, status, map[string]any{
		"tenant":             toAdminDTO(res.Tenant),
		"databaseCreated":    res.DatabaseCreated,
		"alreadyProvisioned": res.AlreadyProvisioned,
		"statementsApplied":  res.Template.Total(),
	})
}

// Teardown implements DELETE /api/admin/tenants/{tenantID}.
func (h *Handler) Teardown(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.TeardownTenant(r.Context(), id); err != nil {
		h.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyTemplate implements POST /api/admin/tenants/{tenantID}/apply-template.
func (h *Handler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	res, err := h.svc.ApplyTemplateToExistingDatabase(r.Context(), t.DatabaseHost, t.DatabaseName, "")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, map[string]any{
		"database":    res.Database,
		"createTable": res.CreateTable,
		"statements":  res.Statements,
		"foreignKeys": res.ForeignKeys,
	})
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "tenantID")))
	if err != nil {
		problems.Write(w, problems.BadRequest("tenantID", "tenant id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// WriteError renders a tenants service error as a problem document.
func (h *Handler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	problems.Write(w, h.problemForError(r, err))
}

func (h *Handler) problemForError(r *http.Request, err error) problems.Details {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrSystemNotFound):
		return problems.NotFound(err.Error())
	case errors.Is(err, service.ErrConflictSlug):
		return problems.Conflict(err.Error())
	case errors.Is(err, service.ErrMaintenance), errors.Is(err, service.ErrDisabled):
		return problems.Unavailable(err.Error())
	default:
		p := problems.FromError(err, h.dev)
		if p.Status >= http.StatusInternalServerError || p.Status == http.StatusUnprocessableEntity {
			logging.FromRequest(r, h.logger).Error("tenant operation failed", zap.Error(err))
		}
		return p
	}
}

func toTenantDTO(t service.Tenant, withSystem bool) tenantDTO {
	displayName := t.DisplayName
	if displayName == "" {
		displayName = t.Slug
	}
	color := defaultPrimaryColor
	if t.PrimaryColor != nil && *t.PrimaryColor != "" {
		color = *t.PrimaryColor
	}
	dto := tenantDTO{
		ID:                t.ID,
		Slug:              t.Slug,
		DisplayName:       displayName,
		LogoURL:           t.LogoURL,
		PrimaryColor:      color,
		WelcomeMessage:    t.WelcomeMessage,
		AllowRegistration: t.AllowRegistration,
		MemberCount:       t.MemberCount,
	}
	if withSystem && t.System.Slug != "" {
		dto.System = &systemDTO{Slug: t.System.Slug, DisplayName: t.System.Name, Icon: t.System.Icon, Color: t.System.Color}
	}
	return dto
}

func toAdminDTO(t service.Tenant) adminTenantDTO {
	return adminTenantDTO{
		tenantDTO:       toTenantDTO(t, true),
		DatabaseName:    t.DatabaseName,
		DatabaseHost:    t.DatabaseHost,
		IsActive:        t.IsActive,
		MaintenanceMode: t.MaintenanceMode,
		CreatedAt:       t.CreatedAt,
	}
}
