package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/domains/users/be/aggregator"
	"github.com/zenGate-Global/seletor-hub/platform/go/logging"
	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
)

// Lister produces one page of the cross-tenant user listing.
type Lister interface {
	List(ctx context.Context, q aggregator.Query) (aggregator.Result, error)
}

// Handler exposes the aggregated user listing to super administrators.
type Handler struct {
	lister Lister
	logger *zap.Logger
	dev    bool
}

// New constructs a Handler instance.
func New(lister Lister, logger *zap.Logger, dev bool) *Handler {
	if lister == nil {
		panic("user lister is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{lister: lister, logger: logger, dev: dev}
}

// RegisterAdmin mounts GET /users under the super-admin router.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/users", h.List)
}

// List implements GET /api/admin/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q, problem := parseQuery(r.URL.Query())
	if problem != nil {
		problems.Write(w, *problem)
		return
	}

	res, err := h.lister.List(r.Context(), q)
	if err != nil {
		p := problems.FromError(err, h.dev)
		if p.Status >= http.StatusInternalServerError {
			logging.FromRequest(r, h.logger).Error("user aggregation failed", zap.Error(err))
		}
		problems.Write(w, p)
		return
	}
	if len(res.Unavailable) > 0 {
		logging.FromRequest(r, h.logger).Warn("user listing is partial", zap.Strings("unavailable_tenants", res.Unavailable))
	}

	problems.WriteJSON(w, http.StatusOK, map[string]any{
		"users":               res.Items,
		"pagination":          res.Pagination,
		"unavailable_tenants": res.Unavailable,
	})
}

func parseQuery(v url.Values) (aggregator.Query, *problems.Details) {
	q := aggregator.Query{
		Search:     strings.TrimSpace(v.Get("q")),
		TenantSlug: strings.TrimSpace(v.Get("tenant")),
		SortBy:     aggregator.SortByName,
		SortDir:    aggregator.SortAsc,
	}

	switch status := strings.ToLower(v.Get("status")); status {
	case "", "all":
	case aggregator.StatusActive, aggregator.StatusInactive:
		q.Status = status
	default:
		return q, badRequest("status", "status must be one of active, inactive or all")
	}

	if s := strings.ToLower(v.Get("sort_by")); s != "" {
		switch s {
		case aggregator.SortByName, aggregator.SortByEmail, aggregator.SortByCreatedAt:
			q.SortBy = s
		default:
			return q, badRequest("sort_by", "sort_by must be name, email or created_at")
		}
	}
	if d := strings.ToLower(v.Get("sort_dir")); d != "" {
		if d != aggregator.SortAsc && d != aggregator.SortDesc {
			return q, badRequest("sort_dir", "sort_dir must be asc or desc")
		}
		q.SortDir = d
	}

	if raw := v.Get("missing_contact"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, badRequest("missing_contact", "missing_contact must be a boolean")
		}
		q.MissingContact = b
	}

	var err error
	if q.Page, err = intParam(v, "page"); err != nil {
		return q, badRequest("page", "page must be an integer")
	}
	if q.PerPage, err = intParam(v, "per_page"); err != nil {
		return q, badRequest("per_page", "per_page must be an integer")
	}
	return q, nil
}

func intParam(v url.Values, name string) (int, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func badRequest(field, msg string) *problems.Details {
	p := problems.BadRequest(field, "%s", msg)
	return &p
}
