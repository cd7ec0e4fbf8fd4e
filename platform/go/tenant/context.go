package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Space captures the resolved tenant routing metadata for a request: which hub
// tenant it targets and where that tenant's physical database lives.
type Space struct {
	TenantID     uuid.UUID
	Slug         string
	Name         string
	DatabaseName string
	DatabaseHost string
	SystemSlug   string
}

type ctxKey string

const spaceKey ctxKey = "SELETOR_TENANT_SPACE"

// WithSpace returns a derived context carrying the tenant Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext extracts the tenant Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	v := ctx.Value(spaceKey)
	if v == nil {
		return Space{}, false
	}

	space, ok := v.(Space)
	return space, ok
}
