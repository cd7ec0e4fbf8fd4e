// Package aggregator builds the cross-tenant user listing: it reads each tenant database's
// users table, merges rows by email identity and applies filters, sorting and pagination in memory.
package aggregator

import (
	"time"

	"github.com/google/uuid"
)

// TenantSource identifies one tenant database to read from.
type TenantSource struct {
	ID           uuid.UUID
	Slug         string
	Name         string
	DatabaseName string
	DatabaseHost string
	SystemSlug   string
	SystemName   string
}

// RemoteUser is one row read from a tenant's users table. Optional columns are nil when the
// tenant schema does not have them or the value is NULL.
type RemoteUser struct {
	Source TenantSource

	ID    string
	Email string

	Name      *string
	Nickname  *string
	Phone     *string
	CPF       *string
	CNPJ      *string
	City      *string
	State     *string
	AvatarURL *string
	Role      *string
	HubUserID *string

	IsActive  *bool
	IsBlocked *bool
	IsAdmin   *bool

	CreatedAt   *time.Time
	LastLoginAt *time.Time
}

// Membership is one tenant in which an identity was found.
type Membership struct {
	TenantID   uuid.UUID `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	System     string    `json:"system"`
	SystemSlug string    `json:"systemSlug"`
	Role       string    `json:"role"`
}

// Identity is a deduplicated person keyed by lower-cased email.
type Identity struct {
	ID          string       `json:"id"`
	Name        *string      `json:"name"`
	Nickname    *string      `json:"nickname"`
	Email       string       `json:"email"`
	Phone       *string      `json:"phone"`
	CPF         *string      `json:"cpf"`
	CNPJ        *string      `json:"cnpj"`
	City        *string      `json:"city"`
	State       *string      `json:"state"`
	AvatarURL   *string      `json:"avatar_url"`
	IsActive    bool         `json:"is_active"`
	IsBlocked   bool         `json:"is_blocked"`
	LastLoginAt *time.Time   `json:"last_login_at"`
	CreatedAt   *time.Time   `json:"created_at"`
	Tenants     []Membership `json:"tenants"`
}

// active reports whether the identity may sign in: active and not blocked.
func (i Identity) active() bool {
	return i.IsActive && !i.IsBlocked
}

// Sort keys and directions accepted by Query.
const (
	SortByName      = "name"
	SortByEmail     = "email"
	SortByCreatedAt = "created_at"

	SortAsc  = "asc"
	SortDesc = "desc"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Pagination bounds.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Query holds the listing filters, sort and page.
type Query struct {
	Search         string
	Status         string
	TenantSlug     string
	MissingContact bool
	SortBy         string
	SortDir        string
	Page           int
	PerPage        int
}

// Pagination describes the returned page.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// Result is one page of merged identities.
type Result struct {
	Items       []Identity `json:"items"`
	Pagination  Pagination `json:"pagination"`
	Unavailable []string   `json:"unavailable_tenants,omitempty"`
}
