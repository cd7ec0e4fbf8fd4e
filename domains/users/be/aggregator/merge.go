package aggregator

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	roleAdmin  = "admin"
	roleMember = "member"
)

// Merge groups rows by lower-cased email. The first row seen for an email seeds the identity;
// every row, the first included, contributes one tenant membership unless the identity already
// lists that tenant.
func Merge(rows []RemoteUser) []Identity {
	index := make(map[string]int, len(rows))
	identities := make([]Identity, 0, len(rows))

	for _, row := range rows {
		key := strings.ToLower(strings.TrimSpace(row.Email))
		if key == "" {
			continue
		}

		pos, seen := index[key]
		if !seen {
			pos = len(identities)
			index[key] = pos
			identities = append(identities, seed(row))
		}
		if hasTenant(identities[pos], row.Source.ID) {
			continue
		}
		identities[pos].Tenants = append(identities[pos].Tenants, Membership{
			TenantID:   row.Source.ID,
			Slug:       row.Source.Slug,
			Name:       row.Source.Name,
			System:     row.Source.SystemName,
			SystemSlug: row.Source.SystemSlug,
			Role:       resolveRole(row),
		})
	}
	return identities
}

func hasTenant(id Identity, tenantID uuid.UUID) bool {
	for _, m := range id.Tenants {
		if m.TenantID == tenantID {
			return true
		}
	}
	return false
}

func seed(row RemoteUser) Identity {
	id := Identity{
		ID:          row.ID,
		Name:        row.Name,
		Nickname:    row.Nickname,
		Email:       row.Email,
		Phone:       row.Phone,
		CPF:         row.CPF,
		CNPJ:        row.CNPJ,
		City:        row.City,
		State:       row.State,
		AvatarURL:   row.AvatarURL,
		IsActive:    true,
		LastLoginAt: row.LastLoginAt,
		CreatedAt:   row.CreatedAt,
	}
	if row.IsActive != nil {
		id.IsActive = *row.IsActive
	}
	if row.IsBlocked != nil {
		id.IsBlocked = *row.IsBlocked
	}
	return id
}

func resolveRole(row RemoteUser) string {
	if row.Role != nil && strings.TrimSpace(*row.Role) != "" {
		return strings.TrimSpace(*row.Role)
	}
	if row.IsAdmin != nil && *row.IsAdmin {
		return roleAdmin
	}
	return roleMember
}

// Filter keeps the identities matching q's search, status and missing-contact filters.
func Filter(items []Identity, q Query) []Identity {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Identity, 0, len(items))
	for _, it := range items {
		if search != "" && !matchesSearch(it, search) {
			continue
		}
		switch q.Status {
		case StatusActive:
			if !it.active() {
				continue
			}
		case StatusInactive:
			if it.active() {
				continue
			}
		}
		if q.MissingContact && strings.TrimSpace(deref(it.Phone)) != "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

func matchesSearch(it Identity, needle string) bool {
	for _, field := range []string{deref(it.Name), it.Email, deref(it.Phone), deref(it.CPF)} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Sort orders items in place by q.SortBy (name by default) in q.SortDir. Ties keep merge order.
func Sort(items []Identity, q Query) {
	desc := strings.EqualFold(q.SortDir, SortDesc)

	var less func(a, b Identity) bool
	switch q.SortBy {
	case SortByEmail:
		less = func(a, b Identity) bool { return strings.ToLower(a.Email) < strings.ToLower(b.Email) }
	case SortByCreatedAt:
		less = func(a, b Identity) bool {
			switch {
			case a.CreatedAt == nil:
				return b.CreatedAt != nil
			case b.CreatedAt == nil:
				return false
			default:
				return a.CreatedAt.Before(*b.CreatedAt)
			}
		}
	default:
		less = func(a, b Identity) bool { return strings.ToLower(deref(a.Name)) < strings.ToLower(deref(b.Name)) }
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

// Normalize applies the default page size and clamps page and per-page into range.
func Normalize(q Query) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PerPage == 0:
		q.PerPage = DefaultPerPage
	case q.PerPage < 1:
		q.PerPage = 1
	case q.PerPage > MaxPerPage:
		q.PerPage = MaxPerPage
	}
	return q
}

// Paginate slices one page out of items. Total counts every item handed in. Page and perPage
// below one are treated as one; pages past the end are empty.
func Paginate(items []Identity, page, perPage int) ([]Identity, Pagination) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	total := len(items)
	pages := 0
	if total > 0 {
		pages = (total-1)/perPage + 1
	}

	// Compare in page units so (page-1)*perPage never overflows.
	start := total
	if page-1 < pages {
		start = (page - 1) * perPage
	}
	end := total
	if perPage < total-start {
		end = start + perPage
	}

	return items[start:end], Pagination{Page: page, PerPage: perPage, Total: total, Pages: pages}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
