package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local development.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]service.Tenant
	bySlug  map[string]uuid.UUID
	systems map[string]service.System
}

// NewMemoryRepository constructs a MemoryRepository seeded with the given systems.
func NewMemoryRepository(systems ...service.System) *MemoryRepository {
	r := &MemoryRepository{
		byID:    make(map[uuid.UUID]service.Tenant),
		bySlug:  make(map[string]uuid.UUID),
		systems: make(map[string]service.System),
	}
	for _, s := range systems {
		r.AddSystem(s)
	}
	return r
}

// AddSystem registers a system, assigning an id when missing.
func (r *MemoryRepository) AddSystem(s service.System) service.System {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.systems[s.Slug] = s
	return s
}

// SetFlags overwrites the active and maintenance flags of a tenant.
func (r *MemoryRepository) SetFlags(id uuid.UUID, active, maintenance bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byID[id]; ok {
		t.IsActive = active
		t.MaintenanceMode = maintenance
		r.byID[id] = t
	}
}

func (r *MemoryRepository) List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slug := strings.TrimSpace(opts.Slug)
	system := strings.TrimSpace(opts.SystemSlug)

	items := make([]service.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if !opts.IncludeInactive && !t.IsActive {
			continue
		}
		if opts.ExcludeMaintenance && t.MaintenanceMode {
			continue
		}
		if slug != "" && t.Slug != slug {
			continue
		}
		if system != "" && t.System.Slug != system {
			continue
		}
		items = append(items, t)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].System.DisplayOrder != items[j].System.DisplayOrder {
			return items[i].System.DisplayOrder < items[j].System.DisplayOrder
		}
		return items[i].DisplayName < items[j].DisplayName
	})
	return items, nil
}

func (r *MemoryRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[t.Slug]; exists {
		return service.Tenant{}, service.ErrConflictSlug
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.byID[t.ID] = t
	r.bySlug[t.Slug] = t.ID
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) FindBySlug(ctx context.Context, slug string, includeInactive bool) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlug[strings.TrimSpace(slug)]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	t := r.byID[id]
	if !includeInactive && !t.IsActive {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.bySlug, t.Slug)
	return nil
}

func (r *MemoryRepository) FindSystem(ctx context.Context, slug string) (service.System, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.systems[strings.TrimSpace(slug)]
	if !ok {
		return service.System{}, service.ErrSystemNotFound
	}
	return s, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
