package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zenGate-Global/seletor-hub/platform/go/problems"
	"github.com/zenGate-Global/seletor-hub/platform/go/tenant"
)

// Resolver looks up the routing metadata of an active tenant by slug.
// Implemented by the tenants service.
type Resolver interface {
	ResolveTenantSpace(ctx context.Context, slug string) (tenant.Space, error)
}

// Config controls middleware behavior.
type Config struct {
	// Param names the chi URL parameter carrying the tenant slug. Defaults to "slug".
	Param string
	// CacheTTL keeps resolved spaces in memory; zero disables caching.
	CacheTTL time.Duration
	// OnError renders resolution failures. Defaults to a 404 problem.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// WithTenantSpace resolves the tenant named by the slug URL parameter and attaches its
// tenant.Space to the request context. Requests for unknown, disabled or maintenance
// tenants never reach next.
func WithTenantSpace(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if cfg.Param == "" {
		cfg.Param = "slug"
	}
	if cfg.OnError == nil {
		cfg.OnError = func(w http.ResponseWriter, _ *http.Request, err error) {
			problems.Write(w, problems.NotFound(err.Error()))
		}
	}

	var cache *spaceCache
	if cfg.CacheTTL > 0 {
		cache = newSpaceCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := strings.ToLower(strings.TrimSpace(chi.URLParam(r, cfg.Param)))
			if slug == "" {
				problems.Write(w, problems.BadRequest(cfg.Param, "tenant slug is required"))
				return
			}

			space, ok := cache.get(slug)
			if !ok {
				var err error
				space, err = resolver.ResolveTenantSpace(r.Context(), slug)
				if err != nil {
					cfg.OnError(w, r, err)
					return
				}
				cache.put(slug, space)
			}

			next.ServeHTTP(w, r.WithContext(tenant.WithSpace(r.Context(), space)))
		})
	}
}

type spaceCache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]cacheItem
}

type cacheItem struct {
	space     tenant.Space
	expiresAt time.Time
}

func newSpaceCache(ttl time.Duration) *spaceCache {
	return &spaceCache{ttl: ttl, now: time.Now, items: make(map[string]cacheItem)}
}

func (c *spaceCache) get(slug string) (tenant.Space, bool) {
	if c == nil {
		return tenant.Space{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[slug]
	if !ok || c.now().After(item.expiresAt) {
		return tenant.Space{}, false
	}
	return item.space, true
}

func (c *spaceCache) put(slug string, space tenant.Space) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[slug] = cacheItem{space: space, expiresAt: c.now().Add(c.ttl)}
}
