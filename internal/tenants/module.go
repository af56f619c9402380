package tenants

import (
	"time"

	apphttp "atende_backend/internal/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the resolver, the settings cache and the admin routes.
type Module struct {
	repo     *Repository
	resolver *Resolver
	cache    *SettingsCache
	handler  *Handler
}

// NewModule creates the tenants module.
func NewModule(pool *pgxpool.Pool, settingsTTL time.Duration) *Module {
	repo := NewRepository(pool)
	cache := NewSettingsCache(repo, settingsTTL, nil)
	return &Module{
		repo:     repo,
		resolver: NewResolver(repo),
		cache:    cache,
		handler:  NewHandler(cache),
	}
}

func (m *Module) Resolver() *Resolver      { return m.resolver }
func (m *Module) Settings() *SettingsCache { return m.cache }
func (m *Module) Repository() *Repository  { return m.repo }

func (m *Module) Name() string {
	return "tenants"
}

// RegisterRoutes mounts the tenant admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/tenant-settings/invalidate", m.handler.HandleInvalidateSettings)
}

var _ apphttp.Module = (*Module)(nil)
