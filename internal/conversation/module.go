package conversation

import (
	apphttp "atende_backend/internal/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the memory store, the message log and the admin routes.
type Module struct {
	repo    *Repository
	store   *Store
	handler *Handler
}

// NewModule creates the conversation module.
func NewModule(pool *pgxpool.Pool) *Module {
	repo := NewRepository(pool)
	store := NewStore(repo)
	return &Module{
		repo:    repo,
		store:   store,
		handler: NewHandler(store, repo),
	}
}

// Store returns the shared memory store.
func (m *Module) Store() *Store {
	return m.store
}

// MessageLog returns the message log writer.
func (m *Module) MessageLog() MessageLog {
	return m.repo
}

func (m *Module) Name() string {
	return "conversation"
}

// RegisterRoutes mounts the admin conversation routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/conversations")
	group.GET("/:phone", m.handler.HandleGet)
	group.DELETE("/:phone/state", m.handler.HandleReset)
}

var _ apphttp.Module = (*Module)(nil)
