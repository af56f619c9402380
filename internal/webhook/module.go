package webhook

import (
	"context"

	"atende_backend/internal/events"
	apphttp "atende_backend/internal/http"
	"atende_backend/platform/config"
	"atende_backend/platform/httpkit"
	"atende_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// TokenHeader carries the shared secret configured on the gateway.
const TokenHeader = "X-Webhook-Token"

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
	token   string
	log     *logger.Logger
}

// NewModule creates the webhook module. rdb may be nil, in which case the
// dedup window is checked against the event table only.
func NewModule(pool *pgxpool.Pool, rdb *redis.Client, resolver TenantResolver, processor TurnProcessor, eventBus events.Bus, cfg config.WebhookConfig, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	guard := NewWindowGuard(rdb, repo, cfg.GetDedupWindow(), log)
	service := NewService(repo, guard, resolver, processor, eventBus, log)

	return &Module{
		handler: NewHandler(service),
		repo:    repo,
		token:   cfg.GetWebhookToken(),
		log:     log,
	}
}

// RegisterHandlers subscribes the module to domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.WebhookEventFailed{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		return logFailedEvent(m.log, e)
	}))
}

func logFailedEvent(log *logger.Logger, e events.Event) error {
	failed, ok := e.(events.WebhookEventFailed)
	if !ok {
		return nil
	}
	args := []any{"eventRecordId", failed.EventRecordID, "reason", failed.Reason}
	if failed.TenantID != nil {
		args = append(args, "tenantId", *failed.TenantID)
	}
	log.Warn("webhook: delivery marked failed", args...)
	return nil
}

// Repository exposes the event store for the retention job.
func (m *Module) Repository() *Repository {
	return m.repo
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the public gateway endpoint.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	handlers := []gin.HandlerFunc{}
	if ctx.WebhookRateLimiter != nil {
		handlers = append(handlers, ctx.WebhookRateLimiter.RateLimit())
	}
	handlers = append(handlers, httpkit.SharedSecret(TokenHeader, m.token), m.handler.HandleWhatsApp)
	ctx.V1.POST("/webhook/whatsapp/:provider", handlers...)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
