// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"atende_backend/platform/config"
	"atende_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine.
	Engine *gin.Engine
	// V1 is the public /api/v1 route group.
	V1 *gin.RouterGroup
	// Admin is the operator route group under /api/v1/admin (JWT + admin role).
	Admin *gin.RouterGroup
	// Config is the JWT configuration used by the admin group.
	Config config.JWTConfig
	// WebhookRateLimiter throttles gateway deliveries per client IP.
	WebhookRateLimiter *httpkit.IPRateLimiter
}
