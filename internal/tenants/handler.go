package tenants

import (
	"atende_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler serves tenant admin endpoints.
type Handler struct {
	cache *SettingsCache
}

// NewHandler creates a new tenants handler.
func NewHandler(cache *SettingsCache) *Handler {
	return &Handler{cache: cache}
}

// HandleInvalidateSettings drops the caller tenant's cached settings after
// an out-of-band write.
// POST /api/v1/admin/tenant-settings/invalidate
func (h *Handler) HandleInvalidateSettings(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	h.cache.Invalidate(tenantID)
	httpkit.OK(c, gin.H{"message": "settings cache invalidated"})
}
