package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MustGetTenantID returns the tenant set by AuthRequired. It aborts with 403
// and returns false when the token carried no tenant.
func MustGetTenantID(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(ContextTenantIDKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no tenant context"})
		return uuid.Nil, false
	}
	tenantID, ok := value.(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no tenant context"})
		return uuid.Nil, false
	}
	return tenantID, true
}
