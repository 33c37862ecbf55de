package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	tenantIDKey = "tenantId"
	userIDKey   = "userId"
)

// Tenant records the calling clinic and user from request headers. The
// values are identifiers only; body fields take precedence in handlers.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader("X-Clinic-Id")); id != "" {
			c.Set(tenantIDKey, id)
		}
		if id := strings.TrimSpace(c.GetHeader("X-User-Id")); id != "" {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

// TenantIDFromContext returns the clinic id attached by Tenant, or by a
// handler via SetTenantID.
func TenantIDFromContext(c *gin.Context) string {
	return c.GetString(tenantIDKey)
}

// UserIDFromContext returns the user id attached by Tenant.
func UserIDFromContext(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// SetTenantID stores the resolved clinic id for logging.
func SetTenantID(c *gin.Context, tenantID string) {
	if tenantID != "" {
		c.Set(tenantIDKey, tenantID)
	}
}
