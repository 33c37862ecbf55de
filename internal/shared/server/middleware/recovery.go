package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"skinscan-backend/internal/shared/server/respond"
	"skinscan-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 in the standard error envelope.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		telemetry.Error("http.panic", map[string]any{
			"request_id": RequestIDFromContext(c),
			"clinic_id":  TenantIDFromContext(c),
			"route":      c.FullPath(),
			"panic":      rec,
			"stack":      string(debug.Stack()),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "unexpected server error", nil)
	})
}
