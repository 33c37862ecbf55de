// Package respond writes JSON bodies and the {"error":{...}} envelope.
package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skinscan-backend/internal/shared/telemetry"
)

// ErrorBody is the payload under "error".
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// JSON writes payload with status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes payload with 200.
func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// Error logs the failure and aborts with the error envelope. 5xx is logged
// at error level, everything else at warn.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"route":      c.FullPath(),
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if clinicID := c.GetString("tenantId"); clinicID != "" {
		fields["clinic_id"] = clinicID
	}
	if tier := c.GetString("fusionTier"); tier != "" {
		fields["tier"] = tier
	}
	log := telemetry.Warn
	if status >= http.StatusInternalServerError {
		log = telemetry.Error
	}
	log("http.error", fields)

	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}})
}
