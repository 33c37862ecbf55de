package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skinscan-backend/internal/shared/server/middleware"
	"skinscan-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

// meHandler echoes the caller identity resolved from the clinic headers.
func meHandler(c *gin.Context) {
	clinicID := middleware.TenantIDFromContext(c)
	if clinicID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "X-Clinic-Id header is required", nil)
		return
	}

	response := gin.H{
		"clinicId": clinicID,
	}
	if userID := middleware.UserIDFromContext(c); userID != "" {
		response["userId"] = userID
	}
	respond.OK(c, response)
}
