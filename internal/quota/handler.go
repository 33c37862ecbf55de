package quota

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"skinscan-backend/internal/shared/server/middleware"
	"skinscan-backend/internal/shared/server/respond"
)

// Handler exposes quota endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches quota routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/quota/:clinicId", h.getUsage)
	rg.GET("/quota/:clinicId/records", h.listRecords)
}

// RegisterDevRoutes attaches dev-only quota routes.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/quota/:clinicId/reset", h.resetUsage)
}

func (h *Handler) getUsage(c *gin.Context) {
	clinicID, ok := clinicParam(c)
	if !ok {
		return
	}
	u, err := h.Svc.Usage(c.Request.Context(), clinicID)
	if err != nil {
		writeError(c, err, "failed to fetch quota")
		return
	}
	respond.OK(c, u)
}

func (h *Handler) listRecords(c *gin.Context) {
	clinicID, ok := clinicParam(c)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	recs, err := h.Svc.Records(c.Request.Context(), clinicID, limit)
	if err != nil {
		writeError(c, err, "failed to list usage records")
		return
	}
	respond.OK(c, gin.H{"records": recs})
}

func (h *Handler) resetUsage(c *gin.Context) {
	clinicID, ok := clinicParam(c)
	if !ok {
		return
	}
	u, err := h.Svc.Reset(c.Request.Context(), clinicID)
	if err != nil {
		writeError(c, err, "failed to reset quota")
		return
	}
	respond.OK(c, u)
}

func clinicParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("clinicId"))
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "clinic id is required", nil)
		return "", false
	}
	middleware.SetTenantID(c, id)
	return id, true
}

func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	case errors.Is(err, ErrQuotaUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "quota_unavailable", msg, nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
