package analyses

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"skinscan-backend/internal/baseline"
	"skinscan-backend/internal/fusion"
	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/scancache"
	"skinscan-backend/internal/shared/server/middleware"
	"skinscan-backend/internal/shared/server/respond"
)

const defaultPreviewAge = 35

// CacheStats reports cache effectiveness.
type CacheStats interface {
	Stats(ctx context.Context) (scancache.Stats, error)
}

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc   *Service
	Cache CacheStats
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, cache CacheStats) *Handler {
	return &Handler{Svc: svc, Cache: cache}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analysis/skin", h.analyze)
	rg.POST("/analysis/skin/stream", h.analyzeStream)
	rg.GET("/analysis/skin/baseline", h.baselinePreview)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analyses/:id/image", h.getImage)
	rg.GET("/cache/stats", h.cacheStats)
}

func (h *Handler) bindRequest(c *gin.Context) (Request, bool) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid JSON body", nil)
		return Request{}, false
	}
	if strings.TrimSpace(req.ClinicID) == "" {
		req.ClinicID = middleware.TenantIDFromContext(c)
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = middleware.UserIDFromContext(c)
	}
	middleware.SetTenantID(c, strings.TrimSpace(req.ClinicID))
	return req, true
}

func (h *Handler) requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) analyze(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	analysis, err := h.Svc.Analyze(h.requestContext(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("fusionTier", analysis.Result.Tier.String())
	respond.OK(c, ResponseOf(analysis))
}

// analyzeStream reports pipeline stages as server-sent events, then a final
// result or error event.
func (h *Handler) analyzeStream(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	progress := func(stage Stage, detail map[string]any) {
		payload := gin.H{"stage": stage}
		for k, v := range detail {
			payload[k] = v
		}
		c.SSEvent("stage", payload)
		c.Writer.Flush()
	}

	analysis, err := h.Svc.AnalyzeWithProgress(h.requestContext(c), req, progress)
	if err != nil {
		status, code, message, details := classify(err)
		c.SSEvent("error", gin.H{"status": status, "code": code, "message": message, "details": details})
		c.Writer.Flush()
		return
	}
	c.Set("fusionTier", analysis.Result.Tier.String())
	c.SSEvent("result", ResponseOf(analysis))
	c.Writer.Flush()
}

// baselinePreview serves the deterministic analyzers without an image.
func (h *Handler) baselinePreview(c *gin.Context) {
	age := defaultPreviewAge
	if raw := strings.TrimSpace(c.Query("age")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 150 {
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "age must be an integer between 1 and 150", nil)
			return
		}
		age = n
	}

	switch kind := c.DefaultQuery("type", "comprehensive"); kind {
	case "symmetry":
		respond.OK(c, gin.H{"data": baseline.ReferenceSymmetry()})
	case "metrics":
		respond.OK(c, gin.H{"data": baseline.SkinMetrics(age)})
	case "wrinkles":
		respond.OK(c, gin.H{"data": baseline.Wrinkles()})
	case "comprehensive":
		c.Set("fusionTier", fusion.TierBaseline.String())
		respond.OK(c, gin.H{"data": fusion.Fuse(fusion.Input{Age: age})})
	default:
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "type must be one of symmetry, metrics, wrinkles, comprehensive", nil)
	}
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	if analysisID == "" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "analysis id is required", nil)
		return
	}

	analysis, err := h.Svc.Get(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch analysis", nil)
		}
		return
	}
	if tenantID := middleware.TenantIDFromContext(c); tenantID != "" && tenantID != analysis.TenantID {
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "analysis not found", nil)
		return
	}
	respond.OK(c, analysis)
}

func (h *Handler) getImage(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	if tenantID == "" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "X-Clinic-Id header is required", nil)
		return
	}
	image, mimeType, err := h.Svc.Image(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "analysis not found", nil)
		case errors.Is(err, ErrNoImage):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "no image archived for analysis", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch image", nil)
		}
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, mimeType, image)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	if tenantID == "" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "X-Clinic-Id header is required", nil)
		return
	}

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	analyses, err := h.Svc.List(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to list analyses", nil)
		return
	}
	respond.OK(c, gin.H{"items": analyses, "limit": limit, "offset": offset})
}

func (h *Handler) cacheStats(c *gin.Context) {
	if h.Cache == nil {
		respond.Error(c, http.StatusServiceUnavailable, "cache_unavailable", "cache not configured", nil)
		return
	}
	st, err := h.Cache.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusServiceUnavailable, "cache_unavailable", "failed to read cache stats", nil)
		return
	}
	respond.OK(c, st)
}

func writeError(c *gin.Context, err error) {
	status, code, message, details := classify(err)
	respond.Error(c, status, code, message, details)
}

func classify(err error) (int, string, string, any) {
	var verr *ValidationError
	var qerr *QuotaExceededError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorCodeValidation, verr.Error(), verr.Fields
	case errors.As(err, &qerr):
		return http.StatusForbidden, ErrorCodeQuotaExceeded, "monthly scan quota exhausted", qerr
	case errors.Is(err, quota.ErrQuotaUnavailable):
		return http.StatusServiceUnavailable, ErrorCodeQuotaUnavailable, "quota service unavailable, try again shortly", nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "request_timeout", "request cancelled before completion", nil
	default:
		return http.StatusInternalServerError, ErrorCodeInternal, "analysis failed", nil
	}
}
