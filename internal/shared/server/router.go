package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"skinscan-backend/internal/analyses"
	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/services/health"
	"skinscan-backend/internal/shared/config"
	"skinscan-backend/internal/shared/metrics"
	"skinscan-backend/internal/shared/server/middleware"
	"skinscan-backend/internal/shared/server/respond"
	"skinscan-backend/internal/shared/telemetry"
)

// Rate limit groups.
const (
	groupScan    = "SCAN"
	groupRead    = "READ"
	groupDefault = "DEFAULT"
)

// RouterDeps are the handlers mounted by NewRouter.
type RouterDeps struct {
	Config          config.Config
	AnalysisHandler *analyses.Handler
	QuotaHandler    *quota.Handler
	Health          *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		otelgin.Middleware(telemetry.TracerName),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Tenant(),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitConfig(cfg)))

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}
	api.GET("/health", func(c *gin.Context) {
		rep := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !rep.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, rep)
	})
	registerMeRoutes(api)

	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.QuotaHandler != nil {
		deps.QuotaHandler.RegisterRoutes(api)
		if cfg.Env == "dev" || cfg.Env == "local" {
			dev := api.Group("/dev")
			deps.QuotaHandler.RegisterDevRoutes(dev)
		}
	}

	return r
}

func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	perSecond := float64(cfg.RateLimitPerMinute) / 60
	return middleware.RateLimitConfig{
		DefaultGroup: groupDefault,
		GroupFor:     rateLimitGroup,
		Rules: map[string]middleware.RateLimitRule{
			groupScan:    {Rate: perSecond, Burst: cfg.RateLimitBurst},
			groupRead:    {Rate: perSecond * 5, Burst: cfg.RateLimitBurst * 5},
			groupDefault: {Rate: perSecond * 2, Burst: cfg.RateLimitBurst * 2},
		},
	}
}

func rateLimitGroup(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case c.Request.Method == http.MethodPost && strings.HasPrefix(path, "/api/v1/analysis/skin"):
		return groupScan
	case c.Request.Method == http.MethodGet:
		return groupRead
	default:
		return groupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
