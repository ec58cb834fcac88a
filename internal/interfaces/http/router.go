// Package http assembles the REST API: the gin engine, the middleware
// chain, and the route tree under /api/v1, plus the probe and metrics
// endpoints outside it.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/prometheus"
	"github.com/spanmark/spanmark/internal/interfaces/http/handlers"
	"github.com/spanmark/spanmark/internal/interfaces/http/middleware"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// RouterConfig aggregates the handlers and middleware that make up the
// route tree.  Nil handlers leave their routes unregistered, so a partial
// deployment (for example no object storage, hence no dataset publishing)
// still serves everything else.
type RouterConfig struct {
	// Handlers
	Documents   *handlers.DocumentHandler
	Annotations *handlers.AnnotationHandler
	Datasets    *handlers.DatasetHandler
	Jobs        *handlers.JobHandler
	Search      *handlers.SearchHandler
	Health      *handlers.HealthHandler

	// Middleware configuration.  Logging falls back to the defaults; CORS
	// and rate limiting are off unless configured.
	Logging   *middleware.LoggingConfig
	CORS      *middleware.CORSConfig
	RateLimit *middleware.RateLimitConfig

	// Infrastructure
	Logger     logging.Logger
	Metrics    prometheus.MetricsCollector
	AppMetrics *prometheus.AppMetrics

	// Mode selects the gin mode: debug, release, or test.  Empty means
	// release.
	Mode string
}

// NewRouter constructs the engine with the full middleware chain and every
// configured route group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	// Request ID first so recovery and logging can tag their output.
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(cfg.Logger))

	logCfg := middleware.DefaultLoggingConfig()
	if cfg.Logging != nil {
		logCfg = *cfg.Logging
	}
	r.Use(middleware.RequestLogging(cfg.Logger, logCfg))

	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.RateLimit != nil {
		limiter := middleware.NewTokenBucketLimiter(
			cfg.RateLimit.RequestsPerSecond,
			cfg.RateLimit.BurstSize,
			cfg.RateLimit.CleanupInterval,
		)
		r.Use(middleware.RateLimit(limiter, *cfg.RateLimit))
	}
	if cfg.AppMetrics != nil {
		r.Use(middleware.Metrics(cfg.AppMetrics))
	}

	registerHealthRoutes(r, cfg.Health)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	registerDocumentRoutes(v1, cfg.Documents, cfg.Annotations)
	registerDatasetRoutes(v1, cfg.Datasets)
	registerJobRoutes(v1, cfg.Jobs)
	registerSearchRoutes(v1, cfg.Search)

	r.NoRoute(func(c *gin.Context) {
		resp := common.NewErrorResponse(errors.ErrCodeNotFound.String(), "route not found")
		resp.RequestID = middleware.RequestIDFrom(c)
		c.JSON(http.StatusNotFound, resp)
	})

	return r
}

func registerHealthRoutes(r *gin.Engine, h *handlers.HealthHandler) {
	if h == nil {
		return
	}
	r.GET("/healthz", h.Liveness)
	r.GET("/healthz/detail", h.Detail)
	r.GET("/readyz", h.Readiness)
}

func registerDocumentRoutes(g *gin.RouterGroup, docs *handlers.DocumentHandler, anns *handlers.AnnotationHandler) {
	if docs != nil {
		g.POST("/documents", docs.Import)
		g.GET("/documents", docs.List)
		g.GET("/documents/:documentID", docs.Get)
		g.DELETE("/documents/:documentID", docs.Delete)
		g.GET("/documents/:documentID/chunks", docs.Chunks)
	}
	if anns != nil {
		g.POST("/documents/:documentID/annotate", anns.AutoAnnotate)
		g.POST("/documents/:documentID/undo", anns.Undo)
		g.POST("/documents/:documentID/entities", anns.AddEntity)
		g.PUT("/documents/:documentID/entities/:entityID", anns.UpdateEntity)
		g.DELETE("/documents/:documentID/entities/:entityID", anns.DeleteEntity)
		g.POST("/documents/:documentID/relations", anns.AddRelation)
		g.DELETE("/documents/:documentID/relations/:relationID", anns.DeleteRelation)
	}
}

func registerDatasetRoutes(g *gin.RouterGroup, h *handlers.DatasetHandler) {
	if h == nil {
		return
	}
	g.POST("/datasets/export", h.Export)
	g.POST("/datasets/split", h.Split)
	g.POST("/datasets/build-raw", h.BuildRaw)
	g.POST("/datasets/import", h.Import)
	g.POST("/datasets/publish", h.Publish)
}

func registerJobRoutes(g *gin.RouterGroup, h *handlers.JobHandler) {
	if h == nil {
		return
	}
	g.POST("/jobs", h.Submit)
	g.GET("/jobs", h.List)
	g.GET("/jobs/:jobID", h.Get)
	g.POST("/jobs/:jobID/cancel", h.Cancel)
}

func registerSearchRoutes(g *gin.RouterGroup, h *handlers.SearchHandler) {
	if h == nil {
		return
	}
	g.GET("/search/entities", h.Entities)
	g.POST("/search/reindex", h.Reindex)
}
