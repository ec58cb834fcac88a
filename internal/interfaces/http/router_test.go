package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/prometheus"
	"github.com/spanmark/spanmark/internal/interfaces/http/handlers"
	"github.com/spanmark/spanmark/internal/interfaces/http/middleware"
	"github.com/spanmark/spanmark/pkg/errors"
)

// fullRouterConfig wires every handler.  Handlers are never invoked by the
// route-table assertions, so nil services are fine.
func fullRouterConfig() RouterConfig {
	return RouterConfig{
		Documents:   handlers.NewDocumentHandler(nil),
		Annotations: handlers.NewAnnotationHandler(nil),
		Datasets:    handlers.NewDatasetHandler(nil),
		Jobs:        handlers.NewJobHandler(nil),
		Search:      handlers.NewSearchHandler(nil),
		Health:      handlers.NewHealthHandler("0.0.0-test"),
		Mode:        gin.TestMode,
	}
}

func routeSet(r *gin.Engine) map[string]bool {
	set := make(map[string]bool)
	for _, rt := range r.Routes() {
		set[rt.Method+" "+rt.Path] = true
	}
	return set
}

func TestNewRouter_RegistersFullRouteTree(t *testing.T) {
	routes := routeSet(NewRouter(fullRouterConfig()))

	expected := []string{
		"GET /healthz",
		"GET /healthz/detail",
		"GET /readyz",

		"POST /api/v1/documents",
		"GET /api/v1/documents",
		"GET /api/v1/documents/:documentID",
		"DELETE /api/v1/documents/:documentID",
		"GET /api/v1/documents/:documentID/chunks",
		"POST /api/v1/documents/:documentID/annotate",
		"POST /api/v1/documents/:documentID/undo",
		"POST /api/v1/documents/:documentID/entities",
		"PUT /api/v1/documents/:documentID/entities/:entityID",
		"DELETE /api/v1/documents/:documentID/entities/:entityID",
		"POST /api/v1/documents/:documentID/relations",
		"DELETE /api/v1/documents/:documentID/relations/:relationID",

		"POST /api/v1/datasets/export",
		"POST /api/v1/datasets/split",
		"POST /api/v1/datasets/build-raw",
		"POST /api/v1/datasets/import",
		"POST /api/v1/datasets/publish",

		"POST /api/v1/jobs",
		"GET /api/v1/jobs",
		"GET /api/v1/jobs/:jobID",
		"POST /api/v1/jobs/:jobID/cancel",

		"GET /api/v1/search/entities",
		"POST /api/v1/search/reindex",
	}

	for _, want := range expected {
		assert.True(t, routes[want], "route %s should be registered", want)
	}
}

func TestNewRouter_NilHandlersLeaveRoutesOut(t *testing.T) {
	cfg := RouterConfig{
		Health: handlers.NewHealthHandler("0.0.0-test"),
		Mode:   gin.TestMode,
	}

	var r *gin.Engine
	require.NotPanics(t, func() { r = NewRouter(cfg) })

	for route := range routeSet(r) {
		assert.NotContains(t, route, "/api/v1", "no API routes expected without handlers")
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, errors.ErrCodeNotFound.String(), body.Error.Code)
	assert.NotEmpty(t, body.RequestID, "404 replies still carry a request id")
}

func TestNewRouter_HealthEndpointsServe(t *testing.T) {
	r := NewRouter(fullRouterConfig())

	for _, path := range []string{"/healthz", "/healthz/detail", "/readyz"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "GET %s", path)
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "spanmark"}, nil)
	require.NoError(t, err)

	cfg := fullRouterConfig()
	cfg.Metrics = collector
	cfg.AppMetrics = prometheus.NewAppMetrics(collector)
	r := NewRouter(cfg)

	// A first request gives the middleware something to record.
	warm := httptest.NewRecorder()
	r.ServeHTTP(warm, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, warm.Code)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spanmark_http_requests_total")
}

func TestNewRouter_RequestIDHeader(t *testing.T) {
	r := NewRouter(fullRouterConfig())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.HeaderRequestID, "router-req-1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "router-req-1", rec.Header().Get(middleware.HeaderRequestID))
}

func TestNewRouter_CORSConfigured(t *testing.T) {
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = []string{"*"}

	cfg := fullRouterConfig()
	cfg.CORS = &corsCfg
	r := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_RateLimitConfigured(t *testing.T) {
	cfg := fullRouterConfig()
	cfg.RateLimit = &middleware.RateLimitConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		KeyFunc:           func(*gin.Context) string { return "fixed" },
	}
	r := NewRouter(cfg)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestNewRouter_DefaultsToReleaseMode(t *testing.T) {
	NewRouter(RouterConfig{})
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}
