package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/prometheus"
)

func newMetricsFixture(t *testing.T) (prometheus.MetricsCollector, *gin.Engine) {
	t.Helper()

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "spanmark"}, nil)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(prometheus.NewAppMetrics(collector)))
	r.GET("/things/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return collector, r
}

func scrape(t *testing.T, collector prometheus.MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_RecordsPerRouteSeries(t *testing.T) {
	collector, r := newMetricsFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := scrape(t, collector)

	// The route template, not the raw path, keys the series.
	assert.Contains(t, body, `spanmark_http_requests_total{method="GET",path="/things/:id",status_code="200"} 1`)
	assert.Contains(t, body, `spanmark_http_request_duration_seconds_count{method="GET",path="/things/:id"} 1`)
	assert.Contains(t, body, `spanmark_http_active_requests{method="GET"} 0`)
	assert.NotContains(t, body, "/things/42")
}

func TestMetrics_UnmatchedRequestsShareOneLabel(t *testing.T) {
	collector, r := newMetricsFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := scrape(t, collector)
	assert.Contains(t, body, `spanmark_http_requests_total{method="GET",path="unmatched",status_code="404"} 1`)
}

func TestMetrics_NilAppMetricsPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}
