package prometheus

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	cfg := CollectorConfig{
		Namespace: "test",
		Subsystem: "unit",
	}
	c, err := NewMetricsCollector(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewMetricsCollector_ValidConfig(t *testing.T) {
	assert.NotNil(t, newTestCollector(t))
}

func TestNewMetricsCollector_EmptyNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestNewMetricsCollector_WithProcessMetrics(t *testing.T) {
	cfg := CollectorConfig{
		Namespace:            "test",
		EnableProcessMetrics: true,
	}
	c, err := NewMetricsCollector(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t, c), "process_cpu_seconds_total")
}

func TestRegisterCounter_IncrementAndScrape(t *testing.T) {
	c := newTestCollector(t)
	vec := c.RegisterCounter("ops_total", "Operations", "kind")
	vec.WithLabelValues("merge").Inc()
	vec.WithLabelValues("merge").Add(4)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_ops_total{kind="merge"} 5`)
}

func TestRegisterCounter_DuplicateReturnsSameVec(t *testing.T) {
	c := newTestCollector(t)
	a := c.RegisterCounter("dup_total", "Dup", "kind")
	b := c.RegisterCounter("dup_total", "Dup", "kind")
	a.WithLabelValues("x").Inc()
	b.WithLabelValues("x").Inc()

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_dup_total{kind="x"} 2`)
}

func TestRegister_TypeMismatchFallsBackToNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("mixed", "As counter")

	// Same name as a gauge: the registered counter wins, the caller gets a
	// no-op gauge instead of a panic.
	g := c.RegisterGauge("mixed", "As gauge")
	assert.NotPanics(t, func() { g.WithLabelValues().Set(42) })
}

func TestRegisterGauge_SetAndScrape(t *testing.T) {
	c := newTestCollector(t)
	vec := c.RegisterGauge("depth", "Queue depth", "queue")
	vec.WithLabelValues("jobs").Set(7)
	vec.WithLabelValues("jobs").Dec()

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_depth{queue="jobs"} 6`)
}

func TestRegisterHistogram_ObserveAndScrape(t *testing.T) {
	c := newTestCollector(t)
	vec := c.RegisterHistogram("latency_seconds", "Latency", []float64{0.1, 1}, "op")
	vec.WithLabelValues("export").Observe(0.05)
	vec.WithLabelValues("export").Observe(0.5)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_latency_seconds_bucket{op="export",le="0.1"} 1`)
	assert.Contains(t, out, `test_unit_latency_seconds_count{op="export"} 2`)
}

func TestRegister_ConcurrentSameName(t *testing.T) {
	c := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RegisterCounter("race_total", "Race", "k").WithLabelValues("a").Inc()
		}()
	}
	wg.Wait()

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_race_total{k="a"} 16`)
}

func TestTimer_ObservesDuration(t *testing.T) {
	c := newTestCollector(t)
	vec := c.RegisterHistogram("timed_seconds", "Timed", []float64{10}, "op")

	timer := NewTimer(vec.WithLabelValues("run"))
	timer.ObserveDuration()

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_timed_seconds_count{op="run"} 1`)
}

func TestTimer_NilHistogram(t *testing.T) {
	timer := NewTimer(nil)
	assert.NotPanics(t, timer.ObserveDuration)
}
