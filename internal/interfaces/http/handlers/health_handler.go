package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/pkg/types/common"
)

const (
	readinessTimeout = 5 * time.Second
	detailTimeout    = 10 * time.Second
)

// HealthChecker reports the health of one infrastructure component.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkerFunc struct {
	name  string
	check func(ctx context.Context) error
}

func (c checkerFunc) Name() string                    { return c.name }
func (c checkerFunc) Check(ctx context.Context) error { return c.check(ctx) }

// NewChecker wraps a probe function as a HealthChecker.
func NewChecker(name string, check func(ctx context.Context) error) HealthChecker {
	return checkerFunc{name: name, check: check}
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
}

// NewHealthHandler creates a HealthHandler over the given component
// checkers.
func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
	}
}

// LivenessResponse is the liveness probe reply.
type LivenessResponse struct {
	Status  common.HealthStatus `json:"status"`
	Version string              `json:"version"`
	Uptime  string              `json:"uptime"`
}

// ReadinessResponse is the readiness probe reply.
type ReadinessResponse struct {
	Status     common.HealthStatus      `json:"status"`
	Version    string                   `json:"version,omitempty"`
	Uptime     string                   `json:"uptime,omitempty"`
	Components []common.ComponentHealth `json:"components,omitempty"`
}

// Liveness handles GET /healthz.  It only confirms the process is serving;
// dependencies are not consulted.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  common.HealthUp,
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz.  Every registered component is probed;
// any failure flips the reply to 503.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.checkers) == 0 {
		c.JSON(http.StatusOK, ReadinessResponse{Status: common.HealthUp})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	components, allUp := h.checkAll(ctx)

	resp := ReadinessResponse{Status: common.HealthUp, Components: components}
	status := http.StatusOK
	if !allUp {
		resp.Status = common.HealthDown
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Detail handles GET /healthz/detail: readiness plus version and uptime,
// with a degraded status instead of a hard down.
func (h *HealthHandler) Detail(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), detailTimeout)
	defer cancel()

	components, allUp := h.checkAll(ctx)

	resp := ReadinessResponse{
		Status:     common.HealthUp,
		Version:    h.version,
		Uptime:     time.Since(h.startAt).Truncate(time.Second).String(),
		Components: components,
	}
	status := http.StatusOK
	if !allUp {
		resp.Status = common.HealthDegraded
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// checkAll probes every component concurrently.
func (h *HealthHandler) checkAll(ctx context.Context) ([]common.ComponentHealth, bool) {
	results := make([]common.ComponentHealth, len(h.checkers))
	var wg sync.WaitGroup

	for i, checker := range h.checkers {
		wg.Add(1)
		go func(i int, checker HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := checker.Check(ctx)

			ch := common.ComponentHealth{
				Name:    checker.Name(),
				Status:  common.HealthUp,
				Latency: time.Since(start),
			}
			if err != nil {
				ch.Status = common.HealthDown
				ch.Message = err.Error()
			}
			results[i] = ch
		}(i, checker)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	allUp := true
	for _, r := range results {
		if r.Status != common.HealthUp {
			allUp = false
			break
		}
	}
	return results, allUp
}
