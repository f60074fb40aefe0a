package health

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// GraphPinger verifies taxonomy graph connectivity.
type GraphPinger interface {
	VerifyConnectivity(ctx context.Context) error
}

// Checker serves the health, liveness and readiness endpoints. The graph is
// a soft dependency: matching degrades to exact-category scoring without
// it, so a graph outage reports degraded rather than unhealthy.
type Checker struct {
	db        *sqlx.DB
	graph     GraphPinger
	version   string
	startTime time.Time
	ready     atomic.Bool
}

func NewChecker(db *sqlx.DB, graph GraphPinger, version string) *Checker {
	return &Checker{
		db:        db,
		graph:     graph,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady flips the readiness gate. Startup sets it once dependencies are
// up; shutdown clears it before draining.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// HealthStatus is the aggregate health response. Status is "healthy",
// "degraded" or "unhealthy".
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult is one dependency's probe outcome.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

func runCheck(probe func() error) *CheckResult {
	start := time.Now()
	if err := probe(); err != nil {
		return &CheckResult{Status: "unhealthy", Message: err.Error()}
	}
	return &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
}

// Health probes the hard and soft dependencies and reports the blended
// status. Only an unhealthy result returns 503.
func (c *Checker) Health(ctx echo.Context) error {
	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now(),
	}

	dbCheck := runCheck(func() error {
		if c.db == nil {
			return fmt.Errorf("database not configured")
		}
		return c.db.Ping()
	})
	status.Checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		status.Status = "unhealthy"
	}

	if c.graph != nil {
		graphCheck := runCheck(func() error {
			return c.graph.VerifyConnectivity(ctx.Request().Context())
		})
		status.Checks["graph"] = graphCheck
		if graphCheck.Status != "healthy" && status.Status == "healthy" {
			status.Status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	return ctx.JSON(httpStatus, status)
}

// Live reports that the process is running.
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready reports whether the service is accepting traffic.
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
