package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger checks database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// RPC checks the Solana RPC endpoints
type RPC interface {
	Health(ctx context.Context) error
	EndpointsHealth() map[string]bool
}

// Checker performs health checks on application dependencies
type Checker struct {
	db       Pinger
	rpc      RPC
	interval time.Duration
	now      func() time.Time

	mu             sync.RWMutex
	lastRunTime    time.Time
	lastRunSuccess bool
}

// NewChecker creates a new health checker. An interval of zero disables the daemon check.
func NewChecker(db Pinger, rpc RPC, interval time.Duration) *Checker {
	return &Checker{
		db:       db,
		rpc:      rpc,
		interval: interval,
		now:      time.Now,
	}
}

// UpdateLastRun updates the timestamp and status of the last sync cycle
func (c *Checker) UpdateLastRun(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRunTime = c.now()
	c.lastRunSuccess = success
}

// CheckStatus represents the health status of a component
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusError    CheckStatus = "error"
)

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    CheckStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckDetail `json:"checks"`
	Uptime    string                 `json:"uptime,omitempty"`
}

// CheckDetail contains details about a specific health check
type CheckDetail struct {
	Status    CheckStatus     `json:"status"`
	Message   string          `json:"message,omitempty"`
	Endpoints map[string]bool `json:"endpoints,omitempty"`
}

var startTime = time.Now()

// Check performs all health checks and returns the aggregated status
func (c *Checker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]CheckDetail)
	overall := StatusOK

	merge := func(name string, detail CheckDetail, errorIsFatal bool) {
		checks[name] = detail
		switch {
		case detail.Status == StatusError && errorIsFatal:
			overall = StatusError
		case detail.Status != StatusOK && overall == StatusOK:
			overall = StatusDegraded
		}
	}

	merge("database", c.checkDatabase(ctx), true)
	merge("rpc_endpoints", c.checkRPC(ctx), true)
	if c.interval > 0 {
		merge("daemon", c.checkDaemon(), false)
	}

	return HealthResponse{
		Status:    overall,
		Timestamp: c.now().UTC(),
		Checks:    checks,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}
}

func (c *Checker) checkDatabase(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		slog.Error("Health check: database ping failed", "error", err)
		return CheckDetail{Status: StatusError, Message: "database unreachable: " + err.Error()}
	}
	return CheckDetail{Status: StatusOK, Message: "database connection healthy"}
}

// checkRPC calls getHealth and reports how many endpoint breakers are closed
func (c *Checker) checkRPC(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	endpoints := c.rpc.EndpointsHealth()
	if err := c.rpc.Health(ctx); err != nil {
		slog.Error("Health check: RPC endpoint failed", "error", err)
		return CheckDetail{
			Status:    StatusError,
			Message:   "RPC endpoint not responding: " + err.Error(),
			Endpoints: endpoints,
		}
	}

	healthy := 0
	for _, ok := range endpoints {
		if ok {
			healthy++
		}
	}
	if healthy == len(endpoints) {
		return CheckDetail{Status: StatusOK, Message: "all RPC endpoints healthy", Endpoints: endpoints}
	}
	return CheckDetail{
		Status:    StatusDegraded,
		Message:   fmt.Sprintf("%d/%d RPC endpoints healthy", healthy, len(endpoints)),
		Endpoints: endpoints,
	}
}

// checkDaemon verifies sync cycles run on schedule, allowing twice the interval as grace
func (c *Checker) checkDaemon() CheckDetail {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastRunTime.IsZero() {
		return CheckDetail{Status: StatusOK, Message: "daemon not yet executed (startup)"}
	}
	if !c.lastRunSuccess {
		return CheckDetail{Status: StatusDegraded, Message: "last execution failed"}
	}

	since := c.now().Sub(c.lastRunTime)
	if since > 2*c.interval {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("no execution in %s (expected every %s)", since.Round(time.Second), c.interval),
		}
	}
	return CheckDetail{Status: StatusOK, Message: fmt.Sprintf("last executed %s ago", since.Round(time.Second))}
}

// Handler serves the aggregated health status; 503 when a fatal check fails
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Check(r.Context())

		code := http.StatusOK
		if status.Status == StatusError {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Error("Failed to encode health response", "error", err)
		}
	}
}

// Router mounts the health endpoint
func (c *Checker) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", c.Handler())
	return r
}
