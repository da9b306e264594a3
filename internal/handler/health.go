package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"rbx-valuation-api/pkg/response"
)

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves liveness, readiness and status.
type Handler struct {
	service string
	version string
	started time.Time
	checks  []ReadyCheck
}

// New creates a health handler.
func New(service, version string, checks ...ReadyCheck) *Handler {
	return &Handler{service: service, version: version, started: time.Now(), checks: checks}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready handles GET /api/v1/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := []Check{{Name: "api", Status: "ok"}}
	allReady := true
	for _, c := range h.checks {
		check := Check{Name: c.Name, Status: "ok"}
		if err := c.Check(ctx); err != nil {
			check.Status = "error"
			check.Error = err.Error()
			allReady = false
		}
		checks = append(checks, check)
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// StatusResponse is the compact status used by bot monitoring.
type StatusResponse struct {
	Service       string  `json:"service"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryMB      float64 `json:"memory_mb"`
	Goroutines    int     `json:"goroutines"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, StatusResponse{
		Service:       h.service,
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		MemoryMB:      float64(int(memoryMB*100)) / 100,
		Goroutines:    runtime.NumGoroutine(),
	})
}
