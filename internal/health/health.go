// Package health provides liveness, readiness and dependency health endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// ServiceStatus represents the status of a single dependency
type ServiceStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the structured health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
	Version   string                   `json:"version,omitempty"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Ready     bool   `json:"ready"`
	Timestamp string `json:"timestamp"`
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Alive     bool   `json:"alive"`
	Timestamp string `json:"timestamp"`
}

// Check pings one dependency
type Check func(ctx context.Context) error

// Handler handles health check requests
type Handler struct {
	checks   map[string]Check
	critical map[string]bool
	version  string
	timeout  time.Duration
	ready    bool
	mu       sync.RWMutex
}

// Config holds health handler configuration. Nil clients are skipped.
type Config struct {
	DBPool      *pgxpool.Pool
	SkillDB     *sqlx.DB
	RedisClient *redis.Client
	Version     string
	Timeout     time.Duration // default: 5 seconds
}

// NewHandler creates a new health check handler
func NewHandler(cfg Config) *Handler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	h := &Handler{
		checks:   make(map[string]Check),
		critical: make(map[string]bool),
		version:  cfg.Version,
		timeout:  cfg.Timeout,
		ready:    true,
	}

	if cfg.DBPool != nil {
		h.Register("database", true, cfg.DBPool.Ping)
	}
	if cfg.SkillDB != nil {
		h.Register("skill_ledger", false, cfg.SkillDB.PingContext)
	}
	if cfg.RedisClient != nil {
		h.Register("redis", true, func(ctx context.Context) error {
			return cfg.RedisClient.Ping(ctx).Err()
		})
	}
	return h
}

// Register adds a named check. Critical checks gate readiness.
func (h *Handler) Register(name string, critical bool, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	h.critical[name] = critical
}

// SetReady sets the readiness state, cleared during graceful shutdown
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the current readiness state
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Health reports every dependency; any failure degrades the service
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services := h.runChecks(ctx, false)
	overallStatus := "healthy"
	for _, s := range services {
		if s.Status != "up" {
			overallStatus = "degraded"
		}
	}

	status := http.StatusOK
	if overallStatus != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		Version:   h.version,
	})
}

// Readiness reports whether the service should receive traffic
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ready := h.IsReady()
	if ready {
		for _, s := range h.runChecks(ctx, true) {
			if s.Status != "up" {
				ready = false
			}
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ReadinessResponse{
		Ready:     ready,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Liveness always answers while the process is serving
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Alive:     true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// runChecks pings dependencies concurrently, optionally only critical ones
func (h *Handler) runChecks(ctx context.Context, criticalOnly bool) map[string]ServiceStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		if !criticalOnly || h.critical[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = h.checks[name]
	}
	h.mu.RUnlock()

	statuses := make([]ServiceStatus, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = ping(ctx, checks[i])
		}()
	}
	wg.Wait()

	result := make(map[string]ServiceStatus, len(names))
	for i, name := range names {
		result[name] = statuses[i]
	}
	return result
}

func ping(ctx context.Context, check Check) ServiceStatus {
	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)

	if err != nil {
		return ServiceStatus{
			Status:  "down",
			Latency: latency.String(),
			Error:   err.Error(),
		}
	}
	return ServiceStatus{
		Status:  "up",
		Latency: latency.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
