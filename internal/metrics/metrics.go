// Package metrics provides Prometheus metrics for the registry API
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "colancer"

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks current in-flight requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

var (
	// DBConnectionsOpen tracks open database connections by pool
	DBConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"pool"},
	)

	// DBConnectionsInUse tracks database connections currently in use by pool
	DBConnectionsInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections_in_use",
			Help:      "Number of database connections currently in use",
		},
		[]string{"pool"},
	)

	// DBConnectionsIdle tracks idle database connections by pool
	DBConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"pool"},
	)
)

// Allocation outcomes
const (
	OutcomeAllocated   = "allocated"
	OutcomeExhausted   = "exhausted"
	OutcomeUnavailable = "oracle_unavailable"
	OutcomeInvalid     = "invalid_input"
	OutcomeCancelled   = "cancelled"
)

var (
	// AllocationsTotal counts name allocations by outcome
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "naming",
			Name:      "allocations_total",
			Help:      "Total number of name allocations by outcome",
		},
		[]string{"outcome"},
	)

	// AllocationAttempts observes how many candidates a successful allocation probed
	AllocationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "naming",
			Name:      "allocation_attempts",
			Help:      "Number of candidates probed per successful allocation",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 20},
		},
	)

	// RegistrationsTotal counts registration requests by result code
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Total number of registration requests by result",
		},
		[]string{"result"},
	)

	// SkillVerificationsTotal counts skill verifications by result
	SkillVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "skills",
			Name:      "verifications_total",
			Help:      "Total number of skill verifications by result",
		},
		[]string{"result"},
	)

	// AvatarOrphansDeleted counts avatar objects removed because no subdomain references them
	AvatarOrphansDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "avatar_orphans_deleted_total",
			Help:      "Total number of unreferenced avatar objects deleted",
		},
	)
)

// ObserveAllocation records the outcome of a single allocation
func ObserveAllocation(outcome string, attempts int) {
	AllocationsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeAllocated && attempts > 0 {
		AllocationAttempts.Observe(float64(attempts))
	}
}

// statusRecorder captures the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a chi middleware that records HTTP metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Resolve after routing so the pattern is populated
		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the chi route pattern, or "unmatched" so raw paths
// never become label values
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
