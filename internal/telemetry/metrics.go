package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	// Standard HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	PlanBuildsTotal     *prometheus.CounterVec
	OrchestratorState   *prometheus.GaugeVec
	SyncRunsTotal       *prometheus.CounterVec
	SyncItemErrorsTotal prometheus.Counter
	SyncQueueDepth      prometheus.Gauge
	EventsPublished     *prometheus.CounterVec
	WebsocketClients    prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the given registerer.
// Passing nil uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibeboard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibeboard_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.PlanBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibeboard_plan_builds_total",
			Help: "Total number of execution plan builds",
		},
		[]string{"outcome"},
	)

	m.OrchestratorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vibeboard_orchestrator_state",
			Help: "Current orchestrator state per project (1=current state)",
		},
		[]string{"project_id", "state"},
	)

	m.SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibeboard_github_sync_runs_total",
			Help: "Total number of GitHub sync passes",
		},
		[]string{"outcome"},
	)

	m.SyncItemErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vibeboard_github_sync_item_errors_total",
			Help: "Total number of per-item sync failures",
		},
	)

	m.SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibeboard_github_sync_queue_depth",
			Help: "Number of pending queued sync operations",
		},
	)

	m.EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibeboard_orchestrator_events_total",
			Help: "Total number of orchestrator events published",
		},
		[]string{"type"},
	)

	m.WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibeboard_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PlanBuildsTotal,
		m.OrchestratorState,
		m.SyncRunsTotal,
		m.SyncItemErrorsTotal,
		m.SyncQueueDepth,
		m.EventsPublished,
		m.WebsocketClients,
	)

	return m
}

// SetOrchestratorState flips the per-project state gauge so exactly the
// current state reads 1.
func (m *Metrics) SetOrchestratorState(projectID, state string) {
	for _, s := range []string{"idle", "running", "paused", "stopping"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.OrchestratorState.WithLabelValues(projectID, s).Set(v)
	}
}

// Middleware for tracking HTTP requests
func (m *Metrics) RequestTrackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Label with the matched route pattern so path wildcards don't
		// explode cardinality
		path := r.URL.Path
		if p := r.Pattern; p != "" {
			path = p
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, http.StatusText(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter is a wrapper to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
