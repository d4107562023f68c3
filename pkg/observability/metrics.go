package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Event dispatch metrics
	EventsReceivedTotal *prometheus.CounterVec
	HandlerDuration     *prometheus.HistogramVec
	HandlerSkipsTotal   *prometheus.CounterVec
	HandlerErrorsTotal  *prometheus.CounterVec

	// ACL metrics
	ACLUpdatesTotal   *prometheus.CounterVec
	ACLUpdateDuration *prometheus.HistogramVec

	// Frontend cache purge metrics
	PurgeRequestsTotal   *prometheus.CounterVec
	PurgeRequestDuration *prometheus.HistogramVec

	// Visibility cache metrics
	VisibilityCacheHitsTotal   *prometheus.CounterVec
	VisibilityCacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Reconciler metrics
	ReconcileSweepsTotal    *prometheus.CounterVec
	ReconcileSweepDuration  prometheus.Histogram
	ReconcileDocumentsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docsentry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		EventsReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_events_received_total",
				Help: "Total number of save events received",
			},
			[]string{"event_type"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docsentry_handler_duration_seconds",
				Help:    "Save-event handler duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		HandlerSkipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_handler_skips_total",
				Help: "Total number of handler invocations skipped by a configuration gate",
			},
			[]string{"handler", "gate"},
		),
		HandlerErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_handler_errors_total",
				Help: "Total number of handler errors",
			},
			[]string{"handler"},
		),

		ACLUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_acl_updates_total",
				Help: "Total number of S3 object ACL writes",
			},
			[]string{"acl", "status"},
		),
		ACLUpdateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docsentry_acl_update_duration_seconds",
				Help:    "S3 ACL write duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"acl"},
		),

		PurgeRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_purge_requests_total",
				Help: "Total number of frontend cache purge requests",
			},
			[]string{"backend", "status"},
		),
		PurgeRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docsentry_purge_request_duration_seconds",
				Help:    "Frontend cache purge request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"backend"},
		),

		VisibilityCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_visibility_cache_hits_total",
				Help: "Total number of visibility cache hits",
			},
			[]string{"tier"},
		),
		VisibilityCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_visibility_cache_misses_total",
				Help: "Total number of visibility cache misses",
			},
			[]string{"tier"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docsentry_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docsentry_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		ReconcileSweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_reconcile_sweeps_total",
				Help: "Total number of reconciliation sweeps",
			},
			[]string{"status"},
		),
		ReconcileSweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docsentry_reconcile_sweep_duration_seconds",
				Help:    "Reconciliation sweep duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
		ReconcileDocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsentry_reconcile_documents_total",
				Help: "Total number of documents examined by the reconciler",
			},
			[]string{"status"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsReceivedTotal,
		m.HandlerDuration,
		m.HandlerSkipsTotal,
		m.HandlerErrorsTotal,
		m.ACLUpdatesTotal,
		m.ACLUpdateDuration,
		m.PurgeRequestsTotal,
		m.PurgeRequestDuration,
		m.VisibilityCacheHitsTotal,
		m.VisibilityCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.ReconcileSweepsTotal,
		m.ReconcileSweepDuration,
		m.ReconcileDocumentsTotal,
	)

	return m
}

// MetricsHandler returns an HTTP handler for the metrics endpoint
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordACLUpdate records a single S3 ACL write.
func (m *Metrics) RecordACLUpdate(acl string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ACLUpdatesTotal.WithLabelValues(acl, status).Inc()
	m.ACLUpdateDuration.WithLabelValues(acl).Observe(duration.Seconds())
}

// RecordPurgeRequest records a single frontend cache purge request.
func (m *Metrics) RecordPurgeRequest(backend string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.PurgeRequestsTotal.WithLabelValues(backend, status).Inc()
	m.PurgeRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// UpdateDBMetrics updates database connection pool gauges.
func (m *Metrics) UpdateDBMetrics(active, idle int) {
	m.DBConnectionsActive.Set(float64(active))
	m.DBConnectionsIdle.Set(float64(idle))
}
