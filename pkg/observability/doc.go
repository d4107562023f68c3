// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry tracing for docsentry.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("collection_id", id).Info("ACLs synchronized")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordACLUpdate("private", nil, elapsed)
//
// # Health Checks
//
// The HealthChecker serves /healthz (liveness) and /readyz (readiness,
// probing the store, S3 and redis).
//
// # OpenTelemetry
//
// InitOTel wires OTLP trace and metric exporters; individual packages create
// spans through the global tracer provider.
package observability
