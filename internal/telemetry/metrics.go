// Package telemetry provides application-level observability for the inventory backend.
//
// All metrics are registered against the default Prometheus registry and served on a
// side-channel HTTP server started by main.go (default port 9090, path GET /metrics).
// The endpoint is deliberately not part of the Gin router so it stays off the public
// ingress and outside the rate-limiting middleware.
//
// HTTP metrics are labelled by c.FullPath() (route template such as
// /api/audit/details/:id), not the raw URL, to prevent unbounded label cardinality
// from user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route template, and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration is a latency histogram by method and route template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// AuditWritesTotal counts audit entries persisted, by action.
	AuditWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Total number of audit log entries persisted, by action.",
		},
		[]string{"action"},
	)

	// AuditWriteFailuresTotal counts audit writes that were dropped.
	//
	// Audit persistence is best-effort: a failed write never aborts the business
	// operation that triggered it, so this counter is the only place those gaps
	// become visible. Alert on any nonzero rate.
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit log writes that failed and were dropped.",
		},
	)

	// AuditRevertsTotal counts revert attempts, by outcome (success / failure).
	AuditRevertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_reverts_total",
			Help: "Total number of audit revert attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	// AuditExportsTotal counts export requests, by format.
	AuditExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_exports_total",
			Help: "Total number of audit log exports, by format.",
		},
		[]string{"format"},
	)

	// RateLimitDenialsTotal counts requests rejected by the rate limiter, by profile.
	RateLimitDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_denials_total",
			Help: "Total number of requests denied by the rate limiter, by limiter profile.",
		},
		[]string{"profile"},
	)

	// DBConnectionsInUse gauges open connections in the database pool.
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use.",
		},
	)
)

// PollDBStats samples database pool statistics every interval until stop is
// closed. Run it in a background goroutine from main.
func PollDBStats(db *sql.DB, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := db.Stats()
			DBConnectionsInUse.Set(float64(stats.InUse))
		case <-stop:
			return
		}
	}
}

// LogAndCountAuditFailure records a dropped audit write in both the structured
// log and the failure counter so silent audit gaps can be detected operationally.
func LogAndCountAuditFailure(action, entityType string, err error) {
	AuditWriteFailuresTotal.Inc()
	slog.Warn("audit write dropped",
		"action", action,
		"entity_type", entityType,
		"error", err,
	)
}
