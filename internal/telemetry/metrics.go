// Package telemetry provides application-level observability for the admin panel.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served
// by the side-channel HTTP server started by cmd/server:
//
//	GET http(s)://<host>:<DPC_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Registration transitions (enable, update, disable) by environment and outcome
//   - User directory updates and CSV exports
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// The path label holds the Gin route template (e.g. /internal/users/:id), not the
// raw URL, so user-supplied ids do not blow up cardinality.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// RegistrationTransitionsTotal counts registered organization writes.
//
// Labels: api_env (sandbox, production), action (enable, update, disable),
// outcome (success, invalid, error).
//
// Example PromQL:
//   - Production grants per day:  increase(registration_transitions_total{api_env="production",action="enable",outcome="success"}[1d])
var RegistrationTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registration_transitions_total",
		Help: "Total number of registered organization transitions, by environment, action, and outcome.",
	},
	[]string{"api_env", "action", "outcome"},
)

// User directory metrics.
//
// UserUpdatesTotal has a single outcome label (success, invalid, error).
// UserExportsTotal has a trigger label (download, scheduled, cli).
// UserExportRows records the row count of the most recent export.
var (
	UserUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_updates_total",
			Help: "Total number of staff edits to user records, by outcome.",
		},
		[]string{"outcome"},
	)

	UserExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_exports_total",
			Help: "Total number of user CSV exports generated, by trigger.",
		},
		[]string{"trigger"},
	)

	UserExportRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "user_export_rows",
			Help: "Number of user rows in the most recent CSV export.",
		},
	)
)

// EventsPublishedTotal counts domain events handed to the configured broker.
// Labels: backend (nats, kafka), outcome (success, error).
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of registration events published, by backend and outcome.",
	},
	[]string{"backend", "outcome"},
)

// RateLimitRejectionsTotal counts requests refused with 429.
// Labels: scope (auth, internal), backend (memory, redis).
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by scope and backend.",
	},
	[]string{"scope", "backend"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens once the
// application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
