// Package telemetry provides application-level observability for the plugin
// marketplace.
//
// All metrics are registered against the default Prometheus registry and are
// served on a side-channel HTTP server started by main.go:
//
//	GET http://<host>:<PMKT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router so the scrape
// path stays off the public ingress.
//
// HTTP metrics use c.FullPath() (route template such as
// /plugins/:author/:plugin) rather than the raw URL to prevent
// unbounded label cardinality from user-supplied path segments such as plugin
// names or version strings.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/plugin-marketplace/plugin-marketplace/internal/safego"
)

// HTTP metrics — labelled by method, route template, and status code.
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

// Upload pipeline metrics.
//
// PluginUploadsTotal has a single "result" label: "accepted" for uploads that
// committed a new version, or the validation/ledger error kind (snake_case,
// e.g. "missing_manifest", "version_not_higher") for rejected ones. Error
// kinds form a small fixed set so cardinality stays bounded.
//
// Example PromQL queries:
//   - Rejection rate (%):  sum(rate(plugin_uploads_total{result!="accepted"}[1h])) / sum(rate(plugin_uploads_total[1h])) * 100
//   - Top failure kinds:   topk(3, sum by (result) (increase(plugin_uploads_total{result!="accepted"}[24h])))
var (
	PluginUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugin_uploads_total",
			Help: "Total number of plugin upload attempts, by result (accepted or error kind).",
		},
		[]string{"result"},
	)

	PluginUploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plugin_upload_duration_seconds",
			Help:    "Duration of the full upload pipeline (validate, extract, ledger commit, index rebuild).",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// PluginDownloadsTotal is a CounterVec with labels {author, plugin} incremented
// whenever a client fetches a stored plugin archive.
var PluginDownloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plugin_downloads_total",
		Help: "Total number of plugin archive downloads, by author and plugin.",
	},
	[]string{"author", "plugin"},
)

// Release index metrics.
//
// IndexRegenerationsTotal counts index rebuilds by result ("ok" / "error").
// Index failures never fail the triggering upload, so an alert on the error
// series is the only way to notice a stale marketplace.json:
//
//	increase(index_regenerations_total{result="error"}[30m]) > 0
//
// IndexPluginCount is a gauge holding the number of entries in the most
// recently written index document.
var (
	IndexRegenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_regenerations_total",
			Help: "Total number of release index regenerations, by result.",
		},
		[]string{"result"},
	)

	IndexPluginCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "index_plugin_count",
			Help: "Number of published plugins in the most recently generated release index.",
		},
	)
)

// DBOpenConnections tracks the number of open connections currently held by the
// sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of
// sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates the DBOpenConnections
// gauge. The goroutine exits cleanly when the database becomes unreachable
// (db.Ping fails), which happens automatically when the application shuts down
// and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go.
func StartDBStatsCollector(db *sql.DB) {
	safego.Go(func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
