// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package metrics holds the Prometheus collectors for TableSnap. All
// collectors register with the default registry through promauto and are
// served by promhttp on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup job metrics
	BackupJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_jobs_total",
			Help: "Backup jobs by terminal status",
		},
		[]string{"status"}, // "completed", "skipped", "failed"
	)

	BackupJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backup_job_duration_seconds",
			Help:    "Wall time of backup jobs from start to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	BackupActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_active_jobs",
			Help: "Backup jobs currently running or uploading",
		},
	)

	BackupArchiveBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_archive_size_bytes",
			Help: "Size of the most recently produced compressed archive",
		},
	)

	BackupDedupSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backup_dedup_skips_total",
			Help: "Uploads skipped because the newest remote archive had the same checksum",
		},
	)

	// Export metrics
	ExportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_export_rows_total",
			Help: "Records written to archives per table",
		},
		[]string{"table"},
	)

	ExportTableFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_export_table_failures_total",
			Help: "Tables degraded to an empty array because reading them failed",
		},
		[]string{"table"},
	)

	// Remote store metrics
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_requests_total",
			Help: "Remote store calls by operation and outcome",
		},
		[]string{"operation", "result"}, // result: "success", "error"
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_request_duration_seconds",
			Help:    "Duration of remote store calls including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RemoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_retries_total",
			Help: "Retries of remote store calls by classified reason",
		},
		[]string{"operation", "reason"},
	)

	RemoteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_errors_total",
			Help: "Classified remote store errors by HTTP code and reason",
		},
		[]string{"code", "reason"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIStreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_stream_subscribers",
			Help: "Open SSE and WebSocket job event streams",
		},
	)
)

// RecordJobFinished records a terminal job outcome.
func RecordJobFinished(status string, duration time.Duration) {
	BackupJobsTotal.WithLabelValues(status).Inc()
	BackupJobDuration.Observe(duration.Seconds())
}

// RecordRemoteCall records one logical remote call.
func RecordRemoteCall(operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	RemoteRequestsTotal.WithLabelValues(operation, result).Inc()
	RemoteRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRemoteError records a classified remote failure.
func RecordRemoteError(code int, reason string) {
	RemoteErrorsTotal.WithLabelValues(strconv.Itoa(code), reason).Inc()
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
