// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package metrics holds the Prometheus instrumentation of rdiffgate.
//
// Metrics are registered on the default registry at package init and
// exposed at /metrics by the HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// Restore Metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiffgate_restores_total",
			Help: "Total number of restore streams by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	RestoreBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiffgate_restore_bytes_total",
			Help: "Bytes written to restore streams",
		},
		[]string{"kind"},
	)

	RestoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdiffgate_restore_duration_seconds",
			Help:    "Wall time of restore streams",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
		},
		[]string{"kind"},
	)

	ActiveRestores = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rdiffgate_active_restores",
			Help: "Restore streams currently running",
		},
	)

	// Retention Metrics
	PrunesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiffgate_prunes_total",
			Help: "Total number of repository prune runs by outcome",
		},
		[]string{"status"},
	)

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiffgate_notifications_total",
			Help: "Emails sent by template and outcome",
		},
		[]string{"kind", "status"},
	)

	SMTPCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rdiffgate_smtp_circuit_state",
			Help: "SMTP circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Job Metrics
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiffgate_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdiffgate_job_duration_seconds",
			Help:    "Duration of scheduled job runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"job"},
	)

	DiscoveredRepos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rdiffgate_discovered_repos",
			Help: "Repositories known after the last discovery run",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiffgate_api_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdiffgate_api_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// RecordRestore records a finished restore stream.
func RecordRestore(kind string, bytes int64, duration time.Duration, err error) {
	RestoresTotal.WithLabelValues(kind, status(err)).Inc()
	RestoreBytes.WithLabelValues(kind).Add(float64(bytes))
	RestoreDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPrune records one repository prune.
func RecordPrune(err error) {
	PrunesTotal.WithLabelValues(status(err)).Inc()
}

// RecordNotification records one email delivery attempt.
func RecordNotification(kind string, err error) {
	NotificationsTotal.WithLabelValues(kind, status(err)).Inc()
}

// RecordJobRun records a scheduled job run.
func RecordJobRun(job string, duration time.Duration, err error) {
	JobRunsTotal.WithLabelValues(job, status(err)).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route, code string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, code).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
