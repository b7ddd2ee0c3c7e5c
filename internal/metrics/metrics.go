// Package metrics provides Prometheus metrics for the KPI service and its export workers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nadmax/opskpi/internal/repository/models"
)

const (
	OutcomeOK             = "ok"
	OutcomeMissingColumns = "missing_columns"
	OutcomeError          = "error"
)

var (
	Computations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_computations_total",
			Help: "Total number of KPI computations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	ComputationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opskpi_computation_duration_seconds",
			Help:    "KPI computation duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
	RowsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_rows_ingested_total",
			Help: "Uploaded rows by dataset and fate",
		},
		[]string{"dataset", "outcome"},
	)
	ExportsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_exports_enqueued_total",
			Help: "Total number of export jobs enqueued",
		},
		[]string{"report", "format"},
	)
	ExportsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_exports_completed_total",
			Help: "Total number of export jobs completed successfully",
		},
		[]string{"report"},
	)
	ExportsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_exports_failed_total",
			Help: "Total number of export jobs that exhausted their retries",
		},
		[]string{"report"},
	)
	ExportsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_exports_retried_total",
			Help: "Total number of export job retries",
		},
		[]string{"report"},
	)
	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opskpi_export_duration_seconds",
			Help:    "Export job execution duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"report", "status"},
	)
	ExportWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opskpi_export_wait_time_seconds",
			Help:    "Time export jobs spend waiting in queue before execution",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
		[]string{"report"},
	)
	ExportsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opskpi_exports",
			Help: "Current number of stored export jobs by status",
		},
		[]string{"status"},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opskpi_export_queue_depth",
			Help: "Current depth of the export queue",
		},
	)
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opskpi_workers_active",
			Help: "Number of currently active export workers",
		},
	)
	RulesReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_rules_reloads_total",
			Help: "KPI rule reloads triggered by config file changes",
		},
		[]string{"outcome"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opskpi_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opskpi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordComputation(operation, outcome string, duration time.Duration) {
	Computations.WithLabelValues(operation, outcome).Inc()
	ComputationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordIngest(dataset models.Dataset, stats models.DedupStats, quarantined int) {
	ds := string(dataset)
	RowsIngested.WithLabelValues(ds, "inserted").Add(float64(stats.Inserted))
	RowsIngested.WithLabelValues(ds, "duplicate").Add(float64(stats.Duplicates))
	RowsIngested.WithLabelValues(ds, "filtered").Add(float64(stats.Filtered))
	RowsIngested.WithLabelValues(ds, "quarantined").Add(float64(quarantined))
}

func RecordExportEnqueued(report, format string) {
	ExportsEnqueued.WithLabelValues(report, format).Inc()
}

func RecordExportCompleted(report string, duration time.Duration) {
	ExportsCompleted.WithLabelValues(report).Inc()
	ExportDuration.WithLabelValues(report, "completed").Observe(duration.Seconds())
}

func RecordExportFailed(report string, duration time.Duration) {
	ExportsFailed.WithLabelValues(report).Inc()
	ExportDuration.WithLabelValues(report, "failed").Observe(duration.Seconds())
}

func RecordExportRetried(report string) {
	ExportsRetried.WithLabelValues(report).Inc()
}

func RecordExportWaitTime(report string, waitTime time.Duration) {
	ExportWaitTime.WithLabelValues(report).Observe(waitTime.Seconds())
}

func UpdateExportGauges(byStatus map[string]int) {
	ExportsByStatus.Reset()
	for status, count := range byStatus {
		ExportsByStatus.WithLabelValues(status).Set(float64(count))
	}
}

func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

func UpdateActiveWorkers(count int) {
	WorkersActive.Set(float64(count))
}

func RecordRulesReload(outcome string) {
	RulesReloads.WithLabelValues(outcome).Inc()
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
