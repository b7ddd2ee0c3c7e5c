package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadmax/opskpi/internal/repository/models"
)

func TestRecordComputation(t *testing.T) {
	Computations.Reset()
	ComputationDuration.Reset()

	tests := []struct {
		name      string
		operation string
		outcome   string
	}{
		{name: "successful computation", operation: "tmo-day", outcome: OutcomeOK},
		{name: "missing columns", operation: "sla", outcome: OutcomeMissingColumns},
		{name: "diagnostic failure", operation: "idle", outcome: OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordComputation(tt.operation, tt.outcome, 250*time.Millisecond)

			assert.Equal(t, 1.0, getCounterValue(t, Computations, tt.operation, tt.outcome))
			assert.Equal(t, 0.25, getHistogramSum(t, ComputationDuration, tt.operation))
		})
	}
}

func TestRecordIngest(t *testing.T) {
	RowsIngested.Reset()

	RecordIngest(models.DatasetTasks, models.DedupStats{Received: 10, Filtered: 1, Duplicates: 3, Inserted: 6}, 2)

	assert.Equal(t, 6.0, getCounterValue(t, RowsIngested, "tasks", "inserted"))
	assert.Equal(t, 3.0, getCounterValue(t, RowsIngested, "tasks", "duplicate"))
	assert.Equal(t, 1.0, getCounterValue(t, RowsIngested, "tasks", "filtered"))
	assert.Equal(t, 2.0, getCounterValue(t, RowsIngested, "tasks", "quarantined"))
}

func TestRecordExportLifecycle(t *testing.T) {
	ExportsEnqueued.Reset()
	ExportsCompleted.Reset()
	ExportsFailed.Reset()
	ExportsRetried.Reset()
	ExportDuration.Reset()
	ExportWaitTime.Reset()

	RecordExportEnqueued("sla", "xlsx")
	RecordExportWaitTime("sla", 2*time.Second)
	RecordExportRetried("sla")
	RecordExportCompleted("sla", 2*time.Second)
	RecordExportFailed("idle", 500*time.Millisecond)

	assert.Equal(t, 1.0, getCounterValue(t, ExportsEnqueued, "sla", "xlsx"))
	assert.Equal(t, 1.0, getCounterValue(t, ExportsRetried, "sla"))
	assert.Equal(t, 1.0, getCounterValue(t, ExportsCompleted, "sla"))
	assert.Equal(t, 1.0, getCounterValue(t, ExportsFailed, "idle"))
	assert.Equal(t, 2.0, getHistogramSum(t, ExportDuration, "sla", "completed"))
	assert.Equal(t, 0.5, getHistogramSum(t, ExportDuration, "idle", "failed"))
	assert.Equal(t, 2.0, getHistogramSum(t, ExportWaitTime, "sla"))
}

func TestUpdateExportGauges_Reset(t *testing.T) {
	UpdateExportGauges(map[string]int{"pending": 4, "failed": 1})
	assert.Equal(t, 4.0, getGaugeValue(t, ExportsByStatus, "pending"))

	UpdateExportGauges(map[string]int{"completed": 2})
	assert.Equal(t, 2.0, getGaugeValue(t, ExportsByStatus, "completed"))
	assert.Equal(t, 0.0, getGaugeValue(t, ExportsByStatus, "pending"))
}

func TestScalarGauges(t *testing.T) {
	UpdateQueueDepth(7)
	metric := &dto.Metric{}
	require.NoError(t, QueueDepth.Write(metric))
	assert.Equal(t, 7.0, metric.Gauge.GetValue())

	UpdateActiveWorkers(3)
	metric = &dto.Metric{}
	require.NoError(t, WorkersActive.Write(metric))
	assert.Equal(t, 3.0, metric.Gauge.GetValue())
}

func TestRecordRulesReload(t *testing.T) {
	RulesReloads.Reset()
	RecordRulesReload(OutcomeOK)
	RecordRulesReload(OutcomeError)
	RecordRulesReload(OutcomeOK)

	assert.Equal(t, 2.0, getCounterValue(t, RulesReloads, OutcomeOK))
	assert.Equal(t, 1.0, getCounterValue(t, RulesReloads, OutcomeError))
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	tests := []struct {
		method   string
		endpoint string
		status   string
	}{
		{"GET", "/api/reports/:kind", "200"},
		{"POST", "/api/datasets/:dataset", "400"},
		{"GET", "/api/exports/:id", "404"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.endpoint, func(t *testing.T) {
			RecordHTTPRequest(tt.method, tt.endpoint, tt.status, 100*time.Millisecond)
			assert.Equal(t, 1.0, getCounterValue(t, HTTPRequestsTotal, tt.method, tt.endpoint, tt.status))
		})
	}
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	metric := &dto.Metric{}
	c, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	require.NoError(t, c.Write(metric))
	return metric.Counter.GetValue()
}

func getGaugeValue(t *testing.T, gauge *prometheus.GaugeVec, labels ...string) float64 {
	metric := &dto.Metric{}
	g, err := gauge.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	require.NoError(t, g.Write(metric))
	return metric.Gauge.GetValue()
}

func getHistogramSum(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := histogram.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	h := observer.(prometheus.Histogram)
	require.NoError(t, h.Write(metric))
	return metric.Histogram.GetSampleSum()
}
