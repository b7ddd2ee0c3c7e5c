package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/metrics"
	"github.com/nadmax/opskpi/internal/queue"
)

func TestUpdateQueueMetrics(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	q, err := queue.NewQueue(ctx, mr.Addr())
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	for range 2 {
		require.NoError(t, q.Enqueue(ctx, queue.NewExportJob("team-a", "sla", "csv", queue.Params{})))
	}
	failed := queue.NewExportJob("team-a", "idle", "csv", queue.Params{})
	failed.Status = queue.StatusFailed
	require.NoError(t, q.Update(ctx, failed))

	updateQueueMetrics(ctx, q, zap.NewNop())

	metric := &dto.Metric{}
	require.NoError(t, metrics.QueueDepth.Write(metric))
	assert.Equal(t, 2.0, metric.Gauge.GetValue())

	pending := &dto.Metric{}
	require.NoError(t, metrics.ExportsByStatus.WithLabelValues("pending").Write(pending))
	assert.Equal(t, 2.0, pending.Gauge.GetValue())

	failedMetric := &dto.Metric{}
	require.NoError(t, metrics.ExportsByStatus.WithLabelValues("failed").Write(failedMetric))
	assert.Equal(t, 1.0, failedMetric.Gauge.GetValue())
}

func TestOpenRepository_Memory(t *testing.T) {
	cfg, err := loadTestConfig(t)
	require.NoError(t, err)

	repo, embedded, err := openRepository(context.Background(), cfg, time.UTC, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	assert.True(t, embedded)
}
