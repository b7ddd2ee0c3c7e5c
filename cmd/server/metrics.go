package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/metrics"
	"github.com/nadmax/opskpi/internal/queue"
)

func startMetricsCollector(ctx context.Context, q *queue.Queue, interval time.Duration, zl *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateQueueMetrics(ctx, q, zl)
		}
	}
}

func updateQueueMetrics(ctx context.Context, q *queue.Queue, zl *zap.Logger) {
	jobs, err := q.List(ctx)
	if err != nil {
		zl.Warn("failed to list jobs for metrics", zap.Error(err))
		return
	}

	byStatus := make(map[string]int)
	for _, job := range jobs {
		byStatus[string(job.Status)]++
	}
	metrics.UpdateExportGauges(byStatus)

	depth, err := q.Depth(ctx)
	if err != nil {
		zl.Warn("failed to read queue depth", zap.Error(err))
		return
	}
	metrics.UpdateQueueDepth(int(depth))
}
