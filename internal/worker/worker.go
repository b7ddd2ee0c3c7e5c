// Package worker provides the background job processor that consumes and executes export jobs from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/metrics"
	"github.com/nadmax/opskpi/internal/queue"
)

const (
	defaultPollInterval = time.Second
	retryStep           = 10 * time.Second
)

type JobHandler func(context.Context, *queue.Job) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

var active atomic.Int64

type Worker struct {
	id           string
	queue        *queue.Queue
	handlers     map[queue.JobKind]JobHandler
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewWorker(id string, q *queue.Queue, logger *zap.Logger) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		handlers:     make(map[queue.JobKind]JobHandler),
		pollInterval: defaultPollInterval,
		logger:       logger.With(zap.String("worker_id", id)),
	}
}

func (w *Worker) RegisterHandler(kind queue.JobKind, handler JobHandler) {
	w.handlers[kind] = handler
}

func (w *Worker) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

// Start polls the queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("dequeue failed", zap.Error(err))
		}
		if err != nil || job == nil {
			select {
			case <-ctx.Done():
			case <-time.After(w.pollInterval):
			}
			continue
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	log := w.logger.With(zap.String("job_id", job.ID), zap.String("report", job.Report))
	log.Info("processing job", zap.String("kind", string(job.Kind)))

	metrics.UpdateActiveWorkers(int(active.Add(1)))
	defer func() { metrics.UpdateActiveWorkers(int(active.Add(-1))) }()

	now := time.Now()
	metrics.RecordExportWaitTime(job.Report, now.Sub(job.ScheduledAt))
	job.Status = queue.StatusRunning
	job.StartedAt = &now
	if err := w.queue.Update(ctx, job); err != nil {
		log.Warn("failed to mark job running", zap.Error(err))
	}

	// State writes after the handler must survive a shutdown that cancelled ctx.
	store := context.WithoutCancel(ctx)

	handler, exists := w.handlers[job.Kind]
	if !exists {
		w.fail(store, log, job, fmt.Errorf("no handler for job kind: %s", job.Kind), now)
		return
	}

	err := handler(ctx, job)

	if err != nil && ctx.Err() != nil {
		w.requeue(store, log, job, err)
		return
	}

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err == nil {
		job.Status = queue.StatusCompleted
		job.Error = ""
		if err := w.queue.Update(store, job); err != nil {
			log.Warn("failed to update completed job", zap.Error(err))
		}
		metrics.RecordExportCompleted(job.Report, completedAt.Sub(now))
		log.Info("job completed", zap.String("output", job.OutputPath))
		return
	}

	job.Retries++
	if job.Retries < job.MaxRetries && !IsPermanent(err) {
		job.Status = queue.StatusPending
		job.Error = err.Error()
		job.ScheduledAt = completedAt.Add(time.Duration(job.Retries) * retryStep)
		if err := w.queue.Enqueue(store, job); err != nil {
			log.Warn("failed to re-enqueue job", zap.Error(err))
		}
		metrics.RecordExportRetried(job.Report)
		log.Warn("job failed, will retry",
			zap.Int("retries", job.Retries),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		return
	}

	w.fail(store, log, job, err, now)
}

// requeue puts a job interrupted by shutdown back on the queue as due now. The attempt does
// not count against MaxRetries.
func (w *Worker) requeue(ctx context.Context, log *zap.Logger, job *queue.Job, cause error) {
	job.Status = queue.StatusPending
	job.StartedAt = nil
	job.ScheduledAt = time.Now()
	if err := w.queue.Enqueue(ctx, job); err != nil {
		log.Error("failed to requeue interrupted job", zap.Error(err))
		return
	}
	log.Warn("job interrupted, requeued", zap.Error(cause))
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, job *queue.Job, err error, started time.Time) {
	job.Status = queue.StatusFailed
	job.Error = err.Error()
	if updateErr := w.queue.Update(ctx, job); updateErr != nil {
		log.Warn("failed to update failed job", zap.Error(updateErr))
	}
	metrics.RecordExportFailed(job.Report, time.Since(started))
	log.Error("job failed permanently", zap.Error(err))
}
