package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/queue"
)

func setupTestWorker(t *testing.T) (*Worker, *queue.Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	q, err := queue.NewQueue(context.Background(), mr.Addr())
	require.NoError(t, err)

	w := NewWorker("test-worker", q, zap.NewNop())

	return w, q, mr
}

func newJob() *queue.Job {
	return queue.NewExportJob("team-a", "tmo-day", "csv", queue.Params{})
}

func TestNewWorker(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	assert.Equal(t, "test-worker", w.id)
	assert.NotNil(t, w.handlers)
	assert.Equal(t, defaultPollInterval, w.pollInterval)
}

func TestRegisterHandler(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	w.RegisterHandler(queue.KindExportReport, func(context.Context, *queue.Job) error { return nil })

	assert.Contains(t, w.handlers, queue.KindExportReport)
}

func TestPermanent(t *testing.T) {
	base := errors.New("missing columns")

	assert.Nil(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.True(t, IsPermanent(errors.Join(errors.New("context"), Permanent(base))))
	assert.False(t, IsPermanent(base))
	assert.ErrorIs(t, Permanent(base), base)
}

func TestProcessJob_Success(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()
	ctx := context.Background()

	executed := false
	w.RegisterHandler(queue.KindExportReport, func(_ context.Context, job *queue.Job) error {
		executed = true
		job.OutputPath = "/reports/out.csv"
		return nil
	})

	job := newJob()
	require.NoError(t, q.Enqueue(ctx, job))

	w.processJob(ctx, job)

	assert.True(t, executed)

	updated, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, updated.Status)
	assert.Equal(t, "/reports/out.csv", updated.OutputPath)
	assert.NotNil(t, updated.StartedAt)
	assert.NotNil(t, updated.CompletedAt)
}

func TestProcessJob_RetryWithBackoff(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()
	ctx := context.Background()

	w.RegisterHandler(queue.KindExportReport, func(context.Context, *queue.Job) error {
		return errors.New("database unavailable")
	})

	job := newJob()
	require.NoError(t, q.Enqueue(ctx, job))
	_, _ = q.Dequeue(ctx)

	before := time.Now()
	w.processJob(ctx, job)

	updated, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Retries)
	assert.Equal(t, queue.StatusPending, updated.Status)
	assert.Contains(t, updated.Error, "database unavailable")
	assert.False(t, updated.ScheduledAt.Before(before.Add(retryStep)))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestProcessJob_MaxRetriesExceeded(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()
	ctx := context.Background()

	w.RegisterHandler(queue.KindExportReport, func(context.Context, *queue.Job) error {
		return errors.New("job failed")
	})

	job := newJob()
	job.MaxRetries = 2
	job.Retries = 1
	require.NoError(t, q.Enqueue(ctx, job))

	w.processJob(ctx, job)

	updated, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, updated.Status)
	assert.Equal(t, 2, updated.Retries)
	assert.Contains(t, updated.Error, "job failed")
}

func TestProcessJob_PermanentFailureSkipsRetry(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()
	ctx := context.Background()

	w.RegisterHandler(queue.KindExportReport, func(context.Context, *queue.Job) error {
		return Permanent(errors.New("required columns not found"))
	})

	job := newJob()
	require.NoError(t, q.Enqueue(ctx, job))
	_, _ = q.Dequeue(ctx)

	w.processJob(ctx, job)

	updated, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, updated.Status)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestProcessJob_ShutdownRequeuesWithoutRetry(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	w.RegisterHandler(queue.KindExportReport, func(ctx context.Context, _ *queue.Job) error {
		cancel()
		return ctx.Err()
	})

	job := newJob()
	require.NoError(t, q.Enqueue(context.Background(), job))
	_, _ = q.Dequeue(context.Background())

	w.processJob(ctx, job)

	updated, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, updated.Status)
	assert.Zero(t, updated.Retries)
	assert.Nil(t, updated.StartedAt)
	assert.Nil(t, updated.CompletedAt)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestProcessJob_RecordsCompletionAfterCancel(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	w.RegisterHandler(queue.KindExportReport, func(_ context.Context, job *queue.Job) error {
		cancel()
		job.OutputPath = "/reports/out.csv"
		return nil
	})

	job := newJob()
	require.NoError(t, q.Enqueue(context.Background(), job))
	_, _ = q.Dequeue(context.Background())

	w.processJob(ctx, job)

	updated, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, updated.Status)
	assert.Equal(t, "/reports/out.csv", updated.OutputPath)
}

func TestProcessJob_NoHandler(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, q.Enqueue(ctx, job))

	w.processJob(ctx, job)

	updated, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, updated.Status)
	assert.Contains(t, updated.Error, "no handler")
}

func TestWorkerStartStop(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	w.SetPollInterval(10 * time.Millisecond)

	processed := make(chan bool, 1)
	w.RegisterHandler(queue.KindExportReport, func(context.Context, *queue.Job) error {
		processed <- true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), newJob()))

	select {
	case <-processed:
	case <-time.After(5 * time.Second):
		t.Fatal("Job was not processed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not stop")
	}
}

func TestWorkerProcessMultipleJobs(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()
	ctx := context.Background()

	var count atomic.Int32
	w.RegisterHandler(queue.KindExportReport, func(context.Context, *queue.Job) error {
		count.Add(1)
		return nil
	})

	for range 5 {
		require.NoError(t, q.Enqueue(ctx, newJob()))
	}

	for range 5 {
		job, _ := q.Dequeue(ctx)
		if job != nil {
			w.processJob(ctx, job)
		}
	}

	assert.Equal(t, int32(5), count.Load())
}
