package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	q, err := NewQueue(context.Background(), mr.Addr())
	require.NoError(t, err)

	return q, mr
}

func TestNewQueue_InvalidAddress(t *testing.T) {
	_, err := NewQueue(context.Background(), "invalid:99999")
	assert.Error(t, err)
}

func TestNewExportJob(t *testing.T) {
	job := NewExportJob("ana", "tmo-day", "csv", Params{From: "2024-03-01"})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, KindExportReport, job.Kind)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.False(t, job.ScheduledAt.After(time.Now()))
}

func TestJobJSONRoundTrip(t *testing.T) {
	job := NewExportJob("ana", "sla", "xlsx", Params{Analysts: []string{"ana", "bia"}})
	job.NotifyEmail = "ana@example.com"

	data, err := job.ToJSON()
	require.NoError(t, err)

	decoded, err := JobFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Params, decoded.Params)
	assert.Equal(t, "ana@example.com", decoded.NotifyEmail)

	_, err = JobFromJSON("{broken")
	assert.Error(t, err)
}

func TestEnqueueAndDequeue(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	first := NewExportJob("ana", "tmo-day", "csv", Params{})
	first.ScheduledAt = time.Now().Add(-2 * time.Minute)
	second := NewExportJob("ana", "ranking", "json", Params{})
	second.ScheduledAt = time.Now().Add(-time.Minute)

	require.NoError(t, q.Enqueue(ctx, second))
	require.NoError(t, q.Enqueue(ctx, first))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first.ID, job.ID)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, second.ID, job.ID)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeueSkipsFutureJobs(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	job := NewExportJob("ana", "idle", "csv", Params{})
	job.ScheduledAt = time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAndUpdate(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	_, err := q.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	job := NewExportJob("ana", "sla", "csv", Params{})
	require.NoError(t, q.Enqueue(ctx, job))

	job.Status = StatusCompleted
	job.OutputPath = "/tmp/report.csv"
	require.NoError(t, q.Update(ctx, job))

	stored, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, "/tmp/report.csv", stored.OutputPath)

	jobs, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestListSkipsCorruptEntries(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewExportJob("ana", "sla", "csv", Params{})))
	mr.HSet(jobsKey, "broken", "{not json")

	jobs, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
