package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ReconcileJob {
	t.Helper()
	var got *jobs.ReconcileJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithWorkers(2))

	var calls int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		j := job.(*jobs.ReconcileJob)
		j.ItemCount = 3
		return nil
	}))
	defer q.Stop(ctx)

	job := &jobs.ReconcileJob{UserID: "user-1", ReceiptID: "r-1"}
	require.NoError(t, q.PublishReconcile(ctx, job))
	require.NotEmpty(t, job.JobID)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.Equal(t, 3, done.ItemCount)
	require.NotNil(t, done.CompletedAt)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestQueue_PublisherKeepsItsOwnJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store)

	running := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.ReconcileJob)
		j.Stage = "receipt_persisted"
		close(running)
		<-release
		return nil
	}))
	defer q.Stop(ctx)

	job := &jobs.ReconcileJob{UserID: "user-1", ReceiptID: "r-1"}
	require.NoError(t, q.PublishReconcile(ctx, job))
	<-running

	require.Equal(t, jobs.JobStatusPending, job.Status)
	require.Nil(t, job.StartedAt)
	require.Empty(t, job.Stage)

	close(release)
	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.Equal(t, "receipt_persisted", done.Stage)
}

func TestQueue_RetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithBackoff(time.Millisecond), WithMaxRetries(3))

	var calls int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}))
	defer q.Stop(ctx)

	job := &jobs.ReconcileJob{UserID: "user-1"}
	require.NoError(t, q.PublishReconcile(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.Equal(t, 2, done.RetryCount)
	require.Empty(t, done.Error)
}

func TestQueue_PermanentFailureNotRetried(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithBackoff(time.Millisecond))

	var calls int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return jobs.Permanent(errors.New("profile not found"))
	}))
	defer q.Stop(ctx)

	job := &jobs.ReconcileJob{UserID: "user-1"}
	require.NoError(t, q.PublishReconcile(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	require.Equal(t, 0, failed.RetryCount)
	require.Contains(t, failed.Error, "profile not found")
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithBackoff(time.Millisecond), WithMaxRetries(2))

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("deadline exceeded")
	}))
	defer q.Stop(ctx)

	job := &jobs.ReconcileJob{UserID: "user-1"}
	require.NoError(t, q.PublishReconcile(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	require.Equal(t, 2, failed.RetryCount)
}

func TestQueue_Closed(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1, nil)
	require.NoError(t, q.Stop(ctx))
	require.NoError(t, q.Stop(ctx))

	require.ErrorIs(t, q.PublishReconcile(ctx, &jobs.ReconcileJob{}), ErrQueueClosed)
	require.ErrorIs(t, q.Start(ctx, func(context.Context, jobs.Job) error { return nil }), ErrQueueClosed)
}
