package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/store/inmemory"
	"github.com/stretchr/testify/require"
)

type confirmRecorder struct {
	mu     sync.Mutex
	counts []int
}

func (c *confirmRecorder) ConfirmSync(ctx context.Context, profile *domain.UserProfile, itemCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = append(c.counts, itemCount)
}

func TestJobHandler_Success(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewStore()
	require.NoError(t, repo.UpsertProfile(ctx, freshProfile()))

	confirm := &confirmRecorder{}
	handler := NewJobHandler(repo, NewReconciler(repo, nil, WithClock(clock)), confirm)

	job := &jobs.ReconcileJob{JobID: "j1", UserID: "user-1", Extraction: extraction(domain.StringPtr("12345"), "r-1", 3)}
	require.NoError(t, handler(ctx, job))
	require.Equal(t, "done", job.Stage)
	require.Equal(t, 3, job.ItemCount)
	require.Equal(t, []int{3}, confirm.counts)
}

func TestJobHandler_MissingProfileIsPermanent(t *testing.T) {
	repo := inmemory.NewStore()
	confirm := &confirmRecorder{}
	handler := NewJobHandler(repo, NewReconciler(repo, nil), confirm)

	err := handler(context.Background(), &jobs.ReconcileJob{JobID: "j1", UserID: "ghost", Extraction: extraction(domain.StringPtr("1"), "r-1", 1)})
	require.Error(t, err)
	require.True(t, jobs.IsPermanent(err))
	require.Empty(t, confirm.counts)
	require.Zero(t, repo.Len())
}

func TestJobHandler_UnresolvedMemberIsPermanent(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewStore()
	require.NoError(t, repo.UpsertProfile(ctx, freshProfile()))
	handler := NewJobHandler(repo, NewReconciler(repo, nil), nil)

	job := &jobs.ReconcileJob{JobID: "j1", UserID: "user-1", Extraction: extraction(nil, "r-1", 1)}
	err := handler(ctx, job)
	require.True(t, jobs.IsPermanent(err))
	require.ErrorIs(t, err, ErrMemberUnresolved)
	require.Equal(t, "profile_persisted", job.Stage)
}

func TestJobHandler_StoreFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	repo := &failingStore{Store: inmemory.NewStore()}
	require.NoError(t, repo.UpsertProfile(ctx, freshProfile()))
	repo.UpsertReceiptFunc = func(ctx context.Context, memberID, receiptID string, r domain.StoredReceipt) error {
		return errors.New("unavailable")
	}
	handler := NewJobHandler(repo, NewReconciler(repo, nil), nil)

	err := handler(ctx, &jobs.ReconcileJob{JobID: "j1", UserID: "user-1", Extraction: extraction(domain.StringPtr("1"), "r-1", 1)})
	require.Error(t, err)
	require.False(t, jobs.IsPermanent(err))
}

func TestJobHandler_WithQueueRetry(t *testing.T) {
	ctx := context.Background()
	repo := &failingStore{Store: inmemory.NewStore()}
	require.NoError(t, repo.UpsertProfile(ctx, freshProfile()))

	var mu sync.Mutex
	failures := 1
	repo.UpsertReceiptFunc = func(ctx context.Context, memberID, receiptID string, r domain.StoredReceipt) error {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return errors.New("unavailable")
		}
		return repo.Store.UpsertReceipt(ctx, memberID, receiptID, r)
	}

	handler := NewJobHandler(repo, NewReconciler(repo, nil), nil)
	job := &jobs.ReconcileJob{JobID: "j1", UserID: "user-1", Extraction: extraction(domain.StringPtr("1"), "r-1", 2)}

	require.Error(t, handler(ctx, job))
	require.NoError(t, handler(ctx, job))

	stored, err := repo.GetReceipt(ctx, "1", "r-1")
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
}

func TestJobHandler_WrongJobType(t *testing.T) {
	handler := NewJobHandler(inmemory.NewStore(), NewReconciler(inmemory.NewStore(), nil), nil)
	err := handler(context.Background(), otherJob{})
	require.True(t, jobs.IsPermanent(err))
}

type otherJob struct{}

func (otherJob) GetID() string             { return "x" }
func (otherJob) GetType() jobs.JobType     { return "other" }
func (otherJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }
