package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/store"
)

// Confirmer is told about every completed reconciliation.
type Confirmer interface {
	ConfirmSync(ctx context.Context, profile *domain.UserProfile, itemCount int)
}

// NewJobHandler runs reconcile jobs. The profile is read when the job runs;
// a missing profile fails the job without retry.
func NewJobHandler(repo store.Repository, r *Reconciler, confirm Confirmer) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		rj, ok := job.(*jobs.ReconcileJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
		}
		if rj.Extraction == nil {
			return jobs.Permanent(fmt.Errorf("job %s: %w", rj.JobID, ErrReceiptIDMissing))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", rj.JobID).
			Str("user_id", rj.UserID).
			Logger()
		ctx = logger.WithContext(ctx, log)

		profile, err := repo.GetProfile(ctx, rj.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Warn().Msg("No such profile, receipt not synced")
				return jobs.Permanent(fmt.Errorf("loading profile: %w", err))
			}
			return fmt.Errorf("loading profile: %w", err)
		}

		res, err := r.ReconcileWithMarkup(ctx, rj.Extraction, rj.Markup, profile, rj.Registration)
		if err != nil {
			var stepErr *StepError
			if errors.As(err, &stepErr) {
				rj.Stage = stepErr.Stage.String()
			}
			if !Retryable(err) {
				return jobs.Permanent(err)
			}
			return err
		}

		rj.Stage = res.Stage.String()
		rj.ItemCount = res.ItemCount
		if confirm != nil {
			confirm.ConfirmSync(ctx, res.Profile, res.ItemCount)
		}
		return nil
	}
}
