// Package pipeline reconciles an extracted receipt with the user's profile and
// persists both. Each step is an independent upsert; there is no transaction
// spanning them.
package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/dvloznov/receipt-tracker/internal/tokens"
)

// Pipeline executes a sequence of steps in order, advancing the state's stage
// after each one.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return &StepError{Stage: state.Stage, Step: step.Name(), Err: err}
		}
		state.Stage = step.Stage()
		log.Debug().Str("step", step.Name()).Stringer("stage", state.Stage).Msg("Step completed")
	}
	return nil
}

// Result summarizes a completed reconciliation.
type Result struct {
	Stage      Stage               `json:"stage"`
	MemberID   string              `json:"memberId"`
	ReceiptID  string              `json:"receiptId"`
	ItemCount  int                 `json:"itemCount"`
	Profile    *domain.UserProfile `json:"profile"`
	TokenError error               `json:"-"`
}

// Reconciler owns the standard reconciliation chain.
type Reconciler struct {
	pipeline *Pipeline
	extras   []sideStep
	now      func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithArchiver stores the raw markup of every reconciled receipt.
func WithArchiver(a Archiver) Option {
	return func(r *Reconciler) {
		r.extras = append(r.extras, &ArchiveStep{Archiver: a})
	}
}

// WithExporter exports every reconciled receipt.
func WithExporter(e Exporter) Option {
	return func(r *Reconciler) {
		r.extras = append(r.extras, &ExportStep{Exporter: e})
	}
}

// WithClock overrides the clock used for the profile timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler builds the standard chain over repo. tm may be nil, in which
// case tokens are never refreshed.
func NewReconciler(repo store.Repository, tm *tokens.Manager, opts ...Option) *Reconciler {
	r := &Reconciler{
		pipeline: NewPipeline(
			&BindMemberStep{},
			&CheckTokenStep{Tokens: tm},
			&PersistProfileStep{Store: repo},
			&PersistReceiptStep{Store: repo},
			&PersistTokenSummaryStep{Store: repo},
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile binds the extraction to profile and persists the profile, the
// receipt and the member's token summary. profile is updated in place.
func (r *Reconciler) Reconcile(ctx context.Context, extraction *domain.Extraction, profile *domain.UserProfile, reg domain.Registration) (*Result, error) {
	return r.ReconcileWithMarkup(ctx, extraction, nil, profile, reg)
}

// ReconcileWithMarkup is Reconcile with the raw page markup available for archiving.
func (r *Reconciler) ReconcileWithMarkup(ctx context.Context, extraction *domain.Extraction, markup []byte, profile *domain.UserProfile, reg domain.Registration) (*Result, error) {
	if profile == nil {
		return nil, &StepError{Stage: StageExtracted, Step: "validate", Err: ErrProfileMissing}
	}
	if extraction == nil || extraction.Receipt.ReceiptID == nil || *extraction.Receipt.ReceiptID == "" {
		return nil, &StepError{Stage: StageExtracted, Step: "validate", Err: ErrReceiptIDMissing}
	}

	state := &State{
		Extraction:   extraction,
		Markup:       markup,
		Profile:      profile,
		Registration: reg,
		Stage:        StageExtracted,
		Now:          r.now().UnixMilli(),
	}

	log := logger.FromContext(ctx).With().
		Str("user_id", profile.ID).
		Str("receipt_id", *extraction.Receipt.ReceiptID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	if err := r.pipeline.Execute(ctx, state); err != nil {
		log.Error().Err(err).Stringer("stage", state.Stage).Msg("Reconciliation failed")
		return nil, err
	}
	state.Stage = StageDone

	for _, step := range r.extras {
		if err := step.Execute(ctx, state); err != nil {
			log.Warn().Err(err).Str("step", step.Name()).Msg("Side step failed")
		}
	}

	res := &Result{
		Stage:      state.Stage,
		ReceiptID:  *extraction.Receipt.ReceiptID,
		ItemCount:  len(extraction.Receipt.Items),
		Profile:    profile,
		TokenError: state.TokenError,
	}
	if extraction.MemberID != nil {
		res.MemberID = *extraction.MemberID
	}

	log.Info().
		Str("member_id", res.MemberID).
		Int("items", res.ItemCount).
		Bool("token_refresh_failed", res.TokenError != nil).
		Msg("Receipt reconciled")

	return res, nil
}
