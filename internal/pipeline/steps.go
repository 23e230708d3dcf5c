package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/dvloznov/receipt-tracker/internal/tokens"
)

// Step is a single step in the reconciliation chain.
type Step interface {
	// Name identifies the step in logs and errors.
	Name() string
	// Stage is the stage reached once the step succeeds.
	Stage() Stage
	Execute(ctx context.Context, state *State) error
}

// State is the value passed along one chain. It is never shared between chains.
type State struct {
	Extraction   *domain.Extraction
	Markup       []byte
	Profile      *domain.UserProfile
	Registration domain.Registration

	Stage      Stage
	TokenError error
	Now        int64
}

// memberID returns the member the receipt belongs to.
func (s *State) memberID() (string, error) {
	if s.Extraction.MemberID == nil {
		return "", ErrMemberUnresolved
	}
	return *s.Extraction.MemberID, nil
}

// BindMemberStep copies the extracted member id onto the profile.
// An unresolved member leaves the previous binding in place.
type BindMemberStep struct{}

func (s *BindMemberStep) Name() string { return "bind_member" }
func (s *BindMemberStep) Stage() Stage { return StageIdentityResolved }

func (s *BindMemberStep) Execute(ctx context.Context, state *State) error {
	if state.Extraction.MemberID == nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("user_id", state.Profile.ID).
			Msg("Member id not found on receipt, keeping previous binding")
		return nil
	}
	state.Profile.MemberID = domain.StringPtr(*state.Extraction.MemberID)
	return nil
}

// CheckTokenStep refreshes a stale push token. A refresh failure is recorded
// on the state and the chain continues with the previous token.
type CheckTokenStep struct {
	Tokens *tokens.Manager
}

func (s *CheckTokenStep) Name() string { return "check_token" }
func (s *CheckTokenStep) Stage() Stage { return StageTokenChecked }

func (s *CheckTokenStep) Execute(ctx context.Context, state *State) error {
	if s.Tokens == nil {
		return nil
	}
	token, err := s.Tokens.EnsureFresh(ctx, state.Profile, state.Registration)
	if err != nil {
		if !errors.Is(err, tokens.ErrTokenUnavailable) {
			return err
		}
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("user_id", state.Profile.ID).
			Msg("Push token unavailable, continuing with previous token")
		state.TokenError = err
	}
	state.Profile.SetToken(token)
	return nil
}

// PersistProfileStep upserts Users/{id}. The registration timestamp is kept;
// it is only stamped for profiles that never recorded one.
type PersistProfileStep struct {
	Store store.Repository
}

func (s *PersistProfileStep) Name() string { return "persist_profile" }
func (s *PersistProfileStep) Stage() Stage { return StageProfilePersisted }

func (s *PersistProfileStep) Execute(ctx context.Context, state *State) error {
	if state.Profile.Timestamp == 0 {
		state.Profile.Timestamp = state.Now
	}
	if err := s.Store.UpsertProfile(ctx, state.Profile); err != nil {
		return fmt.Errorf("PersistProfileStep: %w", err)
	}
	return nil
}

// PersistReceiptStep upserts Members/{memberId}/receipts/{receiptId}.
type PersistReceiptStep struct {
	Store store.Repository
}

func (s *PersistReceiptStep) Name() string { return "persist_receipt" }
func (s *PersistReceiptStep) Stage() Stage { return StageReceiptPersisted }

func (s *PersistReceiptStep) Execute(ctx context.Context, state *State) error {
	memberID, err := state.memberID()
	if err != nil {
		return err
	}
	receipt := &state.Extraction.Receipt
	if err := s.Store.UpsertReceipt(ctx, memberID, domain.StringValue(receipt.ReceiptID), receipt.ToStored()); err != nil {
		return fmt.Errorf("PersistReceiptStep: %w", err)
	}
	return nil
}

// PersistTokenSummaryStep upserts Members/{memberId}/profile/fcmToken with the
// profile's current token. Profiles without any token are skipped.
type PersistTokenSummaryStep struct {
	Store store.Repository
}

func (s *PersistTokenSummaryStep) Name() string { return "persist_token_summary" }
func (s *PersistTokenSummaryStep) Stage() Stage { return StageTokenSummaryPersisted }

func (s *PersistTokenSummaryStep) Execute(ctx context.Context, state *State) error {
	if !state.Profile.HasToken() {
		return nil
	}
	memberID, err := state.memberID()
	if err != nil {
		return err
	}
	if err := s.Store.UpsertTokenSummary(ctx, memberID, state.Profile.CurrentToken()); err != nil {
		return fmt.Errorf("PersistTokenSummaryStep: %w", err)
	}
	return nil
}

// Archiver stores the raw receipt markup.
type Archiver interface {
	Archive(ctx context.Context, memberID, receiptID string, markup []byte) (string, error)
}

// Exporter copies a persisted receipt into the analytics warehouse.
type Exporter interface {
	ExportReceipt(ctx context.Context, memberID string, receipt domain.Receipt) error
}

// sideStep runs after Done. Failures are logged and never fail the chain.
type sideStep interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// ArchiveStep uploads the raw markup when the caller supplied it.
type ArchiveStep struct {
	Archiver Archiver
}

func (s *ArchiveStep) Name() string { return "archive" }

func (s *ArchiveStep) Execute(ctx context.Context, state *State) error {
	if len(state.Markup) == 0 {
		return nil
	}
	memberID, err := state.memberID()
	if err != nil {
		return err
	}
	uri, err := s.Archiver.Archive(ctx, memberID, domain.StringValue(state.Extraction.Receipt.ReceiptID), state.Markup)
	if err != nil {
		return fmt.Errorf("ArchiveStep: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("uri", uri).Msg("Receipt markup archived")
	return nil
}

// ExportStep streams the receipt line items to the warehouse.
type ExportStep struct {
	Exporter Exporter
}

func (s *ExportStep) Name() string { return "export" }

func (s *ExportStep) Execute(ctx context.Context, state *State) error {
	memberID, err := state.memberID()
	if err != nil {
		return err
	}
	if err := s.Exporter.ExportReceipt(ctx, memberID, state.Extraction.Receipt); err != nil {
		return fmt.Errorf("ExportStep: %w", err)
	}
	return nil
}
