package pipeline

import (
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/store"
)

var (
	// ErrReceiptIDMissing is returned before any write when the extraction has no receipt id.
	ErrReceiptIDMissing = errors.New("receipt id missing")
	// ErrMemberUnresolved blocks the receipt and token summary writes, which are keyed by member.
	ErrMemberUnresolved = errors.New("member id unresolved")
	// ErrProfileMissing is returned when a reconciliation is started without a profile.
	ErrProfileMissing = errors.New("profile missing")
)

// StepError reports a failed step. Stage is the last stage that completed;
// writes made by earlier steps are not rolled back.
type StepError struct {
	Stage Stage
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed after %s: %v", e.Step, e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-running the whole chain may succeed.
// Every write is an idempotent upsert, so only store failures qualify.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReceiptIDMissing) ||
		errors.Is(err, ErrMemberUnresolved) ||
		errors.Is(err, ErrProfileMissing) ||
		errors.Is(err, store.ErrInvalidKey) {
		return false
	}
	var stepErr *StepError
	return errors.As(err, &stepErr)
}
