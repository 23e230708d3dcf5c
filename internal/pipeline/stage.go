package pipeline

// Stage is the last step a reconciliation completed.
type Stage int

const (
	StageExtracted Stage = iota
	StageIdentityResolved
	StageTokenChecked
	StageProfilePersisted
	StageReceiptPersisted
	StageTokenSummaryPersisted
	StageDone
)

var stageNames = [...]string{
	StageExtracted:             "extracted",
	StageIdentityResolved:      "identity_resolved",
	StageTokenChecked:          "token_checked",
	StageProfilePersisted:      "profile_persisted",
	StageReceiptPersisted:      "receipt_persisted",
	StageTokenSummaryPersisted: "token_summary_persisted",
	StageDone:                  "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// MarshalText renders the stage by name in JSON and logs.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
