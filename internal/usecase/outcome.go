package usecase

// Outcome is the result variant of one batch item.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skip"
	OutcomeFailed  Outcome = "fail"
)
