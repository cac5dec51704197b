package commit

import (
	"errors"
	"fmt"
)

// Step names a stage of the commit sequence.
type Step string

const (
	StepValidate Step = "validate"
	StepBegin    Step = "begin"
	StepReserve  Step = "reserve"
	StepImplied  Step = "implied_events"
	StepAppend   Step = "append"
	StepProject  Step = "project"
	StepSetTurn  Step = "set_turn"
	StepRender   Step = "rendered_turn"
	StepCommit   Step = "commit"
)

// Steps lists the commit sequence in order.
func Steps() []Step {
	return []Step{StepValidate, StepBegin, StepReserve, StepImplied, StepAppend, StepProject, StepSetTurn, StepRender, StepCommit}
}

// CommitError reports the step at which a turn failed. The transaction has
// been rolled back by the time the caller sees it.
type CommitError struct {
	Step       Step
	CampaignID string
	Err        error
}

// Error implements the error interface.
func (e *CommitError) Error() string {
	return fmt.Sprintf("commit turn (campaign=%s, step=%s): %v", e.CampaignID, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommitError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step a commit failed at, or "" when err is not a
// CommitError. Uses errors.As to handle wrapped errors.
func FailedStep(err error) Step {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Step
	}
	return ""
}

// ErrInjected is the default error returned by fault hooks in tests.
var ErrInjected = errors.New("injected commit fault")
