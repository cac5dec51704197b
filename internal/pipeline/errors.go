package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoCampaign is returned when a TurnInput names no campaign.
var ErrNoCampaign = errors.New("turn input has no campaign id")

// StageError reports the stage a turn failed in. Failures before the
// commit stage write nothing.
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, or "" if err carries none.
func FailedStage(err error) StageName {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
