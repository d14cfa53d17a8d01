package issuance

import (
	"errors"
	"fmt"
)

// Stage is a step of the issuance state machine:
//
//	Preparing → Encrypting → Splitting → Sealing → Publishing → Persisting → Done
//
// Failed is reachable from every stage before Persisting. Failures during
// Persisting are reported as degradation, never as Failed.
type Stage int

const (
	StagePreparing Stage = iota
	StageEncrypting
	StageSplitting
	StageSealing
	StagePublishing
	StagePersisting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StagePreparing:
		return "preparing"
	case StageEncrypting:
		return "encrypting"
	case StageSplitting:
		return "splitting"
	case StageSealing:
		return "sealing"
	case StagePublishing:
		return "publishing"
	case StagePersisting:
		return "persisting"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError reports the stage an issuance failed in. It unwraps to the
// underlying error so errors.Is works against the interfaces taxonomy.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("issuance failed while %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return StageFailed, false
}

func fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
