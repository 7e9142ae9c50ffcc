package unwind

import "time"

// StepState represents the execution state of a step within one run.
type StepState int

const (
	StepPending StepState = iota
	StepRunning
	StepCompleted
	StepFailed
	StepSkipped
	StepCompensating
	StepCompensated
	StepCompensateFailed
)

func (s StepState) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	case StepCompensating:
		return "compensating"
	case StepCompensated:
		return "compensated"
	case StepCompensateFailed:
		return "compensate_failed"
	default:
		return "unknown"
	}
}

// RecordEntry tracks one step of a run: its output, timing and final state.
// The ordered entry list is what drives compensation: what actually
// completed decides what gets undone, not hand-tracked booleans.
type RecordEntry struct {
	Step      StepName
	Output    StepOutput
	StartTime time.Time
	EndTime   time.Time
	State     StepState
	Err       error
}
