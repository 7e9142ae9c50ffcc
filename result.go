package unwind

// CompensationState reports how rollback went after a forward failure.
type CompensationState int

const (
	// CompensationNotApplicable: nothing had completed yet (or the run
	// succeeded), so no rollback ran.
	CompensationNotApplicable CompensationState = iota

	// CompensationComplete: every completed step with a compensation was
	// undone successfully.
	CompensationComplete

	// CompensationPartial: at least one undo failed. Real, lingering
	// inconsistency; callers must surface this to operators, not hide it.
	CompensationPartial
)

func (s CompensationState) String() string {
	switch s {
	case CompensationNotApplicable:
		return "not_applicable"
	case CompensationComplete:
		return "complete"
	case CompensationPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Engine.Run invocation.
//
// On success, Output holds the final step's output and FailedStep/Cause are
// zero. On failure, FailedStep and Cause identify what went wrong,
// Compensation reports how rollback went, and FailedUndos lists exactly the
// steps whose compensation failed (empty unless Compensation is
// CompensationPartial).
type Result struct {
	RunID  string
	Output StepOutput

	FailedStep   StepName
	Cause        error
	Compensation CompensationState

	// FailedUndos names the steps whose compensation failed, in the order
	// the compensations were attempted (reverse completion order).
	FailedUndos []StepName

	// UndoErr aggregates every compensation failure.
	UndoErr error

	// Trace is the ordered record of every step attempted in this run.
	// Diagnostics only; discarded with the Result.
	Trace []RecordEntry
}

// Succeeded reports whether every step completed.
func (r *Result) Succeeded() bool {
	return r.Cause == nil
}

// Err returns nil on success, or a *SagaError describing the failure.
func (r *Result) Err() error {
	if r.Succeeded() {
		return nil
	}
	return &SagaError{Result: r}
}
