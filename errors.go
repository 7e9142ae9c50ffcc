package unwind

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the engine, the backend adapters and the
// workflows. Adapters classify raw backend failures into these before the
// engine ever sees them, so step errors can be matched with errors.Is.
var (
	// ErrConflict marks a natural-key collision (duplicate email, tax id,
	// primary key). Recoverable: the caller can pick another key or treat
	// the operation as idempotent.
	ErrConflict = errors.New("already exists")

	// ErrNotFound marks a missing referenced entity. Terminal for the
	// operation that needed it.
	ErrNotFound = errors.New("not found")

	// ErrNoSteps is returned by Run when the step list is empty.
	ErrNoSteps = errors.New("saga has no steps")

	// ErrDuplicateStep is returned by Run when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrNilForward is returned by Run when a step has no forward function.
	ErrNilForward = errors.New("step has no forward function")

	// ErrUnnamedStep is returned by Run when a step has an empty name.
	ErrUnnamedStep = errors.New("step has no name")
)

// AdapterError wraps an identity/store/blob failure that is not a
// recognized conflict or not-found. Terminal for the step that hit it.
type AdapterError struct {
	error
}

// AdapterFailed wraps a raw backend error in an AdapterError, tagged with
// the operation that failed.
func AdapterFailed(op string, err error) error {
	return &AdapterError{fmt.Errorf("%s: %w", op, err)}
}

// Unwrap exposes the underlying backend error for errors.Is/As.
func (e *AdapterError) Unwrap() error {
	return e.error
}

// CompensationError records the failure of a single undo action. It is
// always surfaced in the Result, never silently dropped.
type CompensationError struct {
	Step StepName
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation for step %q failed: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// SagaError is the single coherent failure returned by Engine.Run. It
// carries the full Result so callers can recover the failing step and the
// compensation status with errors.As.
type SagaError struct {
	Result *Result
}

func (e *SagaError) Error() string {
	r := e.Result
	switch r.Compensation {
	case CompensationPartial:
		return fmt.Sprintf("saga failed at step %q: %v (cleanup incomplete: %s)",
			r.FailedStep, r.Cause, joinStepNames(r.FailedUndos))
	case CompensationComplete:
		return fmt.Sprintf("saga failed at step %q: %v (rolled back)", r.FailedStep, r.Cause)
	default:
		return fmt.Sprintf("saga failed at step %q: %v", r.FailedStep, r.Cause)
	}
}

// Unwrap exposes the forward failure that triggered the rollback.
func (e *SagaError) Unwrap() error {
	return e.Result.Cause
}

func joinStepNames(names []StepName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}

// UserMessage maps an error from a saga run to text safe to show an end
// user. Raw backend error text is never exposed.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var sagaErr *SagaError
	if errors.As(err, &sagaErr) && sagaErr.Result.Compensation == CompensationPartial {
		return "operation failed; some cleanup may be required"
	}
	switch {
	case errors.Is(err, ErrConflict):
		return "this already exists"
	case errors.Is(err, ErrNotFound):
		return "source not found"
	default:
		return "operation failed and was rolled back"
	}
}
