package unwind

import "context"

// StepName is a unique name for a saga step, used in diagnostics and for
// looking up the step's output from later steps.
type StepName string

// String returns the string representation of the StepName.
func (n StepName) String() string {
	return string(n)
}

// StepOutput is whatever a forward function produced. Later steps retrieve
// it through the RunContext; the matching compensation receives it back
// when rollback runs.
type StepOutput any

// ForwardFunc performs a step's work. The returned output is recorded and
// published to later steps under the step's name.
type ForwardFunc[P any] func(ctx context.Context, rc *RunContext[P]) (StepOutput, error)

// CompensateFunc semantically undoes a previously completed step. It is
// only ever invoked after the matching forward function succeeded for the
// same RunContext, and receives the output that forward produced.
type CompensateFunc[P any] func(ctx context.Context, rc *RunContext[P], output StepOutput) error

// Step is a named unit of work with a forward action and an optional
// compensating action. Immutable once constructed.
type Step[P any] struct {
	// Name identifies the step within one saga run. Names must be unique
	// across the step list handed to Run.
	Name StepName

	// Forward performs the step. Required.
	Forward ForwardFunc[P]

	// Compensate undoes the step during rollback. Nil means the step is
	// inherently safe to skip while unwinding (a pure read, or the final
	// step of a saga whose outer rollback already covers it).
	Compensate CompensateFunc[P]

	// NonCritical marks a step whose forward failure is logged and
	// tolerated instead of triggering rollback. The run continues to the
	// next step as if this one had been skipped.
	NonCritical bool
}

// NewStep constructs a Step from a forward/compensate function pair.
func NewStep[P any](name StepName, forward ForwardFunc[P], compensate CompensateFunc[P]) Step[P] {
	return Step[P]{
		Name:       name,
		Forward:    forward,
		Compensate: compensate,
	}
}

// NewReadOnlyStep constructs a Step with no compensation.
func NewReadOnlyStep[P any](name StepName, forward ForwardFunc[P]) Step[P] {
	return Step[P]{
		Name:    name,
		Forward: forward,
	}
}

// AsNonCritical returns a copy of the step whose forward failure is
// tolerated rather than fatal.
func (s Step[P]) AsNonCritical() Step[P] {
	s.NonCritical = true
	return s
}
