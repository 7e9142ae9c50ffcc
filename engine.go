package unwind

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Engine executes an ordered list of steps, tracks what completed, and runs
// compensations in reverse completion order when a step fails. An Engine
// holds no per-run state: reusing one across invocations (including
// concurrently) is safe, each Run gets its own RunContext and Result.
type Engine[P any] struct {
	log logr.Logger
}

// NewEngine creates an Engine. Pass logr.Discard() if you don't want logs.
func NewEngine[P any](log logr.Logger) *Engine[P] {
	return &Engine[P]{log: log}
}

// Run executes the steps in order against a fresh RunContext wrapping
// params.
//
// On the first fatal forward failure, forward progress stops and every
// previously-completed step with a compensation is undone in reverse
// completion order. A failed undo is recorded and does not stop the
// remaining undos. The error returned on failure is always a *SagaError
// carrying the full Result.
//
// The engine never retries a step. Cancellation of ctx fails the in-flight
// step like any other error; rollback still runs, under a context detached
// from the caller's cancellation.
func (e *Engine[P]) Run(ctx context.Context, steps []Step[P], params P) (*Result, error) {
	if err := validateSteps(steps); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := e.log.WithValues("run_id", runID)
	rc := newRunContext(params)

	result := &Result{
		RunID: runID,
		Trace: make([]RecordEntry, 0, len(steps)),
	}

	// completed indexes into result.Trace, in completion order. Only
	// entries listed here are candidates for compensation.
	completed := make([]int, 0, len(steps))

	for _, step := range steps {
		log.V(1).Info("running step", "step", step.Name)

		entry := RecordEntry{
			Step:      step.Name,
			StartTime: time.Now(),
			State:     StepRunning,
		}
		output, err := step.Forward(ctx, rc)
		entry.EndTime = time.Now()

		if err != nil {
			entry.Err = err
			if step.NonCritical {
				// Tolerated failure: log it, record it, keep going. The
				// step contributed no output, so nothing to compensate.
				entry.State = StepSkipped
				result.Trace = append(result.Trace, entry)
				log.Error(err, "non-critical step failed, continuing", "step", step.Name)
				continue
			}

			entry.State = StepFailed
			result.Trace = append(result.Trace, entry)
			result.FailedStep = step.Name
			result.Cause = err
			log.Error(err, "step failed, unwinding", "step", step.Name)

			e.compensate(ctx, log, steps, rc, result, completed)
			return result, result.Err()
		}

		entry.State = StepCompleted
		entry.Output = output
		result.Trace = append(result.Trace, entry)
		completed = append(completed, len(result.Trace)-1)
		rc.setOutput(step.Name, output)
	}

	// The last completed entry, not the last trace entry: a tolerated
	// non-critical failure at the tail contributes no output.
	if len(completed) > 0 {
		result.Output = result.Trace[completed[len(completed)-1]].Output
	}
	log.V(1).Info("saga completed", "steps", len(steps))
	return result, nil
}

// compensate undoes the completed steps in reverse completion order.
// Best effort: every compensation is attempted even when earlier ones (in
// undo order) fail.
func (e *Engine[P]) compensate(ctx context.Context, log logr.Logger, steps []Step[P], rc *RunContext[P], result *Result, completed []int) {
	if len(completed) == 0 {
		result.Compensation = CompensationNotApplicable
		return
	}

	// Rollback must run even when the caller's context was the reason the
	// forward step failed.
	undoCtx := context.WithoutCancel(ctx)

	byName := make(map[StepName]Step[P], len(steps))
	for _, s := range steps {
		byName[s.Name] = s
	}

	var undoErrs *multierror.Error
	for i := len(completed) - 1; i >= 0; i-- {
		entry := &result.Trace[completed[i]]
		step := byName[entry.Step]
		if step.Compensate == nil {
			// Inherently safe to skip: the step created nothing.
			continue
		}

		log.V(1).Info("compensating step", "step", entry.Step)
		entry.State = StepCompensating
		if err := step.Compensate(undoCtx, rc, entry.Output); err != nil {
			entry.State = StepCompensateFailed
			compErr := &CompensationError{Step: entry.Step, Err: err}
			undoErrs = multierror.Append(undoErrs, compErr)
			result.FailedUndos = append(result.FailedUndos, entry.Step)
			log.Error(err, "compensation failed, continuing with earlier steps", "step", entry.Step)
			continue
		}
		entry.State = StepCompensated
		rc.clearOutput(entry.Step)
	}

	if undoErrs != nil {
		result.Compensation = CompensationPartial
		result.UndoErr = undoErrs.ErrorOrNil()
		log.Error(result.UndoErr, "rollback incomplete",
			"failed_step", result.FailedStep,
			"failed_undos", joinStepNames(result.FailedUndos))
		return
	}
	result.Compensation = CompensationComplete
}

func validateSteps[P any](steps []Step[P]) error {
	if len(steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[StepName]struct{}, len(steps))
	for _, s := range steps {
		if s.Name == "" {
			return ErrUnnamedStep
		}
		if s.Forward == nil {
			return fmt.Errorf("%w: %q", ErrNilForward, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateStep, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
