package unwind

import "github.com/tidwall/btree"

// RunContext is the scratch space threaded through all steps of one saga
// run. It carries the caller's params/state value and the outputs of every
// completed step, keyed by step name. A RunContext is owned exclusively by
// one execution and discarded when Run returns; it is never shared across
// concurrent runs.
type RunContext[P any] struct {
	// Params is the caller-owned state for this run. Steps typically
	// record identifiers created by earlier steps here (the principal id
	// created in step 2, needed by the compensation of step 3).
	Params P

	outputs *btree.Map[StepName, StepOutput]
}

func newRunContext[P any](params P) *RunContext[P] {
	return &RunContext[P]{
		Params:  params,
		outputs: btree.NewMap[StepName, StepOutput](8),
	}
}

// Lookup retrieves the output of a previously completed step by name.
func (rc *RunContext[P]) Lookup(name StepName) (StepOutput, bool) {
	if rc.outputs == nil {
		return nil, false
	}
	return rc.outputs.Get(name)
}

func (rc *RunContext[P]) setOutput(name StepName, output StepOutput) {
	rc.outputs.Set(name, output)
}

func (rc *RunContext[P]) clearOutput(name StepName) {
	rc.outputs.Delete(name)
}

// LookupAs retrieves the output of a previously completed step with a type
// assertion. Returns the zero value and false if the step has not completed
// or its output has a different type.
func LookupAs[R any, P any](rc *RunContext[P], name StepName) (R, bool) {
	var zero R
	value, found := rc.Lookup(name)
	if !found {
		return zero, false
	}
	typed, ok := value.(R)
	if !ok {
		return zero, false
	}
	return typed, true
}
