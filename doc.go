// Package unwind runs an ordered sequence of steps against heterogeneous
// backends that offer no shared transaction, and guarantees that when any
// step fails, every previously-completed step is undone in reverse order.
//
// The saga pattern provides useful semantics for unwinding a multi-backend
// operation when any part of it fails.  For more on distributed sagas, see
// this 2017 JOTB talk by Caitie McCaffrey:
// https://www.youtube.com/watch?v=0UTOLRTwOX0
//
// Overview
//
//  1. Define your steps:
//     - Create a forward and an undo function for each step in your saga.
//     - Use NewStep to package these functions into a Step. Steps that
//       create nothing (pure reads) use NewReadOnlyStep and are skipped
//       during rollback.
//  2. Run your saga:
//     - Create an Engine with NewEngine, passing in your logger.
//     - Hand the ordered Step slice to Engine.Run together with a
//       caller-owned params/state value. Steps communicate through the
//       RunContext: outputs of completed steps can be looked up by step
//       name with LookupAs.
//  3. Inspect the outcome:
//     - Run returns a Result. On failure the error is a *SagaError that
//       names the failing step, the cause, and whether rollback completed
//       fully or left lingering state behind (CompensationPartial).
//
// Rollback is best effort: a failed undo never stops the remaining undos
// from being attempted, and every undo failure is reported, not swallowed.
// The engine never retries a step; retries, if desired, belong to the
// caller, who can simply invoke Run again with a fresh params value.
package unwind
