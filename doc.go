// Package sage is an in-process discrete-event simulation kernel.
//
// # Architecture
//
// The kernel advances a monotonic, integer virtual clock by dispatching
// callbacks registered against a priority-ordered [eventQueue]. A
// [LightExecutive] offers a minimal, single-threaded dispatcher for
// synchronous-only models; the [Executive] ("Full") adds pause/resume,
// detachable (suspendable) tasks, asynchronous fire-and-forget tasks,
// causality diagnostics, and rescindable events.
//
// A [StateMachine] wraps lifecycle transitions (e.g. running -> idle) in a
// two-phase-commit protocol: Prepare handlers may veto a transition, Commit
// handlers apply it, and Rollback handlers undo partial Prepare work on
// failure.
//
// A [ResourceManager] mediates contention for [Resource] instances shared
// by [ResourceRequest] holders, using a scoring-based default selection
// strategy, an optional stack of access regulators, and a deadlock-free
// multi-resource reservation algorithm ([ReserveAll] / [AcquireAll]).
//
// An [ExecController] throttles wall-clock progress to a configurable
// multiple of simulated time and drives a periodic render tick.
//
// # Concurrency model
//
// The default model is single-threaded and cooperative: one dispatcher
// goroutine advances virtual time and runs Synchronous callbacks inline.
// Detachable callbacks run on their own goroutine, but the dispatcher hands
// off control to exactly one such goroutine at a time via an unbuffered
// "baton" channel, so only one piece of simulation logic ever executes
// concurrently with the dispatcher. Asynchronous callbacks are posted to an
// unrelated worker pool and are not synchronized with the virtual clock.
//
// # Usage
//
//	exec := sage.NewExecutive()
//	exec.RequestEvent(func(e *sage.EventContext) {
//	    fmt.Println("fired at", e.Now())
//	}, 10, 0, nil, sage.Synchronous)
//
//	if err := exec.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Types
//
// The package provides typed error kinds for kernel-detected violations:
// [CausalityError], [IllegalTransitionError], [TransitionFailure],
// [ResourceMismatchError], [InsufficientResourcePoolError],
// [InitializationCycleError], and [ExecutiveRuntimeError] (wraps a
// recovered panic from user-code dispatched during a run). All implement
// the standard [error] interface plus [errors.Unwrap] / [errors.Is] where
// applicable.
package sage
