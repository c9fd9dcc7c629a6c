package sage

import "sync/atomic"

// ExecState is the lifecycle state of an Executive or LightExecutive.
//
//	Stopped (0)  -> Running (1)   [Start()]
//	Running (1)  -> Paused (2)    [Pause()]
//	Paused (2)   -> Running (1)   [Resume()]
//	Running (1)  -> Finished (3)  [queue drains / all events are daemon-only]
//	Paused (2)   -> Finished (3)  [Abort()]
//	Running (1)  -> Finished (3)  [Abort()]
//	Finished (3) -> Stopped (0)   [Reset()]
type ExecState int32

const (
	// StateStopped is the initial state, and the state after Reset.
	StateStopped ExecState = iota
	// StateRunning indicates the dispatcher loop is actively advancing time.
	StateRunning
	// StatePaused indicates Pause was called; the dispatcher loop is parked.
	StatePaused
	// StateFinished is terminal until Reset: the queue drained, or Abort ran.
	StateFinished
)

// String returns a human-readable representation of the state.
func (s ExecState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// StateValue is a lock-free atomic holder for a small integer-backed state
// type. It provides CAS-based transitions without exposing the zero-value
// footgun of a bare atomic.Uint32: callers always go through named states.
type StateValue[S ~int32] struct {
	v atomic.Int32
}

// NewStateValue creates a StateValue initialized to initial.
func NewStateValue[S ~int32](initial S) *StateValue[S] {
	sv := &StateValue[S]{}
	sv.v.Store(int32(initial))
	return sv
}

// Load returns the current state atomically.
func (s *StateValue[S]) Load() S {
	return S(s.v.Load())
}

// Store unconditionally sets the state. Prefer TryTransition for any state
// that other goroutines CAS against.
func (s *StateValue[S]) Store(state S) {
	s.v.Store(int32(state))
}

// TryTransition attempts to atomically move from "from" to "to", returning
// whether it succeeded.
func (s *StateValue[S]) TryTransition(from, to S) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}

// TransitionAny attempts to move from any of validFrom to "to", returning
// whether it succeeded and which source state matched.
func (s *StateValue[S]) TransitionAny(validFrom []S, to S) (S, bool) {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(int32(from), int32(to)) {
			return from, true
		}
	}
	var zero S
	return zero, false
}

// execFlags is a generic StateValue instantiated for ExecState, used by
// both LightExecutive and Executive to track run lifecycle.
type execFlags = StateValue[ExecState]

func newExecFlags() *execFlags {
	return NewStateValue(StateStopped)
}
