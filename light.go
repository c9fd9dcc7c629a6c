package sage

import (
	"context"
	"fmt"
)

// LightExecutive is the minimal single-threaded dispatcher (C2): no pause,
// no priority (forced to zero), no causality exceptions, and no
// detachable/asynchronous dispatch kinds. It exists for models that only
// need strict FIFO-at-equal-time synchronous dispatch and want to avoid
// the bookkeeping cost of the Full Executive.
type LightExecutive struct {
	queue    *eventQueue
	nextKey  EventKey
	state    *execFlags
	tNow     Tick
	events   *EventTarget
	logger   Logger
	eventSeq uint64
	rollback bool
}

// NewLightExecutive constructs a LightExecutive in state Stopped at the
// epoch (tick 0). Pass WithExecutiveKind(ExecutiveLightWithRollback) to
// enable Rollback.
func NewLightExecutive(opts ...ExecutiveOption) *LightExecutive {
	cfg := resolveExecutiveOptions(opts)
	return &LightExecutive{
		queue:    newEventQueue(),
		state:    newExecFlags(),
		events:   NewEventTarget(),
		logger:   cfg.logger,
		rollback: cfg.kind == ExecutiveLightWithRollback,
	}
}

// Events returns the EventTarget observability hooks fire on.
func (l *LightExecutive) Events() *EventTarget { return l.events }

// Now returns the current virtual time.
func (l *LightExecutive) Now() Tick { return l.tNow }

// State returns the current lifecycle state.
func (l *LightExecutive) State() ExecState { return l.state.Load() }

// RequestEvent enqueues cb to fire at the given virtual time, ignoring
// priority (LightExecutive forces priority to zero). Returns the event's
// key, usable with UnRequestEvent.
func (l *LightExecutive) RequestEvent(cb EventCallback, fireTime Tick, payload any, isDaemon bool) EventKey {
	if fireTime < l.tNow {
		fireTime = l.tNow
	}
	l.nextKey++
	key := l.nextKey
	l.queue.enqueue(&event{
		key:         key,
		fireTime:    fireTime,
		priority:    0,
		payload:     payload,
		callback:    cb,
		kind:        Synchronous,
		isDaemon:    isDaemon,
		submittedAt: l.tNow,
	})
	return key
}

// UnRequestEvent cancels a previously queued event. It is a no-op
// (returning false) if the key is unknown or already dispatched.
func (l *LightExecutive) UnRequestEvent(key EventKey) bool {
	return l.queue.cancelByKey(key)
}

// Start runs the dispatch loop until the queue holds only daemon events (or
// none at all), Stop is called, or ctx is cancelled. It returns ctx.Err() on cancellation,
// or an *ExecutiveRuntimeError if a callback panics.
func (l *LightExecutive) Start(ctx context.Context) (err error) {
	if !l.state.TryTransition(StateStopped, StateRunning) {
		return ErrExecutiveAlreadyRunning
	}
	l.events.DispatchEvent(&Notification{Type: NotifyExecutiveStarted})
	defer func() {
		l.state.Store(StateFinished)
		l.events.DispatchEvent(&Notification{Type: NotifyExecutiveFinished})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.state.Load() == StateFinished {
			return nil
		}

		nonDaemon, daemon := l.queue.countLive()
		if nonDaemon == 0 {
			if daemon == 0 {
				return nil
			}
			// Only daemons remain: per §3/§8 daemon liveness, dispatch
			// terminates rather than running out the daemon tail forever.
			return nil
		}

		e := l.queue.dequeue()
		if e == nil {
			return nil
		}

		if e.fireTime > l.tNow {
			l.tNow = e.fireTime
		}

		if err := l.dispatch(e); err != nil {
			return err
		}
	}
}

func (l *LightExecutive) dispatch(e *event) (err error) {
	l.events.DispatchEvent(&Notification{
		Type: NotifyEventAboutToFire, EventKey: e.key, Priority: e.priority,
		Tick: l.tNow, Payload: e.payload, Kind: e.kind,
	})

	defer func() {
		if r := recover(); r != nil {
			err = &ExecutiveRuntimeError{Value: r, EventKey: e.key}
		}
		l.events.DispatchEvent(&Notification{
			Type: NotifyEventHasCompleted, EventKey: e.key, Priority: e.priority,
			Tick: l.tNow, Payload: e.payload, Kind: e.kind,
		})
	}()

	if e.callback != nil {
		e.callback(&EventContext{
			Key: e.key, FireTime: l.tNow, Priority: e.priority,
			Payload: e.payload, Kind: e.kind,
		})
	}
	return nil
}

// Stop requests the dispatch loop end after the current event, by
// transitioning directly to Finished. Safe to call from within a callback.
func (l *LightExecutive) Stop() {
	for {
		s := l.state.Load()
		if s == StateFinished || s == StateStopped {
			return
		}
		if l.state.TryTransition(s, StateFinished) {
			return
		}
	}
}

// Rollback rewinds tNow to target, discarding every queued event submitted
// after target (decisions made during the span being erased) and keeping
// the rest as scheduled. Only available on an ExecutiveLightWithRollback
// instance; must not be called while Running.
func (l *LightExecutive) Rollback(target Tick) error {
	if !l.rollback {
		return ErrRollbackNotSupported
	}
	if l.state.Load() == StateRunning {
		return ErrExecutiveAlreadyRunning
	}
	if target > l.tNow {
		return ErrRollbackForward
	}

	kept := make([]*event, 0, len(l.queue.items))
	for _, e := range l.queue.items {
		if e.cancelled || e.submittedAt > target {
			continue
		}
		kept = append(kept, e)
	}

	next := newEventQueue()
	for _, e := range kept {
		e.cancelled = false
		e.heapIndex = -1
		next.enqueue(e)
	}
	l.queue = next
	l.tNow = target
	return nil
}

// Reset clears the queue and state, returning the executive to Stopped at
// the epoch. Must not be called while Running.
func (l *LightExecutive) Reset() error {
	if l.state.Load() == StateRunning {
		return fmt.Errorf("sage: %w", ErrExecutiveAlreadyRunning)
	}
	l.queue = newEventQueue()
	l.tNow = 0
	l.nextKey = 0
	l.state.Store(StateStopped)
	l.events.DispatchEvent(&Notification{Type: NotifyExecutiveReset})
	return nil
}
