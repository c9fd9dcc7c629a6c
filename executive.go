package sage

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Executive is the Full Executive (C3): adds detachable and asynchronous
// dispatch, pause/resume, rescindable events, causality diagnostics, and
// Join, over the minimal LightExecutive (C2).
type Executive struct {
	schedMu sync.Mutex // guards queue, nextKey, tNow, lastEventServed, currentPriority
	queue   *eventQueue
	nextKey EventKey
	tNow    Tick

	lastEventServed Tick
	currentPriority Priority
	runNumber       uint64
	eventCount      uint64

	state   *execFlags
	pauseMu sync.Mutex
	pauseCh chan struct{}

	abortRequested atomic.Bool
	abortCh        chan struct{}

	events *EventTarget
	logger Logger

	causality CausalityPolicy

	live *liveRegistry

	bookMu         sync.Mutex
	completedEvents map[EventKey]struct{}
	joinListeners   map[EventKey][]func()

	asyncJobs   chan func()
	asyncWG     sync.WaitGroup
	asyncOnce   sync.Once
	minWorkers  int
	maxWorkers  int
	asyncActive atomic.Int64
}

// NewExecutive constructs a Full Executive in state Stopped at the epoch.
func NewExecutive(opts ...ExecutiveOption) *Executive {
	cfg := resolveExecutiveOptions(opts)
	e := &Executive{
		queue:           newEventQueue(),
		state:           newExecFlags(),
		events:          NewEventTarget(),
		logger:          cfg.logger,
		causality:       cfg.causality,
		live:            newLiveRegistry(),
		completedEvents: make(map[EventKey]struct{}),
		joinListeners:   make(map[EventKey][]func()),
		minWorkers:      cfg.minWorkerThreads,
		maxWorkers:      cfg.maxWorkerThreads,
		asyncJobs:       make(chan func(), 256),
		abortCh:         make(chan struct{}),
	}
	return e
}

// Events returns the EventTarget observability hooks fire on.
func (e *Executive) Events() *EventTarget { return e.events }

// Now returns the current virtual time.
func (e *Executive) Now() Tick {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.tNow
}

// LastEventServed returns the fire_time of the most recently dispatched
// event.
func (e *Executive) LastEventServed() Tick {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.lastEventServed
}

// CurrentPriorityLevel returns the priority the currently (or most
// recently) dispatched event fired at.
func (e *Executive) CurrentPriorityLevel() Priority {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.currentPriority
}

// State returns the current lifecycle state.
func (e *Executive) State() ExecState { return e.state.Load() }

// RunNumber returns how many times Start has been (successfully) entered.
func (e *Executive) RunNumber() uint64 { return atomic.LoadUint64(&e.runNumber) }

// EventCount returns the number of events dispatched so far this run.
func (e *Executive) EventCount() uint64 { return atomic.LoadUint64(&e.eventCount) }

// LiveDetachableEvents returns the keys of currently in-flight detachable
// root events.
func (e *Executive) LiveDetachableEvents() []EventKey {
	ctrls := e.live.snapshot()
	out := make([]EventKey, len(ctrls))
	for i, c := range ctrls {
		out[i] = c.rootKey
	}
	return out
}

// EventList returns a diagnostic snapshot of currently queued events.
func (e *Executive) EventList() []EventKey {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	items := e.queue.snapshot()
	out := make([]EventKey, len(items))
	for i, it := range items {
		out[i] = it.key
	}
	return out
}

// SetStartTime sets the epoch tNow advances from. Must be called before
// Start (or after Reset).
func (e *Executive) SetStartTime(t Tick) error {
	if e.state.Load() != StateStopped {
		return ErrExecutiveAlreadyRunning
	}
	e.schedMu.Lock()
	e.tNow = t
	e.schedMu.Unlock()
	return nil
}

func (e *Executive) nextEventKey() EventKey {
	e.nextKey++
	return e.nextKey
}

// RequestEvent enqueues cb to fire at fireTime with the given priority and
// dispatch kind, returning its key.
func (e *Executive) RequestEvent(cb EventCallback, fireTime Tick, priority Priority, payload any, kind DispatchKind) (EventKey, error) {
	return e.request(cb, fireTime, priority, payload, kind, false)
}

// RequestDaemonEvent is RequestEvent for an event that does not by itself
// keep the executive alive.
func (e *Executive) RequestDaemonEvent(cb EventCallback, fireTime Tick, priority Priority, payload any, kind DispatchKind) (EventKey, error) {
	return e.request(cb, fireTime, priority, payload, kind, true)
}

// RequestImmediateEvent enqueues cb at the current tNow and current
// priority level.
func (e *Executive) RequestImmediateEvent(cb EventCallback, payload any, kind DispatchKind) (EventKey, error) {
	return e.request(cb, e.Now(), e.CurrentPriorityLevel(), payload, kind, false)
}

func (e *Executive) request(cb EventCallback, fireTime Tick, priority Priority, payload any, kind DispatchKind, daemon bool) (EventKey, error) {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	if fireTime < e.tNow {
		switch e.causality {
		case CausalityRaise:
			return 0, &CausalityError{FireTime: fireTime, Now: e.tNow}
		default:
			fireTime = e.tNow
		}
	}

	key := e.nextEventKeyLocked()
	e.queue.enqueue(&event{
		key:         key,
		fireTime:    fireTime,
		priority:    priority,
		payload:     payload,
		callback:    cb,
		kind:        kind,
		isDaemon:    daemon,
		submittedAt: e.tNow,
	})
	return key, nil
}

func (e *Executive) nextEventKeyLocked() EventKey {
	e.nextKey++
	return e.nextKey
}

// UnRequestEvent cancels the event named by key. Returns whether an entry
// was found and not already dispatched.
func (e *Executive) UnRequestEvent(key EventKey) bool {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.queue.cancelByKey(key)
}

// UnRequestEventsBy cancels every queued event for which pred returns true.
func (e *Executive) UnRequestEventsBy(pred func(key EventKey, payload any, kind DispatchKind) bool) int {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.queue.cancelByPredicate(pred)
}

// UnRequestEventsByTarget cancels every queued event whose payload equals
// target (via ==; non-comparable payloads never match).
func (e *Executive) UnRequestEventsByTarget(target any) (n int) {
	defer func() { recover() }() //nolint:errcheck // non-comparable payload: no matches
	return e.UnRequestEventsBy(func(_ EventKey, payload any, _ DispatchKind) bool {
		return payload == target
	})
}

// UnRequestEventsByCallback cancels every queued event whose callback
// shares cb's underlying function pointer.
func (e *Executive) UnRequestEventsByCallback(cb EventCallback) int {
	target := reflect.ValueOf(cb).Pointer()
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	n := 0
	for _, it := range e.queue.items {
		if !it.cancelled && it.callback != nil && reflect.ValueOf(it.callback).Pointer() == target {
			it.cancelled = true
			n++
		}
	}
	return n
}

// scheduleResume enqueues a resume event for an already-started detachable
// controller at the given time and priority.
func (e *Executive) scheduleResume(c *DetachableController, at Tick, p Priority) {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if at < e.tNow {
		at = e.tNow
	}
	key := e.nextEventKeyLocked()
	e.queue.enqueue(&event{
		key: key, fireTime: at, priority: p, kind: Detachable,
		isDaemon: false, submittedAt: e.tNow, resumeController: c,
	})
}

// join suspends c until every one of keys has completed.
func (e *Executive) join(c *DetachableController, keys []EventKey) {
	e.bookMu.Lock()
	var pending []EventKey
	for _, k := range keys {
		if _, done := e.completedEvents[k]; !done {
			pending = append(pending, k)
		}
	}
	if len(pending) == 0 {
		e.bookMu.Unlock()
		return
	}
	counter := new(atomic.Int32)
	counter.Store(int32(len(pending)))
	for _, k := range pending {
		e.joinListeners[k] = append(e.joinListeners[k], func() {
			if counter.Add(-1) == 0 {
				c.Resume()
			}
		})
	}
	e.bookMu.Unlock()
	c.Suspend()
}

func (e *Executive) markCompleted(key EventKey) {
	e.bookMu.Lock()
	e.completedEvents[key] = struct{}{}
	listeners := e.joinListeners[key]
	delete(e.joinListeners, key)
	e.bookMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Start runs the dispatch loop until the queue holds only daemon events,
// ctx is cancelled, or Abort is called. It returns ctx.Err() on
// cancellation, or an *ExecutiveRuntimeError if a callback panics.
func (e *Executive) Start(ctx context.Context) error {
	if _, ok := e.state.TransitionAny([]ExecState{StateStopped, StatePaused}, StateRunning); !ok {
		return ErrExecutiveAlreadyRunning
	}
	atomic.AddUint64(&e.runNumber, 1)
	e.startAsyncWorkers()
	e.events.DispatchEvent(&Notification{Type: NotifyExecutiveStarted})

	for {
		select {
		case <-ctx.Done():
			e.abortLocked(ctx.Err())
			return ctx.Err()
		case <-e.abortCh:
			e.abortLocked(nil)
			return nil
		default:
		}

		if e.state.Load() == StatePaused {
			e.pauseMu.Lock()
			ch := e.pauseCh
			e.pauseMu.Unlock()
			if ch == nil {
				continue
			}
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				e.abortLocked(ctx.Err())
				return ctx.Err()
			case <-e.abortCh:
				e.abortLocked(nil)
				return nil
			}
		}

		e.schedMu.Lock()
		nonDaemon, daemon := e.queue.countLive()
		if nonDaemon == 0 {
			e.schedMu.Unlock()
			if e.live.len() > 0 {
				e.logDeadlock()
			}
			_ = daemon
			e.finish()
			return nil
		}
		ev := e.queue.dequeue()
		if ev == nil {
			e.schedMu.Unlock()
			e.finish()
			return nil
		}
		clockAdvanced := ev.fireTime > e.tNow
		newTick := ev.fireTime
		if clockAdvanced {
			e.tNow = newTick
		}
		e.lastEventServed = e.tNow
		e.currentPriority = ev.priority
		e.schedMu.Unlock()

		// Dispatched outside schedMu: listeners (e.g. ExecController) may
		// need to call back into RequestEvent, which would deadlock against
		// a goroutine-local, non-reentrant mutex otherwise.
		if clockAdvanced {
			e.events.DispatchEvent(&Notification{Type: NotifyClockAboutToChange, Tick: newTick})
		}

		atomic.AddUint64(&e.eventCount, 1)

		if err := e.dispatch(ev); err != nil {
			e.abortLocked(err)
			return err
		}
	}
}

func (e *Executive) dispatch(ev *event) error {
	e.events.DispatchEvent(&Notification{
		Type: NotifyEventAboutToFire, EventKey: ev.key, Priority: ev.priority,
		Tick: e.Now(), Payload: ev.payload, Kind: ev.kind,
	})

	var err error
	switch ev.kind {
	case Synchronous:
		err = e.dispatchSynchronous(ev)
	case Detachable:
		err = e.dispatchDetachable(ev)
	case Asynchronous:
		e.dispatchAsynchronous(ev)
	}

	e.events.DispatchEvent(&Notification{
		Type: NotifyEventHasCompleted, EventKey: ev.key, Priority: ev.priority,
		Tick: e.Now(), Payload: ev.payload, Kind: ev.kind,
	})
	return err
}

func (e *Executive) dispatchSynchronous(ev *event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ExecutiveRuntimeError{Value: r, EventKey: ev.key}
		}
		e.markCompleted(ev.key)
	}()
	if ev.callback != nil {
		ev.callback(&EventContext{Key: ev.key, FireTime: e.Now(), Priority: ev.priority, Payload: ev.payload, Kind: Synchronous, exec: e})
	}
	return nil
}

func (e *Executive) dispatchDetachable(ev *event) error {
	var c *DetachableController
	if ev.resumeController != nil {
		c = ev.resumeController
		c.toTask <- struct{}{}
	} else {
		c = newDetachableController(e, ev.key)
		e.live.put(c)
		cb := ev.callback
		ctxVal := &EventContext{Key: ev.key, FireTime: e.Now(), Priority: ev.priority, Payload: ev.payload, Kind: Detachable, exec: e, ctrl: c}
		go func() {
			defer func() {
				r := recover()
				c.mu.Lock()
				c.done = true
				c.mu.Unlock()
				c.panicVal = r
				c.toDriver <- struct{}{}
			}()
			if cb != nil {
				cb(ctxVal)
			}
		}()
	}

	<-c.toDriver

	c.mu.Lock()
	done := c.done
	aborted := c.aborted
	c.mu.Unlock()

	if done {
		e.live.remove(c.rootKey)
		e.markCompleted(c.rootKey)
		if c.panicVal != nil && !aborted {
			return &ExecutiveRuntimeError{Value: c.panicVal, EventKey: c.rootKey}
		}
	}
	return nil
}

func (e *Executive) dispatchAsynchronous(ev *event) {
	cb := ev.callback
	key := ev.key
	payload := ev.payload
	priority := ev.priority
	job := func() {
		defer func() {
			if r := recover(); r != nil && e.logger.IsEnabled(LevelError) {
				e.logger.Log(LogEntry{Level: LevelError, Category: "executive", Message: "asynchronous callback panicked", EventKey: key, Err: panicToError(r)})
			}
			e.markCompleted(key)
		}()
		if cb != nil {
			cb(&EventContext{Key: key, FireTime: e.Now(), Priority: priority, Payload: payload, Kind: Asynchronous, exec: e})
		}
	}
	select {
	case e.asyncJobs <- job:
		return
	default:
	}

	// Pool queue is full: spawn an overflow worker up to maxWorkerThreads
	// beyond the persistent pool, then fall back to blocking enqueue.
	extra := int64(e.maxWorkers - e.minWorkers)
	if extra > 0 && e.asyncActive.Add(1) <= extra {
		e.asyncWG.Add(1)
		go func() {
			defer e.asyncWG.Done()
			defer e.asyncActive.Add(-1)
			job()
		}()
		return
	}
	if extra > 0 {
		e.asyncActive.Add(-1)
	}
	e.asyncJobs <- job
}

func (e *Executive) startAsyncWorkers() {
	e.asyncOnce.Do(func() {
		n := e.minWorkers
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			e.asyncWG.Add(1)
			go e.asyncWorker()
		}
	})
}

func (e *Executive) asyncWorker() {
	defer e.asyncWG.Done()
	for job := range e.asyncJobs {
		job()
	}
}

// Pause transitions Running->Paused and returns at once; it does not wait
// for an event that is being dispatched, which runs to completion. The
// dispatcher checks the state between dispatches, so no further event fires
// while paused.
func (e *Executive) Pause() error {
	if !e.state.TryTransition(StateRunning, StatePaused) {
		return ErrExecutiveNotRunning
	}
	e.pauseMu.Lock()
	e.pauseCh = make(chan struct{})
	e.pauseMu.Unlock()
	e.events.DispatchEvent(&Notification{Type: NotifyExecutivePaused})
	return nil
}

// Resume transitions Paused->Running, waking the dispatch loop.
func (e *Executive) Resume() error {
	if !e.state.TryTransition(StatePaused, StateRunning) {
		return ErrExecutiveNotRunning
	}
	e.pauseMu.Lock()
	ch := e.pauseCh
	e.pauseMu.Unlock()
	if ch != nil {
		close(ch)
	}
	e.events.DispatchEvent(&Notification{Type: NotifyExecutiveResumed})
	return nil
}

// Join suspends the calling detachable task until every event in keys has
// completed. Must be called from within a Detachable callback's goroutine.
func (e *Executive) Join(ctx *EventContext, keys ...EventKey) {
	if ctx.Kind != Detachable || ctx.ctrl == nil {
		panic("sage: Join requires a detachable context")
	}
	e.join(ctx.ctrl, keys)
}

// Abort requests teardown of all live detachables (firing their abort
// handlers) and draining of the queue. The actual teardown always runs on
// the dispatch loop's own goroutine, between dispatches or while a
// detachable is suspended: Abort only signals the request and is safe to
// call from any goroutine, including from within a callback.
func (e *Executive) Abort() {
	if e.abortRequested.CompareAndSwap(false, true) {
		close(e.abortCh)
	}
}

func (e *Executive) abortLocked(cause error) {
	for _, c := range e.live.snapshot() {
		c.mu.Lock()
		c.aborted = true
		handler := c.abortHandler
		args := c.abortHandlerArgs
		c.mu.Unlock()

		if handler != nil {
			func() {
				defer func() { recover() }() //nolint:errcheck // abort handlers must not crash teardown
				handler(args)
			}()
		}

		c.toTask <- struct{}{}
		<-c.toDriver
		e.live.remove(c.rootKey)
	}

	e.schedMu.Lock()
	e.queue = newEventQueue()
	e.schedMu.Unlock()

	e.state.Store(StateFinished)
	e.events.DispatchEvent(&Notification{Type: NotifyExecutiveAborted})
	e.finish()
}

func (e *Executive) finish() {
	e.state.Store(StateFinished)
	close(e.asyncJobs)
	e.asyncWG.Wait()
	e.events.DispatchEvent(&Notification{Type: NotifyExecutiveFinished})
}

func (e *Executive) logDeadlock() {
	if !e.logger.IsEnabled(LevelWarn) {
		return
	}
	for _, c := range e.live.snapshot() {
		e.logger.Log(LogEntry{
			Level: LevelWarn, Category: "executive",
			Message:  "simulation ended with a live detachable waiter",
			EventKey: c.rootKey, Tick: e.Now(),
			Context: map[string]any{"waiting": c.IsWaiting(), "time_of_last_wait": c.TimeOfLastWait()},
		})
	}
}

// Reset clears the queue and all bookkeeping, returning the executive to
// Stopped at the epoch. Must not be called while Running or Paused.
func (e *Executive) Reset() error {
	s := e.state.Load()
	if s == StateRunning || s == StatePaused {
		return ErrExecutiveAlreadyRunning
	}
	e.schedMu.Lock()
	e.queue = newEventQueue()
	e.tNow = 0
	e.nextKey = 0
	e.lastEventServed = 0
	e.currentPriority = 0
	e.schedMu.Unlock()

	e.bookMu.Lock()
	e.completedEvents = make(map[EventKey]struct{})
	e.joinListeners = make(map[EventKey][]func())
	e.bookMu.Unlock()

	e.live = newLiveRegistry()
	e.asyncJobs = make(chan func(), 256)
	e.asyncOnce = sync.Once{}
	e.abortCh = make(chan struct{})
	e.abortRequested.Store(false)
	e.state.Store(StateStopped)
	e.events.DispatchEvent(&Notification{Type: NotifyExecutiveReset})
	return nil
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &ExecutiveRuntimeError{Value: r}
}
