package sage

import (
	"runtime"
	"sync"
)

// DetachableController is the per-in-flight-detachable-event handle (C4).
// User code retrieves its controller for the currently executing event via
// EventContext.Controller. Exactly one detachable task is ever logically
// runnable at a time; the dispatcher and the task goroutine hand off
// control across an unbuffered "baton" channel so at most one of them is
// doing simulation work at any instant, giving the appearance of
// concurrency without its hazards (see §5).
type DetachableController struct {
	exec     *Executive
	rootKey  EventKey
	toTask   chan struct{} // dispatcher -> task: run/resume
	toDriver chan struct{} // task -> dispatcher: suspended or completed

	mu                 sync.Mutex
	waiting            bool
	timeOfLastWait     Tick
	suspendedBacktrace []byte
	abortHandler       func(args any)
	abortHandlerArgs   any
	aborted            bool
	done               bool
	// panicVal is set by the task goroutine immediately before its final
	// send on toDriver, and read by the dispatcher only after receiving
	// from toDriver: the channel operation provides the happens-before
	// edge, so no mutex guards this field.
	panicVal any
}

func newDetachableController(exec *Executive, rootKey EventKey) *DetachableController {
	return &DetachableController{
		exec:     exec,
		rootKey:  rootKey,
		toTask:   make(chan struct{}),
		toDriver: make(chan struct{}),
	}
}

// IsWaiting reports whether the task is currently suspended.
func (c *DetachableController) IsWaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// TimeOfLastWait returns the virtual time at which the task last suspended.
func (c *DetachableController) TimeOfLastWait() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeOfLastWait
}

// SuspendedStackTrace returns a snapshot of the goroutine stack captured at
// the most recent Suspend call, for deadlock diagnostics.
func (c *DetachableController) SuspendedStackTrace() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspendedBacktrace
}

// SetAbortHandler attaches fn to run (with args) if this task is torn down
// by Executive.Abort before it completes.
func (c *DetachableController) SetAbortHandler(fn func(args any), args any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortHandler = fn
	c.abortHandlerArgs = args
}

// Suspend yields control back to the dispatcher, which goes on dispatching
// other events. The task continues only when a resume event for it fires
// (via Resume, SuspendUntil's resume event, Join, or a satisfied resource
// wait) or the executive aborts.
//
// If the task was aborted while suspended, Suspend never returns: it calls
// runtime.Goexit so the task's goroutine unwinds (running its deferred
// handlers) without the dispatcher needing any other cancellation channel.
func (c *DetachableController) Suspend() {
	c.mu.Lock()
	c.waiting = true
	c.timeOfLastWait = c.exec.Now()
	c.suspendedBacktrace = capturedStack()
	c.mu.Unlock()

	c.toDriver <- struct{}{}
	<-c.toTask

	c.mu.Lock()
	c.waiting = false
	aborted := c.aborted
	c.mu.Unlock()

	if aborted {
		runtime.Goexit()
	}
}

// SuspendFor schedules a resume at Now()+delta and then suspends.
func (c *DetachableController) SuspendFor(delta Tick) {
	c.SuspendUntil(c.exec.Now() + delta)
}

// SuspendUntil schedules a resume event at the given absolute virtual time
// and then suspends. The resume is non-daemon: a sleeping task is still a
// pending piece of work that must keep the simulation alive.
func (c *DetachableController) SuspendUntil(at Tick) {
	c.exec.scheduleResume(c, at, 0)
	c.Suspend()
}

// Resume schedules a resume event for this task at the current virtual
// time and current priority, then returns immediately: the actual resume
// happens when that event fires.
func (c *DetachableController) Resume() {
	c.exec.scheduleResume(c, c.exec.Now(), c.exec.CurrentPriorityLevel())
}

// ResumeWithPriority is Resume but dispatched at the given priority.
func (c *DetachableController) ResumeWithPriority(p Priority) {
	c.exec.scheduleResume(c, c.exec.Now(), p)
}

// Join suspends the calling task until every event named by keys has
// completed service. Keys already completed before Join is called do not
// block.
func (c *DetachableController) Join(keys ...EventKey) {
	c.exec.join(c, keys)
}

// capturedStack returns a best-effort snapshot of the calling goroutine's
// stack, trimmed to a reasonable diagnostic size.
func capturedStack() []byte {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
