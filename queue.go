package sage

import "container/heap"

// Tick is an integer count of fixed-resolution simulated time units since
// an executive's epoch. All comparisons and arithmetic on Tick are
// integral; there is no symbolic or continuous time.
type Tick int64

// Priority orders events at equal fire_time; higher values dispatch first.
type Priority float64

// EventKey is a monotonically increasing, per-Executive unique handle
// returned by RequestEvent and accepted by UnRequestEvent. Keys are never
// reused within the lifetime of an Executive.
type EventKey uint64

// DispatchKind selects how an Executive runs an event's callback.
type DispatchKind int

const (
	// Synchronous callbacks run inline on the dispatcher; the next event
	// is selected only after this one returns.
	Synchronous DispatchKind = iota
	// Detachable callbacks run as a suspendable task; the dispatcher waits
	// for completion or suspension before advancing.
	Detachable
	// Asynchronous callbacks are posted to an unrelated worker pool; the
	// dispatcher proceeds immediately without synchronizing on completion.
	Asynchronous
)

// String returns the human-readable name of the dispatch kind.
func (k DispatchKind) String() string {
	switch k {
	case Synchronous:
		return "Synchronous"
	case Detachable:
		return "Detachable"
	case Asynchronous:
		return "Asynchronous"
	default:
		return "Unknown"
	}
}

// EventCallback is the user logic invoked when an event fires. ctx exposes
// the firing event's identity and (for Detachable callbacks) the
// controller used to suspend/resume.
type EventCallback func(ctx *EventContext)

// EventContext is passed to an EventCallback at dispatch time.
type EventContext struct {
	// Key is the firing event's key.
	Key EventKey
	// FireTime is the virtual time at which this event was dispatched.
	FireTime Tick
	// Priority is the priority this event fired at.
	Priority Priority
	// Payload is the opaque value supplied at RequestEvent time.
	Payload any
	// Kind is this event's dispatch discipline.
	Kind DispatchKind
	// exec is the owning executive, used to read Now().
	exec *Executive
	// ctrl is the DetachableController for this dispatch, set only when
	// Kind == Detachable.
	ctrl *DetachableController
}

// Now returns the owning executive's current virtual time.
func (c *EventContext) Now() Tick {
	if c.exec == nil {
		return c.FireTime
	}
	return c.exec.Now()
}

// Controller returns the DetachableController for this event. It panics if
// called from a non-Detachable callback; user code should only call it
// from within a Detachable EventCallback.
func (c *EventContext) Controller() *DetachableController {
	if c.Kind != Detachable || c.ctrl == nil {
		panic("sage: Controller() called outside a detachable callback")
	}
	return c.ctrl
}

// event is the internal, queueable record. Immutable once enqueued, except
// for the cancelled flag used for lazy deletion.
type event struct {
	key          EventKey
	fireTime     Tick
	priority     Priority
	payload      any
	callback     EventCallback
	kind         DispatchKind
	isDaemon     bool
	submittedAt  Tick
	insertionSeq uint64
	cancelled    bool
	heapIndex    int

	// resumeController is set when this event is a scheduled resume for an
	// already-running detachable task, rather than the initial dispatch of
	// a fresh one. The dispatcher hands the baton back to the existing
	// controller's goroutine instead of spawning a new one.
	resumeController *DetachableController
}

// eventQueue is a binary min-heap ordered by (fire_time asc, priority desc,
// insertion_seq asc), giving FIFO ordering among same-time/same-priority
// events and deterministic replay. Cancellation is lazy: cancelled entries
// stay in the heap with their cancelled flag set and are skipped at pop.
type eventQueue struct {
	items   []*event
	nextSeq uint64
}

func newEventQueue() *eventQueue {
	return &eventQueue{items: make([]*event, 0, 64)}
}

// Len implements heap.Interface.
func (q *eventQueue) Len() int { return len(q.items) }

// Less implements heap.Interface using the tri-key ordering.
func (q *eventQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.fireTime != b.fireTime {
		return a.fireTime < b.fireTime
	}
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.insertionSeq < b.insertionSeq
}

// Swap implements heap.Interface.
func (q *eventQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].heapIndex = i
	q.items[j].heapIndex = j
}

// Push implements heap.Interface. Use queue methods, not heap.Push,
// directly.
func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.heapIndex = len(q.items)
	q.items = append(q.items, e)
}

// Pop implements heap.Interface.
func (q *eventQueue) Pop() any {
	n := len(q.items)
	e := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	e.heapIndex = -1
	return e
}

// enqueue inserts e, assigning it the next insertion sequence number, and
// returns nothing: the caller already knows e.key.
func (q *eventQueue) enqueue(e *event) {
	e.insertionSeq = q.nextSeq
	q.nextSeq++
	heap.Push(q, e)
}

// dequeue pops and returns the next non-cancelled event in tri-key order,
// discarding cancelled entries as it goes. Returns nil if the queue (after
// discarding cancellations) is empty.
func (q *eventQueue) dequeue() *event {
	for q.Len() > 0 {
		e := heap.Pop(q).(*event)
		if !e.cancelled {
			return e
		}
	}
	return nil
}

// peekTime returns the fire_time of the next non-cancelled event, or false
// if none remains. It does not remove the returned event; cancelled entries
// at the root are popped and discarded as a side effect of maintaining O(log n)
// amortised peek/dequeue, mirroring dequeue's lazy-deletion contract.
func (q *eventQueue) peekTime() (Tick, bool) {
	for q.Len() > 0 {
		e := q.items[0]
		if !e.cancelled {
			return e.fireTime, true
		}
		heap.Pop(q)
	}
	return 0, false
}

// peekEvent returns the next non-cancelled event without removing it.
func (q *eventQueue) peekEvent() *event {
	for q.Len() > 0 {
		e := q.items[0]
		if !e.cancelled {
			return e
		}
		heap.Pop(q)
	}
	return nil
}

// cancelByKey marks the event with the given key cancelled, if present and
// not already dispatched. Returns whether an entry was found.
func (q *eventQueue) cancelByKey(key EventKey) bool {
	for _, e := range q.items {
		if e.key == key && !e.cancelled {
			e.cancelled = true
			return true
		}
	}
	return false
}

// cancelByPredicate cancels every non-cancelled event for which pred
// returns true, returning the count cancelled.
func (q *eventQueue) cancelByPredicate(pred func(key EventKey, payload any, kind DispatchKind) bool) int {
	n := 0
	for _, e := range q.items {
		if !e.cancelled && pred(e.key, e.payload, e.kind) {
			e.cancelled = true
			n++
		}
	}
	return n
}

// countLive returns (liveNonDaemon, liveDaemon) counts of
// non-cancelled events remaining in the queue.
func (q *eventQueue) countLive() (nonDaemon, daemon int) {
	for _, e := range q.items {
		if e.cancelled {
			continue
		}
		if e.isDaemon {
			daemon++
		} else {
			nonDaemon++
		}
	}
	return nonDaemon, daemon
}

// snapshot returns the non-cancelled events currently queued, in no
// particular order, for diagnostics (EventList).
func (q *eventQueue) snapshot() []*event {
	out := make([]*event, 0, len(q.items))
	for _, e := range q.items {
		if !e.cancelled {
			out = append(out, e)
		}
	}
	return out
}
