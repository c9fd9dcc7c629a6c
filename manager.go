package sage

import (
	"math"
	"sort"
	"sync"
)

// AccessRegulator is consulted per (resource, requester identity) during
// default candidate scoring. Stacks are pushed/popped externally (e.g. by
// earmarking logic); the topmost regulator on the applicable stack takes
// precedence.
type AccessRegulator interface {
	CanAcquire(resource *Resource, requesterIdentity string) bool
}

type waiterEntry struct {
	req  *ResourceRequest
	ctrl *DetachableController
	seq  uint64
}

// ResourceManager mediates contention for a set of Resources (C6):
// reservation/acquisition, default scoring-based selection, a FIFO or
// priority-ordered waiter list, and a stackable access-regulator policy.
type ResourceManager struct {
	mu        sync.Mutex
	resources []*Resource
	byGUID    map[string]*Resource

	defaultRegulators  []AccessRegulator
	resourceRegulators map[string][]AccessRegulator

	waiters      []waiterEntry
	waiterSeq    uint64
	waitersDirty bool

	priorityWaiters bool

	events *EventTarget
	logger Logger
}

// NewResourceManager constructs an empty ResourceManager.
func NewResourceManager(opts ...ManagerOption) *ResourceManager {
	cfg := resolveManagerOptions(opts)
	return &ResourceManager{
		byGUID:             make(map[string]*Resource),
		resourceRegulators: make(map[string][]AccessRegulator),
		priorityWaiters:    cfg.priorityWaiters,
		events:             NewEventTarget(),
		logger:             cfg.logger,
	}
}

// Events returns the EventTarget resource lifecycle notifications fire on.
func (m *ResourceManager) Events() *EventTarget { return m.events }

// AddResource registers r with the manager, setting its back-reference.
func (m *ResourceManager) AddResource(r *Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.manager = m
	m.resources = append(m.resources, r)
	m.byGUID[r.GUID] = r
}

// Resource looks up a registered resource by GUID.
func (m *ResourceManager) Resource(guid string) (*Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byGUID[guid]
	return r, ok
}

// PushRegulator pushes reg onto the manager's default access-regulator
// stack, consulted when a resource has no resource-specific stack of its
// own.
func (m *ResourceManager) PushRegulator(reg AccessRegulator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultRegulators = append(m.defaultRegulators, reg)
}

// PopRegulator pops the top of the default access-regulator stack.
func (m *ResourceManager) PopRegulator() AccessRegulator {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.defaultRegulators)
	if n == 0 {
		return nil
	}
	reg := m.defaultRegulators[n-1]
	m.defaultRegulators = m.defaultRegulators[:n-1]
	return reg
}

// PushResourceRegulator pushes reg onto guid's resource-specific stack,
// which takes precedence over the default stack while non-empty.
func (m *ResourceManager) PushResourceRegulator(guid string, reg AccessRegulator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourceRegulators[guid] = append(m.resourceRegulators[guid], reg)
}

// PopResourceRegulator pops the top of guid's resource-specific stack.
func (m *ResourceManager) PopResourceRegulator(guid string) AccessRegulator {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.resourceRegulators[guid]
	n := len(stack)
	if n == 0 {
		return nil
	}
	reg := stack[n-1]
	m.resourceRegulators[guid] = stack[:n-1]
	return reg
}

func (m *ResourceManager) canAcquire(r *Resource, identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stack := m.resourceRegulators[r.GUID]; len(stack) > 0 {
		return stack[len(stack)-1].CanAcquire(r, identity)
	}
	if len(m.defaultRegulators) > 0 {
		return m.defaultRegulators[len(m.defaultRegulators)-1].CanAcquire(r, identity)
	}
	return true
}

// quantityFor returns the quantity req would take from r: whole capacity
// for atomic resources, floored to an integer for discrete resources,
// otherwise the desired (possibly fractional) quantity.
func (req *ResourceRequest) quantityFor(r *Resource) float64 {
	if r.IsAtomic {
		return r.Capacity()
	}
	if r.IsDiscrete {
		return math.Floor(req.QuantityDesired)
	}
	return req.QuantityDesired
}

func defaultScore(req *ResourceRequest, r *Resource) float64 {
	want := req.quantityFor(r)
	if r.Available()+r.PermissibleOverbook < want {
		return MinScore
	}
	return r.Available() - want
}

func (m *ResourceManager) candidates() []*Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Resource(nil), m.resources...)
}

func (m *ResourceManager) defaultSelect(req *ResourceRequest, candidates []*Resource) *Resource {
	var best *Resource
	bestScore := MinScore
	for _, r := range candidates {
		if !m.canAcquire(r, req.RequesterIdentity) {
			continue
		}
		var score float64
		if req.Score != nil {
			score = req.Score(r)
		} else {
			score = defaultScore(req, r)
		}
		if score == MinScore {
			continue
		}
		if best == nil || score > bestScore {
			best, bestScore = r, score
		}
		if score >= MaxScore {
			break
		}
	}
	return best
}

func (m *ResourceManager) allCandidatesInsufficient(req *ResourceRequest, candidates []*Resource) bool {
	if len(candidates) == 0 {
		return true
	}
	for _, r := range candidates {
		if req.quantityFor(r) <= r.Capacity()+r.PermissibleOverbook {
			return false
		}
	}
	return true
}

func maxCapacity(candidates []*Resource) float64 {
	var max float64
	for _, r := range candidates {
		if c := r.Capacity(); c > max {
			max = c
		}
	}
	return max
}

// tryReserve performs one non-blocking reservation attempt: score
// candidates, reserve the winner. Returns (true, nil) on success,
// (false, nil) if nothing is currently available, or (false, err) if no
// candidate could ever satisfy the demand.
func (m *ResourceManager) tryReserve(req *ResourceRequest) (bool, error) {
	candidates := m.candidates()
	m.events.DispatchEvent(&Notification{Type: NotifyResourceRequested})

	var chosen *Resource
	if req.Selection != nil {
		var allowed []*Resource
		for _, r := range candidates {
			if m.canAcquire(r, req.RequesterIdentity) {
				allowed = append(allowed, r)
			}
		}
		chosen = req.Selection(allowed)
	} else {
		chosen = m.defaultSelect(req, candidates)
	}

	if chosen == nil {
		if m.allCandidatesInsufficient(req, candidates) {
			return false, &InsufficientResourcePoolError{Requested: req.QuantityDesired, Capacity: maxCapacity(candidates)}
		}
		return false, nil
	}

	qty := req.quantityFor(chosen)
	if !chosen.reserve(qty) {
		return false, nil
	}

	req.mu.Lock()
	req.Status = Reserved
	req.resourceObtained = chosen
	req.resourceObtainedFrom = m
	req.QuantityObtained = qty
	req.mu.Unlock()

	m.events.DispatchEvent(&Notification{Type: NotifyResourceReserved, Resource: chosen.GUID})
	return true, nil
}

func (m *ResourceManager) addWaiter(req *ResourceRequest, ctrl *DetachableController) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waiterSeq++
	m.waiters = append(m.waiters, waiterEntry{req: req, ctrl: ctrl, seq: m.waiterSeq})
	m.waitersDirty = true
}

// NotifyPriorityChanged marks the waiter list dirty so it is re-sorted
// before the next wake, reflecting a priority change on a queued request.
func (m *ResourceManager) NotifyPriorityChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitersDirty = true
}

func (m *ResourceManager) wakeWaiters() {
	m.mu.Lock()
	if m.waitersDirty && m.priorityWaiters {
		sort.SliceStable(m.waiters, func(i, j int) bool {
			if m.waiters[i].req.Priority != m.waiters[j].req.Priority {
				return m.waiters[i].req.Priority > m.waiters[j].req.Priority
			}
			return m.waiters[i].seq < m.waiters[j].seq
		})
	}
	m.waitersDirty = false
	woken := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, w := range woken {
		w.ctrl.Resume()
	}
}

// Reserve attempts to reserve req's desired quantity from the best-scoring
// candidate resource. If block is true and nothing is currently
// available, ctrl must be the calling detachable task's controller: the
// request joins the waiter list and the task suspends until a
// release/unreserve elsewhere makes it worth retrying.
func (m *ResourceManager) Reserve(req *ResourceRequest, block bool, ctrl *DetachableController) (bool, error) {
	for {
		ok, err := m.tryReserve(req)
		if err != nil || ok {
			return ok, err
		}
		if !block {
			return false, nil
		}
		if ctrl == nil {
			return false, ErrNotDetachableContext
		}
		m.addWaiter(req, ctrl)
		ctrl.Suspend()
	}
}

// Unreserve restores a Reserved request's quantity to its resource's
// availability and wakes the waiter list.
func (m *ResourceManager) Unreserve(req *ResourceRequest) error {
	req.mu.Lock()
	if req.Status != Reserved || req.resourceObtained == nil {
		req.mu.Unlock()
		return &ResourceMismatchError{Resource: req.RequesterIdentity}
	}
	r := req.resourceObtained
	qty := req.QuantityObtained
	req.Status = Free
	req.resourceObtained = nil
	req.resourceObtainedFrom = nil
	req.QuantityObtained = 0
	req.mu.Unlock()

	r.unreserve(qty)
	m.events.DispatchEvent(&Notification{Type: NotifyResourceUnreserved, Resource: r.GUID})
	m.wakeWaiters()
	return nil
}

// Acquire takes req's resource out of the pool outright. If req is Free,
// Acquire first reserves (honoring block/ctrl), then atomically revokes
// the reservation in favor of full acquisition, per §4.7's AcquireAll
// contract.
func (m *ResourceManager) Acquire(req *ResourceRequest, block bool, ctrl *DetachableController) (bool, error) {
	if req.Status == Free {
		ok, err := m.Reserve(req, block, ctrl)
		if err != nil || !ok {
			return ok, err
		}
	}

	req.mu.Lock()
	if req.Status != Reserved {
		req.mu.Unlock()
		return false, &ResourceMismatchError{Resource: req.RequesterIdentity}
	}
	r := req.resourceObtained
	req.Status = Acquired
	req.mu.Unlock()

	m.events.DispatchEvent(&Notification{Type: NotifyResourceAcquired, Resource: r.GUID})
	return true, nil
}

// Release restores an Acquired request's quantity to its resource and
// wakes the waiter list.
func (m *ResourceManager) Release(req *ResourceRequest) error {
	req.mu.Lock()
	if req.Status != Acquired || req.resourceObtained == nil {
		req.mu.Unlock()
		return &ResourceMismatchError{Resource: req.RequesterIdentity}
	}
	r := req.resourceObtained
	qty := req.QuantityObtained
	req.Status = Free
	req.resourceObtained = nil
	req.resourceObtainedFrom = nil
	req.QuantityObtained = 0
	req.mu.Unlock()

	r.unreserve(qty)
	m.events.DispatchEvent(&Notification{Type: NotifyResourceReleased, Resource: r.GUID})
	m.wakeWaiters()
	return nil
}
