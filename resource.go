package sage

import "sync"

// RequestStatus is the lifecycle state of a ResourceRequest.
type RequestStatus int

const (
	// Free means the request holds nothing.
	Free RequestStatus = iota
	// Reserved means quantity has been set aside but not taken from the
	// pool permanently; Unreserve restores it.
	Reserved
	// Acquired means the request holds the resource outright; Release
	// restores it.
	Acquired
)

// String returns the human-readable name of the status.
func (s RequestStatus) String() string {
	switch s {
	case Free:
		return "Free"
	case Reserved:
		return "Reserved"
	case Acquired:
		return "Acquired"
	default:
		return "Unknown"
	}
}

// Resource is a named, numeric-capacity pool mediated by a ResourceManager.
// {guid, name, capacity, available, initial_capacity, initial_available,
// is_atomic, is_discrete, is_persistent, permissible_overbook} per §3.
type Resource struct {
	mu sync.Mutex

	GUID     string
	Name     string
	IsAtomic bool
	// IsDiscrete requires integral grants; if false grants may be
	// fractional (continuous resources).
	IsDiscrete bool
	// IsPersistent marks a persistent resource; the kernel does not itself
	// interpret this flag, it is exposed for collaborators.
	IsPersistent bool
	// PermissibleOverbook is the allowed negative slack below zero
	// available for a continuous resource. Forced to zero for atomic
	// resources.
	PermissibleOverbook float64

	capacity         float64
	available        float64
	initialCapacity  float64
	initialAvailable float64

	manager *ResourceManager
}

// NewResource constructs a Resource with capacity == available ==
// initial_capacity == initial_available == capacity.
func NewResource(guid, name string, capacity float64, atomic, discrete, persistent bool, overbook float64) *Resource {
	if atomic {
		overbook = 0
	}
	return &Resource{
		GUID: guid, Name: name, IsAtomic: atomic, IsDiscrete: discrete, IsPersistent: persistent,
		PermissibleOverbook: overbook,
		capacity:            capacity, available: capacity,
		initialCapacity: capacity, initialAvailable: capacity,
	}
}

// Capacity returns the resource's nominal capacity.
func (r *Resource) Capacity() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}

// Available returns the currently available quantity.
func (r *Resource) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// reserve reduces available by qty, keeping the resource "in pool".
// Returns false if qty is unavailable (respecting overbook).
func (r *Resource) reserve(qty float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.IsAtomic {
		qty = r.capacity
	}
	if r.available-qty < -r.PermissibleOverbook {
		return false
	}
	r.available -= qty
	return true
}

// unreserve restores qty to available.
func (r *Resource) unreserve(qty float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.IsAtomic {
		qty = r.capacity
	}
	r.available += qty
}

// Reset restores capacity and available to their initial values.
func (r *Resource) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity = r.initialCapacity
	r.available = r.initialAvailable
}

// SelectionStrategy lets a ResourceRequest override the manager's default
// scoring-based candidate selection.
type SelectionStrategy func(candidates []*Resource) *Resource

// ScoreFunc scores a candidate resource for a request. Return MinScore for
// "unsuitable" or MaxScore for "perfect, stop searching".
type ScoreFunc func(candidate *Resource) float64

const (
	// MinScore marks a candidate as unsuitable.
	MinScore = -1e308
	// MaxScore marks a candidate as a perfect match, short-circuiting the
	// scan.
	MaxScore = 1e308
)

// ResourceRequest is a single holder's demand for a resource (§3).
type ResourceRequest struct {
	mu sync.Mutex

	QuantityDesired float64
	QuantityObtained float64

	RequesterIdentity string
	Priority          Priority
	UserData          any

	Status RequestStatus

	resourceObtained     *Resource
	resourceObtainedFrom *ResourceManager
	defaultManager       *ResourceManager

	abortHandler func(args any)
	abortArgs    any

	// Replicator, if set, is what clone invokes to produce an independent
	// copy of this request. ReserveAll and AcquireAll reserve the caller's
	// requests directly and do not copy them.
	Replicator func() *ResourceRequest

	Selection SelectionStrategy
	Score     ScoreFunc

	submittedSeq uint64
}

// NewResourceRequest builds a request for quantity, owned by identity, at
// priority p. Set the Selection or Score field to customize candidate
// selection, or rely on the manager's default scoring scan.
func NewResourceRequest(identity string, quantity float64, p Priority) *ResourceRequest {
	return &ResourceRequest{
		RequesterIdentity: identity,
		QuantityDesired:   quantity,
		Priority:          p,
		Status:            Free,
	}
}

// SetAbortHandler stores fn and args on the request. The kernel does not
// call them: Executive.Abort runs only the abort handlers set on
// DetachableControllers.
func (req *ResourceRequest) SetAbortHandler(fn func(args any), args any) {
	req.mu.Lock()
	defer req.mu.Unlock()
	req.abortHandler = fn
	req.abortArgs = args
}

// ObtainedFrom returns the resource this request currently holds
// (Reserved or Acquired), or nil.
func (req *ResourceRequest) ObtainedFrom() *Resource {
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.resourceObtained
}

// clone returns an independent copy of req suitable for an isolated
// reservation attempt (C7 rotating queue), using Replicator if set.
func (req *ResourceRequest) clone() *ResourceRequest {
	if req.Replicator != nil {
		return req.Replicator()
	}
	cp := *req
	cp.mu = sync.Mutex{}
	cp.resourceObtained = nil
	cp.resourceObtainedFrom = nil
	cp.Status = Free
	cp.QuantityObtained = 0
	return &cp
}
