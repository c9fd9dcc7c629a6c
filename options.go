package sage

// CausalityPolicy controls what happens when an event is submitted with a
// fire_time earlier than the executive's current tNow.
type CausalityPolicy int

const (
	// CausalityClamp silently clamps the event to the current tick.
	CausalityClamp CausalityPolicy = iota
	// CausalityRaise returns a *CausalityError from the offending call.
	CausalityRaise
)

// ExecutiveKind names a dispatcher variant. It is read only by
// NewLightExecutive, to decide whether Rollback is enabled.
type ExecutiveKind int

const (
	// ExecutiveFull enables detachable/asynchronous dispatch, pause/resume,
	// join, and causality diagnostics.
	ExecutiveFull ExecutiveKind = iota
	// ExecutiveLight is a minimal synchronous-only dispatcher.
	ExecutiveLight
	// ExecutiveLightWithRollback is ExecutiveLight plus a Rollback
	// operation that rewinds tNow and reschedules/drops affected events.
	ExecutiveLightWithRollback
)

// executiveOptions holds resolved Executive configuration.
type executiveOptions struct {
	causality        CausalityPolicy
	kind             ExecutiveKind
	minWorkerThreads int
	maxWorkerThreads int
	logger           Logger
}

// ExecutiveOption configures an Executive or LightExecutive at construction.
type ExecutiveOption interface {
	applyExecutive(*executiveOptions)
}

type executiveOptionFunc func(*executiveOptions)

func (f executiveOptionFunc) applyExecutive(o *executiveOptions) { f(o) }

// WithCausalityPolicy sets the kernel's behavior on out-of-order event
// submission. Default is CausalityClamp.
func WithCausalityPolicy(p CausalityPolicy) ExecutiveOption {
	return executiveOptionFunc(func(o *executiveOptions) { o.causality = p })
}

// WithExecutiveKind sets the executive kind. NewLightExecutive enables
// Rollback when it is ExecutiveLightWithRollback; NewExecutive ignores it
// and always builds the Full executive.
func WithExecutiveKind(k ExecutiveKind) ExecutiveOption {
	return executiveOptionFunc(func(o *executiveOptions) { o.kind = k })
}

// WithWorkerThreads sizes the asynchronous-dispatch worker pool.
func WithWorkerThreads(min, max int) ExecutiveOption {
	return executiveOptionFunc(func(o *executiveOptions) {
		o.minWorkerThreads = min
		o.maxWorkerThreads = max
	})
}

// WithLogger attaches a structured Logger. Default is a NoOpLogger.
func WithLogger(l Logger) ExecutiveOption {
	return executiveOptionFunc(func(o *executiveOptions) { o.logger = l })
}

func resolveExecutiveOptions(opts []ExecutiveOption) *executiveOptions {
	cfg := &executiveOptions{
		causality:        CausalityClamp,
		kind:             ExecutiveFull,
		minWorkerThreads: 1,
		maxWorkerThreads: 4,
		logger:           NewNoOpLogger(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyExecutive(cfg)
	}
	return cfg
}

// managerOptions holds resolved ResourceManager configuration.
type managerOptions struct {
	priorityWaiters bool
	logger          Logger
}

// ManagerOption configures a ResourceManager at construction.
type ManagerOption interface {
	applyManager(*managerOptions)
}

type managerOptionFunc func(*managerOptions)

func (f managerOptionFunc) applyManager(o *managerOptions) { f(o) }

// WithPriorityWaiters makes the manager wake its waiter list highest
// priority first (ties by submission order) instead of strict FIFO.
func WithPriorityWaiters(enabled bool) ManagerOption {
	return managerOptionFunc(func(o *managerOptions) { o.priorityWaiters = enabled })
}

// WithManagerLogger attaches a structured Logger to a ResourceManager.
func WithManagerLogger(l Logger) ManagerOption {
	return managerOptionFunc(func(o *managerOptions) { o.logger = l })
}

func resolveManagerOptions(opts []ManagerOption) *managerOptions {
	cfg := &managerOptions{logger: NewNoOpLogger()}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyManager(cfg)
	}
	return cfg
}

// controllerOptions holds resolved ExecController configuration.
type controllerOptions struct {
	log10Scale float64
	unbounded  bool
	frameRate  int
	logger     Logger
}

// ControllerOption configures an ExecController at construction.
type ControllerOption interface {
	applyController(*controllerOptions)
}

type controllerOptionFunc func(*controllerOptions)

func (f controllerOptionFunc) applyController(o *controllerOptions) { f(o) }

// WithScale sets the simulated:wall-clock ratio as 10^log10Scale. Pass
// WithUnconstrainedScale() instead to disable throttling entirely.
func WithScale(log10Scale float64) ControllerOption {
	return controllerOptionFunc(func(o *controllerOptions) {
		o.log10Scale = log10Scale
		o.unbounded = false
	})
}

// WithUnconstrainedScale disables wall-clock throttling (MinValue scale).
func WithUnconstrainedScale() ControllerOption {
	return controllerOptionFunc(func(o *controllerOptions) { o.unbounded = true })
}

// WithFrameRate sets the render-tick rate in frames per second, in [0, 25].
// 0 disables rendering.
func WithFrameRate(fps int) ControllerOption {
	return controllerOptionFunc(func(o *controllerOptions) { o.frameRate = fps })
}

// WithControllerLogger attaches a structured Logger to an ExecController.
func WithControllerLogger(l Logger) ControllerOption {
	return controllerOptionFunc(func(o *controllerOptions) { o.logger = l })
}

func resolveControllerOptions(opts []ControllerOption) (*controllerOptions, error) {
	cfg := &controllerOptions{unbounded: true, frameRate: 0, logger: NewNoOpLogger()}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyController(cfg)
	}
	if cfg.frameRate < 0 || cfg.frameRate > 25 {
		return nil, &RangeError{Message: "frame rate must be within [0, 25]"}
	}
	return cfg, nil
}
