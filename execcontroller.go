package sage

import (
	"math"
	"sync"
	"time"
)

// RenderFunc is invoked by the ExecController's render tick.
type RenderFunc func(tick Tick)

// ExecController throttles wall-clock progress to a configurable multiple
// of simulated time and drives a periodic render tick (C8).
type ExecController struct {
	exec   *Executive
	cfg    *controllerOptions
	render RenderFunc
	jitter *pacingJitter

	mu            sync.Mutex
	wallBaseline  time.Time
	simBaseline   Tick
	renderPending bool
	stopped       bool

	renderStop chan struct{}
	renderDone chan struct{}
}

// NewExecController attaches wall-clock throttling and rendering to exec.
// render may be nil if frame_rate is 0 (rendering disabled).
func NewExecController(exec *Executive, render RenderFunc, opts ...ControllerOption) (*ExecController, error) {
	cfg, err := resolveControllerOptions(opts)
	if err != nil {
		return nil, err
	}
	c := &ExecController{exec: exec, cfg: cfg, render: render, jitter: newPacingJitter()}
	c.resetBaseline()

	exec.Events().AddEventListener(NotifyClockAboutToChange, c.onClockAboutToChange)
	exec.Events().AddEventListener(NotifyExecutivePaused, func(*Notification) { c.Stop() })
	exec.Events().AddEventListener(NotifyExecutiveResumed, func(*Notification) { c.resume() })
	exec.Events().AddEventListener(NotifyExecutiveFinished, func(*Notification) { c.Stop() })
	exec.Events().AddEventListener(NotifyExecutiveAborted, func(*Notification) { c.Stop() })

	if cfg.frameRate > 0 {
		c.startRenderLoop()
	}
	return c, nil
}

func (c *ExecController) resetBaseline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wallBaseline = time.Now()
	c.simBaseline = c.exec.Now()
}

// resume resets the pacing baseline on Resume so the controller does not
// try to "catch up" for time spent Paused.
func (c *ExecController) resume() {
	c.resetBaseline()
	if c.cfg.frameRate > 0 {
		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			c.startRenderLoop()
		}
	}
}

// Stats returns the current pacing-jitter quantiles.
func (c *ExecController) Stats() PacingStats { return c.jitter.stats() }

func (c *ExecController) onClockAboutToChange(n *Notification) {
	if c.cfg.unbounded {
		return
	}

	c.mu.Lock()
	simElapsed := float64(n.Tick - c.simBaseline)
	ratio := math.Pow(10, c.cfg.log10Scale)
	targetWall := simElapsed / ratio
	actualWall := time.Since(c.wallBaseline).Seconds()
	ahead := targetWall - actualWall
	c.mu.Unlock()

	if ahead <= 0 {
		return
	}

	realNap := ahead
	if c.cfg.frameRate > 0 {
		framePeriod := 1.0 / float64(c.cfg.frameRate)
		if realNap > framePeriod {
			realNap = framePeriod
		}
	}
	simNap := Tick(realNap * ratio)
	if simNap < 1 {
		simNap = 1
	}

	target := realNap
	jitter := c.jitter
	_, _ = c.exec.RequestDaemonEvent(func(*EventContext) {
		start := time.Now()
		time.Sleep(time.Duration(target * float64(time.Second)))
		jitter.update(time.Since(start).Seconds() - target)
	}, n.Tick+simNap, 0, nil, Synchronous)
}

// startRenderLoop launches the real-time goroutine that wakes at
// 1/frame_rate intervals and, if no render event is already pending,
// enqueues a synchronous immediate event invoking the user Render
// callback.
func (c *ExecController) startRenderLoop() {
	c.mu.Lock()
	if !c.stopped && c.renderStop != nil {
		c.mu.Unlock()
		return
	}
	c.stopped = false
	c.renderStop = make(chan struct{})
	c.renderDone = make(chan struct{})
	stop := c.renderStop
	done := c.renderDone
	period := time.Duration(float64(time.Second) / float64(c.cfg.frameRate))
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				pending := c.renderPending
				if !pending {
					c.renderPending = true
				}
				c.mu.Unlock()
				if pending {
					continue
				}
				render := c.render
				_, _ = c.exec.RequestImmediateEvent(func(ctx *EventContext) {
					c.mu.Lock()
					c.renderPending = false
					c.mu.Unlock()
					if render != nil {
						render(ctx.Now())
					}
				}, nil, Synchronous)
			}
		}
	}()
}

// Stop halts the render loop. Safe to call multiple times.
func (c *ExecController) Stop() {
	c.mu.Lock()
	if c.stopped || c.renderStop == nil {
		c.stopped = true
		c.mu.Unlock()
		return
	}
	c.stopped = true
	stop := c.renderStop
	c.mu.Unlock()
	close(stop)
}
