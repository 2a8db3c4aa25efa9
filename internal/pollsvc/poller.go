package pollsvc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/devsvc"
	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
)

// poller owns one device end to end: validation, acquisition, the tick
// loop, and feedback dispatch. The handle is only ever touched from
// run's goroutine; everything other goroutines read goes through the
// atomic fields.
type poller struct {
	log     *zap.Logger
	devices *devsvc.Service
	engine  *method.Engine
	clock   *pad.Clock
	bus     *StateBus
	options serviceOptions

	id       pad.Identity
	cancel   context.CancelFunc
	done     chan struct{}
	feedback chan feedbackRequest

	// Owned by the run goroutine.
	handle      method.Handle
	nextAttempt time.Time
	readFails   int

	assigned   atomic.Pointer[pad.InputMethod]
	active     atomic.Pointer[pad.InputMethod]
	current    atomic.Pointer[pad.State]
	previous   atomic.Pointer[pad.State]
	baseline   atomic.Pointer[pad.State]
	caps       atomic.Pointer[pad.FeedbackCaps]
	validation atomic.Pointer[pad.ValidationResult]
	lastErr    atomic.String
	reads      atomic.Uint64
	readErrs   atomic.Uint64
}

func newPoller(s *Service, dev devsvc.UserDevice) *poller {
	p := &poller{
		log:      s.log.With(zap.String("device", dev.Identity.String())),
		devices:  s.devices,
		engine:   s.engine,
		clock:    s.clock,
		bus:      s.bus,
		options:  s.options,
		id:       dev.Identity,
		done:     make(chan struct{}),
		feedback: make(chan feedbackRequest),
	}
	m := dev.InputMethod
	p.assigned.Store(&m)
	return p
}

// stop cancels the run goroutine and waits for the handle to be
// released.
func (p *poller) stop() {
	p.cancel()
	<-p.done
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)
	defer p.release()
	p.log.Debug("poller started", zap.String("method", p.method().String()))

	ticker := time.NewTicker(p.options.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.feedback:
			p.handleFeedback(req)
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *poller) method() pad.InputMethod {
	if m := p.assigned.Load(); m != nil {
		return *m
	}
	return ""
}

func (p *poller) cycle(ctx context.Context) {
	if p.devices.ConsumeReload(p.id) {
		p.release()
		if dev, err := p.devices.Get(p.id); err == nil {
			m := dev.InputMethod
			p.assigned.Store(&m)
			p.log.Info("input method changed, reacquiring",
				zap.String("method", m.String()))
		}
		p.nextAttempt = time.Time{}
	}
	if p.handle == nil {
		p.acquire(ctx)
		return
	}
	p.read(ctx)
}

// acquire validates the assignment and takes the handle. Failures of
// either step start a retry window instead of tightening into a
// per-tick loop.
func (p *poller) acquire(ctx context.Context) {
	now := time.Now()
	if now.Before(p.nextAttempt) {
		return
	}
	m := p.method()

	dev, err := p.devices.Get(p.id)
	if err != nil {
		p.lastErr.Store(err.Error())
		p.nextAttempt = now.Add(p.options.retryInterval)
		return
	}

	result := p.engine.Validate(p.id, dev.Descriptors, m)
	p.validation.Store(&result)
	if !result.OK {
		p.log.Warn("validation failed",
			zap.String("method", m.String()),
			zap.String("reason", string(result.Reason)),
			zap.String("detail", result.Detail))
		p.nextAttempt = now.Add(p.options.retryInterval)
		return
	}
	for _, w := range result.Warnings {
		p.log.Warn("validation warning",
			zap.String("method", m.String()), zap.String("warning", w))
	}

	proc, ok := p.engine.Processor(m)
	if !ok {
		p.nextAttempt = now.Add(p.options.retryInterval)
		return
	}
	actx, cancel := context.WithTimeout(ctx, p.options.acquireTimeout)
	defer cancel()
	handle, err := proc.Acquire(actx, p.id)
	if err != nil {
		aerr := &pad.AcquireError{Identity: p.id, Method: m, Err: err}
		p.lastErr.Store(aerr.Error())
		p.log.Warn("failed to acquire device", zap.Error(aerr))
		p.nextAttempt = now.Add(p.options.retryInterval)
		return
	}

	p.handle = handle
	p.readFails = 0
	p.lastErr.Store("")
	caps := handle.FeedbackCaps()
	p.caps.Store(&caps)

	// Baseline snapshot for diagnostics; also seeds the current state.
	// Taken before the active flag flips so observers of Active always
	// see a settled baseline.
	rctx, rcancel := context.WithTimeout(ctx, p.options.pollInterval)
	defer rcancel()
	if st, err := handle.ReadState(rctx); err == nil {
		st.ReadMicro = p.clock.Micros()
		p.baseline.Store(&st)
		p.current.Store(&st)
	}

	p.active.Store(&m)
	p.log.Info("device acquired", zap.String("method", m.String()))
}

// read runs one deadline-bounded ReadState. Errors keep the previous
// snapshot as last-known-good for the tick.
func (p *poller) read(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, p.options.pollInterval)
	st, err := p.handle.ReadState(rctx)
	cancel()
	if err != nil {
		p.readErrs.Inc()
		p.readFails++
		rerr := &pad.ReadError{Identity: p.id, Err: err}
		p.lastErr.Store(rerr.Error())
		switch {
		case errors.Is(err, pad.ErrHandleReleased):
			p.log.Error("read on a released handle", zap.Error(rerr))
		case p.readFails == 1:
			p.log.Warn("read failed", zap.Error(rerr))
		default:
			p.log.Debug("read failed", zap.Error(rerr))
		}
		return
	}

	p.reads.Inc()
	p.readFails = 0
	p.lastErr.Store("")
	st.ReadMicro = p.clock.Micros()

	prev := p.current.Load()
	p.current.Store(&st)
	if prev == nil {
		p.bus.Publish(p.id, StateEvent{Method: p.method(), State: st})
		return
	}
	p.previous.Store(prev)
	if !st.Equal(*prev) {
		p.bus.Publish(p.id, StateEvent{Method: p.method(), State: st, Previous: *prev})
	}
}

func (p *poller) release() {
	if p.handle == nil {
		return
	}
	if err := p.handle.Release(); err != nil {
		p.log.Warn("failed to release handle", zap.Error(err))
	}
	p.handle = nil
	p.active.Store(nil)
	p.caps.Store(nil)
}

func (p *poller) status() Status {
	st := Status{
		Identity:   p.id,
		Method:     p.method(),
		Active:     p.active.Load() != nil,
		LastError:  p.lastErr.Load(),
		Reads:      p.reads.Load(),
		ReadErrors: p.readErrs.Load(),
	}
	if v := p.current.Load(); v != nil {
		c := *v
		st.Current = &c
	}
	if v := p.previous.Load(); v != nil {
		c := *v
		st.Previous = &c
	}
	if v := p.baseline.Load(); v != nil {
		c := *v
		st.Baseline = &c
	}
	if v := p.validation.Load(); v != nil {
		c := *v
		st.Validation = &c
	}
	if v := p.caps.Load(); v != nil {
		c := *v
		st.FeedbackCaps = &c
	}
	return st
}
