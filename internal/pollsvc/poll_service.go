// Package pollsvc drives the per-device read cycle: it owns one poller
// goroutine per pollable device, validates the assigned method before
// acquisition, stamps snapshots with the monotonic clock, and fans
// state changes out to subscribers.
package pollsvc

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/devsvc"
	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pkg/pubsub"
)

// StateEvent is published whenever a device's snapshot changes.
// Previous carries the prior snapshot so subscribers can edge-detect
// without keeping history.
type StateEvent struct {
	Method   pad.InputMethod `json:"method"`
	State    pad.State       `json:"state"`
	Previous pad.State       `json:"previous"`
}

type (
	StateBus     = pubsub.Hub[pad.Identity, StateEvent]
	StateMessage = pubsub.Message[pad.Identity, StateEvent]
)

// Status is the per-device polling view: assignment, activation,
// snapshots and health counters.
type Status struct {
	Identity     pad.Identity          `json:"identity"`
	Method       pad.InputMethod       `json:"method,omitempty"`
	Active       bool                  `json:"active"`
	Current      *pad.State            `json:"current,omitempty"`
	Previous     *pad.State            `json:"previous,omitempty"`
	Baseline     *pad.State            `json:"baseline,omitempty"`
	Validation   *pad.ValidationResult `json:"validation,omitempty"`
	FeedbackCaps *pad.FeedbackCaps     `json:"feedbackCaps,omitempty"`
	LastError    string                `json:"lastError,omitempty"`
	Reads        uint64                `json:"reads"`
	ReadErrors   uint64                `json:"readErrors"`
}

var defaultOptions = serviceOptions{
	pollInterval:      8 * time.Millisecond,
	retryInterval:     2 * time.Second,
	acquireTimeout:    time.Second,
	reconcileInterval: 5 * time.Second,
}

type serviceOptions struct {
	pollInterval      time.Duration
	retryInterval     time.Duration
	acquireTimeout    time.Duration
	reconcileInterval time.Duration
}

type Option func(*serviceOptions)

func WithPollInterval(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.pollInterval = d
	}
}

// WithRetryInterval sets the wait after a failed validation or
// acquisition before the next attempt.
func WithRetryInterval(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.retryInterval = d
	}
}

type Service struct {
	log     *zap.Logger
	devices *devsvc.Service
	engine  *method.Engine
	clock   *pad.Clock
	options serviceOptions

	ready   chan struct{}
	bus     *StateBus
	pollers *xsync.MapOf[pad.Identity, *poller]
}

func New(log *zap.Logger, devices *devsvc.Service, engine *method.Engine, clock *pad.Clock, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		log:     log,
		devices: devices,
		engine:  engine,
		clock:   clock,
		options: options,
		ready:   make(chan struct{}),
		bus:     pubsub.NewHub[pad.Identity, StateEvent](log.Named("bus")),
		pollers: xsync.NewMapOf[pad.Identity, *poller](),
	}
}

func (s *Service) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.devices.Ready():
	}

	events := s.devices.Events().Subscribe(ctx)
	for _, dev := range s.devices.List() {
		s.reconcileDevice(ctx, dev)
	}

	close(s.ready)
	s.log.Info("Polling orchestrator started",
		zap.Duration("interval", s.options.pollInterval))

	ticker := time.NewTicker(s.options.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return nil
		case <-ticker.C:
			for _, dev := range s.devices.List() {
				s.reconcileDevice(ctx, dev)
			}
		case msg := <-events:
			s.reconcileDevice(ctx, msg.Payload.Device)
		}
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// States returns the snapshot bus. Subscribers receive one event per
// state change, not per tick.
func (s *Service) States() *StateBus {
	return s.bus
}

// reconcileDevice starts or stops the device's poller to match its
// pollable state. Method changes on a running poller are not handled
// here; the poller folds them in itself via the reload flag.
func (s *Service) reconcileDevice(ctx context.Context, dev devsvc.UserDevice) {
	p, running := s.pollers.Load(dev.Identity)
	switch {
	case dev.Pollable() && !running:
		p = newPoller(s, dev)
		s.pollers.Store(dev.Identity, p)
		pctx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		go p.run(pctx)
	case !dev.Pollable() && running:
		s.pollers.Delete(dev.Identity)
		p.stop()
	}
}

func (s *Service) stopAll() {
	s.pollers.Range(func(id pad.Identity, p *poller) bool {
		s.pollers.Delete(id)
		p.stop()
		return true
	})
}

// ActiveCount reports how many devices currently hold an acquired
// handle on the method. Feeds the per-method device caps during
// validation.
func (s *Service) ActiveCount(m pad.InputMethod) int {
	n := 0
	s.pollers.Range(func(_ pad.Identity, p *poller) bool {
		if a := p.active.Load(); a != nil && *a == m {
			n++
		}
		return true
	})
	return n
}

// Status reports the polling view of one device. Devices known to the
// registry but not being polled answer with an inactive status.
func (s *Service) Status(id pad.Identity) (Status, error) {
	if p, ok := s.pollers.Load(id); ok {
		return p.status(), nil
	}
	dev, err := s.devices.Get(id)
	if err != nil {
		return Status{}, err
	}
	return Status{Identity: id, Method: dev.InputMethod}, nil
}

// Statuses reports the polling view of every registry device, ordered
// by identity.
func (s *Service) Statuses() []Status {
	devs := s.devices.List()
	out := make([]Status, 0, len(devs))
	for _, dev := range devs {
		st, err := s.Status(dev.Identity)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}
