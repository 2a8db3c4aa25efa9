// Package methodtest provides scriptable processor and handle fakes
// for service-level tests.
package methodtest

import (
	"context"
	"sync"
	"time"

	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
)

// Processor implements method.Processor with scriptable behavior.
// Unset hooks fall back to permissive defaults.
type Processor struct {
	Tag       pad.InputMethod
	CapsValue method.Caps
	Devices   []method.Discovered
	EnumErr   error

	CanProcessFn func(pad.Identity, pad.Descriptors) bool
	ValidateFn   func(pad.Identity, pad.Descriptors, method.Env) pad.ValidationResult
	AcquireFn    func(pad.Identity) (method.Handle, error)

	mu       sync.Mutex
	acquired []pad.Identity
}

func (p *Processor) Method() pad.InputMethod {
	return p.Tag
}

func (p *Processor) Caps() method.Caps {
	return p.CapsValue
}

func (p *Processor) Enumerate(ctx context.Context) ([]method.Discovered, error) {
	return p.Devices, p.EnumErr
}

func (p *Processor) CanProcess(id pad.Identity, desc pad.Descriptors) bool {
	if p.CanProcessFn != nil {
		return p.CanProcessFn(id, desc)
	}
	return true
}

func (p *Processor) Validate(id pad.Identity, desc pad.Descriptors, env method.Env) pad.ValidationResult {
	if p.ValidateFn != nil {
		return p.ValidateFn(id, desc, env)
	}
	return pad.Valid()
}

func (p *Processor) Acquire(ctx context.Context, id pad.Identity) (method.Handle, error) {
	p.mu.Lock()
	p.acquired = append(p.acquired, id)
	p.mu.Unlock()
	if p.AcquireFn != nil {
		return p.AcquireFn(id)
	}
	return &Handle{Caps: pad.FeedbackCaps{}}, nil
}

// Acquired lists every identity Acquire was called with, in order.
func (p *Processor) Acquired() []pad.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pad.Identity, len(p.acquired))
	copy(out, p.acquired)
	return out
}

// Handle implements method.Handle with scriptable reads and recorded
// feedback.
type Handle struct {
	StateFn    func(ctx context.Context) (pad.State, error)
	ReadDelay  time.Duration
	Caps       pad.FeedbackCaps
	FeedbackFn func(pad.Feedback) pad.FeedbackResult

	mu        sync.Mutex
	feedbacks []pad.Feedback
	released  bool
}

func (h *Handle) ReadState(ctx context.Context) (pad.State, error) {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return pad.State{}, pad.ErrHandleReleased
	}
	if h.ReadDelay > 0 {
		select {
		case <-time.After(h.ReadDelay):
		case <-ctx.Done():
			return pad.State{}, ctx.Err()
		}
	}
	if h.StateFn != nil {
		return h.StateFn(ctx)
	}
	return pad.State{}, nil
}

func (h *Handle) SendFeedback(fb pad.Feedback) pad.FeedbackResult {
	h.mu.Lock()
	h.feedbacks = append(h.feedbacks, fb)
	released := h.released
	h.mu.Unlock()
	if released {
		return pad.FeedbackFailed(pad.ErrHandleReleased)
	}
	if h.FeedbackFn != nil {
		return h.FeedbackFn(fb)
	}
	if !h.Caps.Supported {
		return pad.FeedbackUnsupported("fake handle has no rumble")
	}
	return pad.FeedbackDelivered()
}

func (h *Handle) FeedbackCaps() pad.FeedbackCaps {
	return h.Caps
}

func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	return nil
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Feedbacks lists every feedback sent, including after release.
func (h *Handle) Feedbacks() []pad.Feedback {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]pad.Feedback, len(h.feedbacks))
	copy(out, h.feedbacks)
	return out
}
