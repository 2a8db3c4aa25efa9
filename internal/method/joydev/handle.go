package joydev

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/padbridge/padbridge/internal/linux"
	"github.com/padbridge/padbridge/pad"
)

type handle struct {
	log      *zap.Logger
	fd       int
	id       pad.Identity
	mapping  *modelMapping
	released *atomic.Bool

	ps  padState
	buf [linux.JSEventSize * 64]byte
}

func newHandle(log *zap.Logger, fd int, id pad.Identity, mapping *modelMapping) *handle {
	log.Debug("joystick acquired", zap.String("mapping", mapping.name))
	return &handle{
		log:      log,
		fd:       fd,
		id:       id,
		mapping:  mapping,
		released: atomic.NewBool(false),
	}
}

// ReadState drains all pending events into the accumulated state. The
// driver replays the full device state as init events right after
// open, so the first drain seeds every button and axis.
func (h *handle) ReadState(ctx context.Context) (pad.State, error) {
	if h.released.Load() {
		return pad.State{}, pad.ErrHandleReleased
	}
	if err := ctx.Err(); err != nil {
		return pad.State{}, &pad.ReadError{Identity: h.id, Err: err}
	}
	for {
		n, err := unix.Read(h.fd, h.buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			break
		}
		if err != nil {
			if h.released.Load() {
				return pad.State{}, pad.ErrHandleReleased
			}
			return pad.State{}, &pad.ReadError{Identity: h.id,
				Err: fmt.Errorf("failed to read joystick events: %w", err)}
		}
		if n < linux.JSEventSize {
			break
		}
		for off := 0; off+linux.JSEventSize <= n; off += linux.JSEventSize {
			h.apply(linux.DecodeJSEvent(h.buf[off : off+linux.JSEventSize]))
		}
	}
	return h.ps.state, nil
}

func (h *handle) apply(ev linux.JSEvent) {
	switch ev.Kind() {
	case linux.JSEventButton:
		b, ok := h.mapping.button(ev.Number)
		if !ok {
			return
		}
		if ev.Value != 0 {
			h.ps.state.Buttons.Press(b)
		} else {
			h.ps.state.Buttons.Release(b)
		}
	case linux.JSEventAxis:
		h.mapping.axis(&h.ps, ev.Number, ev.Value)
	}
}

func (h *handle) SendFeedback(fb pad.Feedback) pad.FeedbackResult {
	if h.released.Load() {
		return pad.FeedbackFailed(pad.ErrHandleReleased)
	}
	return pad.FeedbackUnsupported("the legacy joystick interface cannot vibrate")
}

func (h *handle) FeedbackCaps() pad.FeedbackCaps {
	return pad.FeedbackCaps{}
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.Close(h.fd); err != nil {
		return fmt.Errorf("failed to close joystick node: %w", err)
	}
	return nil
}
