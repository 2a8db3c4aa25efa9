package xusb

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/pad"
)

type handle struct {
	log *zap.Logger
	id  pad.Identity

	dev    *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint

	released  *atomic.Bool
	onRelease func()
	seq       *atomic.Uint32

	cancel  context.CancelFunc
	reports chan []byte
	readErr *atomic.Error

	last  pad.State
	guide bool
}

// newHandle claims the pad's vendor interface, sends the init packet
// and starts the report pump. The kernel driver is detached for the
// duration of the claim.
func newHandle(log *zap.Logger, dev *gousb.Device, id pad.Identity, onRelease func()) (*handle, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("failed to set auto-detach: %w", err)
	}
	config, err := dev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to claim configuration: %w", err)
	}
	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}
	in, err := intf.InEndpoint(1)
	if err != nil {
		intf.Close()
		config.Close()
		return nil, fmt.Errorf("failed to open in endpoint: %w", err)
	}
	out, err := intf.OutEndpoint(1)
	if err != nil {
		intf.Close()
		config.Close()
		return nil, fmt.Errorf("failed to open out endpoint: %w", err)
	}

	if _, err := out.Write(initPacket); err != nil {
		intf.Close()
		config.Close()
		return nil, fmt.Errorf("failed to send init packet: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		log:       log,
		id:        id,
		dev:       dev,
		config:    config,
		intf:      intf,
		in:        in,
		out:       out,
		released:  atomic.NewBool(false),
		onRelease: onRelease,
		seq:       atomic.NewUint32(0),
		cancel:    cancel,
		reports:   make(chan []byte, 64),
		readErr:   atomic.NewError(nil),
	}
	go h.readLoop(ctx)
	return h, nil
}

func (h *handle) readLoop(ctx context.Context) {
	buf := make([]byte, 64)
	for {
		n, err := h.in.ReadContext(ctx, buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			h.readErr.Store(fmt.Errorf("failed to read usb report: %w", err))
			return
		}
		if n == 0 {
			continue
		}
		report := make([]byte, n)
		copy(report, buf[:n])
		select {
		case h.reports <- report:
		default:
			select {
			case <-h.reports:
			default:
			}
			h.reports <- report
		}
	}
}

// ReadState drains buffered reports. Guide presses arrive in their own
// report type and persist across input reports, so the two streams are
// merged here.
func (h *handle) ReadState(ctx context.Context) (pad.State, error) {
	if h.released.Load() {
		return pad.State{}, pad.ErrHandleReleased
	}
	if err := h.readErr.Load(); err != nil {
		return pad.State{}, &pad.ReadError{Identity: h.id, Err: err}
	}
	for {
		select {
		case report := <-h.reports:
			if err := h.decode(report); err != nil {
				h.log.Debug("skipping report", zap.Error(err))
			}
		case <-ctx.Done():
			return pad.State{}, &pad.ReadError{Identity: h.id, Err: ctx.Err()}
		default:
			st := h.last
			if h.guide {
				st.Buttons.Press(pad.ButtonGuide)
			}
			return st, nil
		}
	}
}

func (h *handle) decode(report []byte) error {
	if len(report) == 0 {
		return fmt.Errorf("empty report")
	}
	switch report[0] {
	case msgInput:
		st := pad.State{}
		if err := parseInput(report, &st); err != nil {
			return err
		}
		h.last = st
	case msgGuide:
		pressed, err := parseGuide(report)
		if err != nil {
			return err
		}
		h.guide = pressed
	}
	return nil
}

func (h *handle) SendFeedback(fb pad.Feedback) pad.FeedbackResult {
	if h.released.Load() {
		return pad.FeedbackFailed(pad.ErrHandleReleased)
	}
	packet := rumblePacket(uint8(h.seq.Inc()), fb)
	if _, err := h.out.Write(packet); err != nil {
		return pad.FeedbackFailed(fmt.Errorf("failed to write rumble packet: %w", err))
	}
	return pad.FeedbackDelivered()
}

func (h *handle) FeedbackCaps() pad.FeedbackCaps {
	return pad.FeedbackCaps{Supported: true, Motors: 2}
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	h.cancel()
	h.intf.Close()
	var errs []error
	if err := h.config.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := h.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	h.onRelease()
	if len(errs) > 0 {
		return fmt.Errorf("failed to release usb pad: %v", errs)
	}
	return nil
}
