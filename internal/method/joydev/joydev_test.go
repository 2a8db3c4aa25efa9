package joydev

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/padbridge/padbridge/internal/linux"
	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
)

var xboxIdentity = pad.Identity{VendorID: 0x045e, ProductID: 0x028e, Instance: "t"}

func event(kind, number uint8, value int16) linux.JSEvent {
	return linux.JSEvent{Type: kind, Number: number, Value: value}
}

func TestXboxMappingButtons(t *testing.T) {
	h := &handle{log: zap.NewNop(), mapping: xboxMapping, released: atomic.NewBool(false)}

	h.apply(event(linux.JSEventButton, 0, 1))
	h.apply(event(linux.JSEventButton, 7, 1))
	if !h.ps.state.Buttons.IsSet(pad.ButtonA) || !h.ps.state.Buttons.IsSet(pad.ButtonStart) {
		t.Errorf("buttons = %s", h.ps.state.Buttons)
	}

	// Slot 8 is the guide button on the wire; the interface never
	// exposes it.
	h.apply(event(linux.JSEventButton, 8, 1))
	if h.ps.state.Buttons.IsSet(pad.ButtonGuide) {
		t.Error("guide button must stay dark on this interface")
	}

	h.apply(event(linux.JSEventButton|linux.JSEventInit, 0, 0))
	if h.ps.state.Buttons.IsSet(pad.ButtonA) {
		t.Error("init event should release button a")
	}
}

func TestXboxMappingSharedTrigger(t *testing.T) {
	h := &handle{log: zap.NewNop(), mapping: xboxMapping, released: atomic.NewBool(false)}

	h.apply(event(linux.JSEventAxis, 2, 32767))
	if lt := h.ps.state.Axes[pad.AxisLeftTrigger]; lt != 1 {
		t.Errorf("left trigger = %v, want 1", lt)
	}
	if rt := h.ps.state.Axes[pad.AxisRightTrigger]; rt != -1 {
		t.Errorf("right trigger = %v, want -1", rt)
	}

	h.apply(event(linux.JSEventAxis, 2, -32767))
	if lt := h.ps.state.Axes[pad.AxisLeftTrigger]; lt != -1 {
		t.Errorf("left trigger = %v, want -1", lt)
	}
	if rt := h.ps.state.Axes[pad.AxisRightTrigger]; rt != 1 {
		t.Errorf("right trigger = %v, want 1", rt)
	}

	h.apply(event(linux.JSEventAxis, 2, 0))
	if h.ps.state.Axes[pad.AxisLeftTrigger] != -1 || h.ps.state.Axes[pad.AxisRightTrigger] != -1 {
		t.Error("both triggers should rest at -1")
	}
}

func TestXboxMappingSticksAndHat(t *testing.T) {
	h := &handle{log: zap.NewNop(), mapping: xboxMapping, released: atomic.NewBool(false)}

	h.apply(event(linux.JSEventAxis, 1, -32767)) // stick pushed up
	if v := h.ps.state.Axes[pad.AxisLeftY]; v != 1 {
		t.Errorf("left y = %v, want 1 when pushed up", v)
	}
	h.apply(event(linux.JSEventAxis, 4, 32767)) // stick pulled down
	if v := h.ps.state.Axes[pad.AxisRightY]; v != -1 {
		t.Errorf("right y = %v, want -1 when pulled down", v)
	}

	h.apply(event(linux.JSEventAxis, 5, 32767))  // hat right
	h.apply(event(linux.JSEventAxis, 6, -32767)) // hat up
	if h.ps.state.DPad != pad.DPadUpRight {
		t.Errorf("dpad = %s, want up_right", h.ps.state.DPad)
	}
	h.apply(event(linux.JSEventAxis, 5, 0))
	h.apply(event(linux.JSEventAxis, 6, 0))
	if h.ps.state.DPad != pad.DPadCentered {
		t.Errorf("dpad = %s, want centered", h.ps.state.DPad)
	}
}

func TestGenericMapping(t *testing.T) {
	h := &handle{log: zap.NewNop(), mapping: genericMapping, released: atomic.NewBool(false)}

	h.apply(event(linux.JSEventButton, 11, 1))
	if !h.ps.state.Buttons.IsSet(pad.ButtonExtra1) {
		t.Error("wire button 11 should land on extra1")
	}
	h.apply(event(linux.JSEventButton, 30, 1))
	if h.ps.state.Buttons != 1<<11 {
		t.Errorf("out-of-range button changed state: %s", h.ps.state.Buttons)
	}

	h.apply(event(linux.JSEventAxis, 3, -32767))
	if v := h.ps.state.Axes[pad.AxisRightY]; v != 1 {
		t.Errorf("right y = %v, want 1", v)
	}
	if h.ps.state.Axes[pad.AxisLeftTrigger] != 0 {
		t.Error("generic mapping must not touch triggers")
	}
}

func TestMappingSelection(t *testing.T) {
	if m := mappingFor(xboxIdentity); m != xboxMapping {
		t.Errorf("mapping = %s, want xbox", m.name)
	}
	if m := mappingFor(pad.Identity{VendorID: 0x1234, ProductID: 0x0001}); m != genericMapping {
		t.Errorf("mapping = %s, want generic", m.name)
	}
}

// pipeHandle builds a handle reading from an in-process pipe instead
// of a device node.
func pipeHandle(t *testing.T) (*handle, int) {
	t.Helper()
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatal(err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatal(err)
	}
	h := newHandle(zap.NewNop(), fds[0], xboxIdentity, xboxMapping)
	t.Cleanup(func() {
		h.Release()
		unix.Close(fds[1])
	})
	return h, fds[1]
}

func TestReadStateDrainsPendingEvents(t *testing.T) {
	h, w := pipeHandle(t)

	buf := make([]byte, linux.JSEventSize*2)
	writeEvent(buf[0:], linux.JSEventButton|linux.JSEventInit, 1, 1)
	writeEvent(buf[linux.JSEventSize:], linux.JSEventAxis, 0, 32767)
	if _, err := unix.Write(w, buf); err != nil {
		t.Fatal(err)
	}

	st, err := h.ReadState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Buttons.IsSet(pad.ButtonB) {
		t.Error("init button event not applied")
	}
	if st.Axes[pad.AxisLeftX] != 1 {
		t.Errorf("left x = %v, want 1", st.Axes[pad.AxisLeftX])
	}

	// Nothing new pending: state is stable.
	again, err := h.ReadState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(st) {
		t.Errorf("state drifted without events: %+v != %+v", again, st)
	}
}

func writeEvent(b []byte, kind, number uint8, value int16) {
	ev := linux.JSEvent{Type: kind, Number: number, Value: value}
	b[4] = byte(uint16(ev.Value))
	b[5] = byte(uint16(ev.Value) >> 8)
	b[6] = ev.Type
	b[7] = ev.Number
}

func TestReadStateAfterRelease(t *testing.T) {
	h, _ := pipeHandle(t)
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
	if err := h.Release(); err != nil {
		t.Errorf("second release = %v, want nil", err)
	}
	if _, err := h.ReadState(context.Background()); !errors.Is(err, pad.ErrHandleReleased) {
		t.Fatalf("error = %v, want ErrHandleReleased", err)
	}
	if res := h.SendFeedback(pad.Feedback{}); res.OK {
		t.Error("feedback after release must fail")
	}
}

func TestReadStateExpiredContext(t *testing.T) {
	h, _ := pipeHandle(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ReadState(ctx)
	var readErr *pad.ReadError
	if !errors.As(err, &readErr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want ReadError wrapping context.Canceled", err)
	}
}

func TestValidateIsAdvisoryOnly(t *testing.T) {
	p := New(zap.NewNop())

	desc := pad.Descriptors{}
	desc.Set(pad.MethodJoydev, "path", "/dev/input/js0")
	res := p.Validate(xboxIdentity, desc, method.Env{})
	if !res.OK {
		t.Fatalf("validation = %+v, joydev must never reject", res)
	}
	if len(res.Warnings) < 2 {
		t.Errorf("warnings = %v, want background and rumble advisories", res.Warnings)
	}

	other := p.Validate(pad.Identity{VendorID: 0x1234}, desc, method.Env{})
	if !other.OK || len(other.Warnings) != 1 {
		t.Errorf("generic pad validation = %+v, want single rumble advisory", other)
	}
}

func TestFeedbackUnsupported(t *testing.T) {
	h := &handle{log: zap.NewNop(), mapping: genericMapping, released: atomic.NewBool(false)}
	res := h.SendFeedback(pad.Feedback{LowFrequency: 1})
	if res.OK || res.Reason != pad.FeedbackReasonUnsupported {
		t.Errorf("feedback = %+v, want unsupported", res)
	}
	if h.FeedbackCaps().Supported {
		t.Error("caps must report no rumble")
	}
}
