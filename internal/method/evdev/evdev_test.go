package evdev

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

func testHandle() *handle {
	h := newHandle(zap.NewNop(), -1, pad.Identity{VendorID: 0x045e, ProductID: 0x02ea, Instance: "t"}, false)
	h.ranges = map[uint16]linux.AbsInfo{
		linux.AbsX:  {Minimum: -32768, Maximum: 32767},
		linux.AbsY:  {Minimum: -32768, Maximum: 32767},
		linux.AbsRx: {Minimum: -32768, Maximum: 32767},
		linux.AbsRy: {Minimum: -32768, Maximum: 32767},
		linux.AbsZ:  {Minimum: 0, Maximum: 1023},
		linux.AbsRz: {Minimum: 0, Maximum: 1023},
	}
	return h
}

func key(code uint16, value int32) linux.InputEvent {
	return linux.InputEvent{Type: linux.EvKey, Code: code, Value: value}
}

func abs(code uint16, value int32) linux.InputEvent {
	return linux.InputEvent{Type: linux.EvAbs, Code: code, Value: value}
}

func TestButtonTranslation(t *testing.T) {
	h := testHandle()

	h.apply(key(linux.BtnSouth, 1))
	h.apply(key(linux.BtnNorth, 1))
	h.apply(key(linux.BtnMode, 1))
	if !h.ps.state.Buttons.IsSet(pad.ButtonA) {
		t.Error("BtnSouth should press button a")
	}
	// The kernel alias puts the X button on the north code.
	if !h.ps.state.Buttons.IsSet(pad.ButtonX) {
		t.Error("BtnNorth should press button x")
	}
	if !h.ps.state.Buttons.IsSet(pad.ButtonGuide) {
		t.Error("BtnMode should press the guide button")
	}

	h.apply(key(linux.BtnSouth, 0))
	if h.ps.state.Buttons.IsSet(pad.ButtonA) {
		t.Error("release event should clear button a")
	}

	h.apply(key(0x1ff, 1)) // unmapped code
	if h.ps.state.Buttons.IsSet(pad.ButtonB) {
		t.Error("unmapped code must not change state")
	}
}

func TestSeparateTriggerAxes(t *testing.T) {
	h := testHandle()

	h.apply(abs(linux.AbsZ, 0))
	h.apply(abs(linux.AbsRz, 1023))
	if lt := h.ps.state.Axes[pad.AxisLeftTrigger]; lt != -1 {
		t.Errorf("left trigger = %v, want -1", lt)
	}
	if rt := h.ps.state.Axes[pad.AxisRightTrigger]; rt != 1 {
		t.Errorf("right trigger = %v, want 1", rt)
	}

	// Pulling one trigger must not move the other.
	h.apply(abs(linux.AbsZ, 1023))
	if rt := h.ps.state.Axes[pad.AxisRightTrigger]; rt != 1 {
		t.Errorf("right trigger drifted to %v", rt)
	}
}

func TestStickSigns(t *testing.T) {
	h := testHandle()

	h.apply(abs(linux.AbsY, -32768)) // pushed up
	if v := h.ps.state.Axes[pad.AxisLeftY]; v != 1 {
		t.Errorf("left y = %v, want 1 when pushed up", v)
	}
	h.apply(abs(linux.AbsRx, 32767))
	if v := h.ps.state.Axes[pad.AxisRightX]; v != 1 {
		t.Errorf("right x = %v, want 1", v)
	}
}

func TestDpadFromHatAndButtons(t *testing.T) {
	h := testHandle()

	h.apply(abs(linux.AbsHat0X, 1))
	h.apply(abs(linux.AbsHat0Y, -1))
	if h.ps.state.DPad != pad.DPadUpRight {
		t.Errorf("dpad = %s, want up_right", h.ps.state.DPad)
	}
	h.apply(abs(linux.AbsHat0X, 0))
	h.apply(abs(linux.AbsHat0Y, 0))
	if h.ps.state.DPad != pad.DPadCentered {
		t.Errorf("dpad = %s, want centered", h.ps.state.DPad)
	}

	h.apply(key(linux.BtnDpadLeft, 1))
	if h.ps.state.DPad != pad.DPadLeft {
		t.Errorf("dpad = %s, want left from button", h.ps.state.DPad)
	}
	h.apply(key(linux.BtnDpadLeft, 0))
	if h.ps.state.DPad != pad.DPadCentered {
		t.Errorf("dpad = %s, want centered after release", h.ps.state.DPad)
	}
}

func TestTriggerButtons(t *testing.T) {
	h := testHandle()
	h.apply(key(linux.BtnTL2, 1))
	if v := h.ps.state.Axes[pad.AxisLeftTrigger]; v != 1 {
		t.Errorf("left trigger = %v, want 1 from button press", v)
	}
	h.apply(key(linux.BtnTL2, 0))
	if v := h.ps.state.Axes[pad.AxisLeftTrigger]; v != -1 {
		t.Errorf("left trigger = %v, want -1 after release", v)
	}
}

func TestValidatePlatformRequirements(t *testing.T) {
	p := New(zap.NewNop())
	id := pad.Identity{VendorID: 0x045e, ProductID: 0x02ea, Instance: "t"}
	desc := pad.Descriptors{}
	desc.Set(pad.MethodEvdev, "path", "/dev/input/event7")

	okEnv := method.Env{Kernel: method.KernelVersion{Major: 6, Minor: 1}, InputAccess: true}
	if res := p.Validate(id, desc, okEnv); !res.OK {
		t.Fatalf("validation = %+v, want ok", res)
	}

	old := method.Env{Kernel: method.KernelVersion{Major: 4, Minor: 17}, InputAccess: true}
	res := p.Validate(id, desc, old)
	if res.OK || res.Reason != pad.ReasonPlatformRequirement {
		t.Errorf("old kernel validation = %+v, want platform requirement rejection", res)
	}

	noAccess := method.Env{Kernel: method.KernelVersion{Major: 6, Minor: 1}, InputAccess: false}
	res = p.Validate(id, desc, noAccess)
	if res.OK || res.Reason != pad.ReasonPlatformRequirement {
		t.Errorf("no-access validation = %+v, want platform requirement rejection", res)
	}

	res = p.Validate(id, pad.Descriptors{}, okEnv)
	if res.OK || res.Reason != pad.ReasonNotCapable {
		t.Errorf("missing node validation = %+v, want not capable", res)
	}
}

func TestFeedbackWithoutRumble(t *testing.T) {
	h := testHandle()
	res := h.SendFeedback(pad.Feedback{LowFrequency: 1})
	if res.OK || res.Reason != pad.FeedbackReasonUnsupported {
		t.Errorf("feedback = %+v, want unsupported", res)
	}
	if h.FeedbackCaps().Supported {
		t.Error("caps must report no rumble without the kernel bit")
	}

	h.ffRumble = true
	h.ffWritable = true
	if caps := h.FeedbackCaps(); !caps.Supported || caps.Motors != 2 || caps.TriggerMotors {
		t.Errorf("caps = %+v, want two plain motors", caps)
	}
}

func TestReadStateDrainsPipe(t *testing.T) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatal(err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatal(err)
	}
	h := testHandle()
	h.fd = fds[0]
	t.Cleanup(func() {
		h.Release()
		unix.Close(fds[1])
	})

	buf := make([]byte, linux.InputEventSize*3)
	key(linux.BtnEast, 1).Encode(buf[0:])
	abs(linux.AbsX, 32767).Encode(buf[linux.InputEventSize:])
	linux.InputEvent{Type: linux.EvSyn, Code: linux.SynReport}.Encode(buf[2*linux.InputEventSize:])
	if _, err := unix.Write(fds[1], buf); err != nil {
		t.Fatal(err)
	}

	st, err := h.ReadState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Buttons.IsSet(pad.ButtonB) {
		t.Error("button event not applied")
	}
	if st.Axes[pad.AxisLeftX] != 1 {
		t.Errorf("left x = %v, want 1", st.Axes[pad.AxisLeftX])
	}
}

func TestReadStateAfterRelease(t *testing.T) {
	h := testHandle()
	h.released = atomic.NewBool(true)
	if _, err := h.ReadState(context.Background()); !errors.Is(err, pad.ErrHandleReleased) {
		t.Fatalf("error = %v, want ErrHandleReleased", err)
	}
}
