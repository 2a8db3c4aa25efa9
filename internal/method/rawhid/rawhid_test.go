package rawhid

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pad/profile"
	"github.com/padbridge/padbridge/pkg/hiddesc"
)

// genericDesc is a plain 16-button gamepad with a hat switch and four
// signed 8-bit axes (X, Y, Z, Rz): 7 byte reports, no report IDs.
var genericDesc = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x05, // Usage (Gamepad)
	0xa1, 0x01, // Collection (Application)
	0x05, 0x09, //   Usage Page (Button)
	0x19, 0x01, //   Usage Minimum (1)
	0x29, 0x10, //   Usage Maximum (16)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x10, //   Report Count (16)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0x05, 0x01, //   Usage Page (Generic Desktop)
	0x09, 0x39, //   Usage (Hat switch)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x07, //   Logical Maximum (7)
	0x75, 0x04, //   Report Size (4)
	0x95, 0x01, //   Report Count (1)
	0x81, 0x42, //   Input (Data,Var,Abs,Null)
	0x75, 0x04, //   Report Size (4)
	0x95, 0x01, //   Report Count (1)
	0x81, 0x01, //   Input (Const)
	0x09, 0x30, //   Usage (X)
	0x09, 0x31, //   Usage (Y)
	0x09, 0x32, //   Usage (Z)
	0x09, 0x35, //   Usage (Rz)
	0x15, 0x81, //   Logical Minimum (-127)
	0x25, 0x7f, //   Logical Maximum (127)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x04, //   Report Count (4)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0xc0, // End Collection
}

func decodeGeneric(t *testing.T, overrides Overrides) *genericParser {
	t.Helper()
	desc, err := hiddesc.Decode(genericDesc)
	if err != nil {
		t.Fatal(err)
	}
	return newGenericParser(desc, overrides)
}

func TestGenericParserMapsDeclarationOrder(t *testing.T) {
	g := decodeGeneric(t, nil)
	if g.UsesReportIDs() {
		t.Error("descriptor has no report ids")
	}
	if size := g.Size(0); size != 7 {
		t.Fatalf("report size = %d, want 7", size)
	}

	// Buttons 1 and 3 held, hat right, left stick up-right, right
	// stick pulled down on its second axis.
	body := []byte{0x05, 0x00, 0x02, 0x7f, 0x81, 0x00, 0x7f}
	st := pad.State{}
	if err := g.Parse(0, body, &st); err != nil {
		t.Fatal(err)
	}

	if !st.Buttons.IsSet(pad.ButtonA) || !st.Buttons.IsSet(pad.ButtonX) {
		t.Errorf("buttons = %s, want a and x", st.Buttons)
	}
	if st.Buttons.IsSet(pad.ButtonB) {
		t.Error("button b should not be pressed")
	}
	if st.DPad != pad.DPadRight {
		t.Errorf("dpad = %s, want right", st.DPad)
	}
	wantAxes := [pad.AxisCount]float64{1, 1, 0, -1, 0, 0}
	for i, want := range wantAxes {
		if st.Axes[i] != want {
			t.Errorf("axis %d = %v, want %v", i, st.Axes[i], want)
		}
	}
}

func TestGenericParserHatNullState(t *testing.T) {
	g := decodeGeneric(t, nil)
	body := []byte{0x00, 0x00, 0x0f, 0x00, 0x00, 0x00, 0x00}
	st := pad.State{}
	if err := g.Parse(0, body, &st); err != nil {
		t.Fatal(err)
	}
	if st.DPad != pad.DPadCentered {
		t.Errorf("dpad = %s, want centered on null state", st.DPad)
	}
}

func TestGenericParserOverrides(t *testing.T) {
	g := decodeGeneric(t, Overrides{
		"0009:0003": "button:extra1", // button 3 off its default slot
		"0001:0032": "ignore",        // drop Z, Rz takes its axis slot
	})

	body := []byte{0x04, 0x00, 0x00, 0x00, 0x00, 0x7f, 0x7f}
	st := pad.State{}
	if err := g.Parse(0, body, &st); err != nil {
		t.Fatal(err)
	}
	if !st.Buttons.IsSet(pad.ButtonExtra1) {
		t.Error("override did not remap button 3 to extra1")
	}
	if st.Buttons.IsSet(pad.ButtonX) {
		t.Error("default slot for button 3 still populated")
	}
	// Z was dropped, so Rz lands on the third axis slot uninverted.
	if st.Axes[pad.AxisRightX] != 1 {
		t.Errorf("rz axis = %v, want 1 on the slot z vacated", st.Axes[pad.AxisRightX])
	}
	if st.Axes[pad.AxisRightY] != 0 {
		t.Errorf("axis after dropped field = %v, want 0", st.Axes[pad.AxisRightY])
	}
}

func testHandle(parser reportParser) *handle {
	return &handle{
		log:      zap.NewNop(),
		parser:   parser,
		released: atomic.NewBool(false),
		readErr:  atomic.NewError(nil),
		reports:  make(chan []byte, 4),
		stop:     make(chan struct{}),
	}
}

func TestHandleDecodeProfileReport(t *testing.T) {
	prof, ok := profile.Lookup(pad.Identity{VendorID: 0x045e, ProductID: 0x028e})
	if !ok {
		t.Fatal("no profile for the wired pad")
	}
	h := testHandle(newProfileParser(prof))

	body := make([]byte, prof.InputSize)
	body[9] = 0xff // right trigger fully pressed
	report := append([]byte{prof.InputID}, body...)
	if err := h.decode(report); err != nil {
		t.Fatal(err)
	}
	if h.last.Axes[pad.AxisRightTrigger] != 1 {
		t.Errorf("right trigger = %v, want 1", h.last.Axes[pad.AxisRightTrigger])
	}
	if h.last.Axes[pad.AxisLeftTrigger] != -1 {
		t.Errorf("left trigger = %v, want -1 at rest", h.last.Axes[pad.AxisLeftTrigger])
	}

	if err := h.decode([]byte{0x07, 0x00}); err == nil {
		t.Error("expected error for unknown report id")
	}
	if err := h.decode(report[:4]); err == nil {
		t.Error("expected error for truncated report")
	}
}

func TestReadStateSurfacesStickyParseError(t *testing.T) {
	h := testHandle(nil)
	h.id = pad.Identity{VendorID: 1, ProductID: 2, Instance: "x"}
	h.parseErr = fmt.Errorf("%w: no mappable input fields", pad.ErrDescriptorUnparsable)

	_, err := h.ReadState(context.Background())
	var readErr *pad.ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("error = %v, want ReadError", err)
	}
	if !errors.Is(err, pad.ErrDescriptorUnparsable) {
		t.Errorf("error should wrap the descriptor failure, got %v", err)
	}
}

func TestReadStateAfterRelease(t *testing.T) {
	h := testHandle(decodeGeneric(t, nil))
	h.released.Store(true)
	if _, err := h.ReadState(context.Background()); !errors.Is(err, pad.ErrHandleReleased) {
		t.Fatalf("error = %v, want ErrHandleReleased", err)
	}
	if res := h.SendFeedback(pad.Feedback{LowFrequency: 1}); res.OK {
		t.Error("feedback on a released handle must not report delivery")
	}
}

func TestReadStateKeepsLastDecode(t *testing.T) {
	h := testHandle(decodeGeneric(t, nil))
	h.reports <- []byte{0x01, 0x00, 0x0f, 0x00, 0x00, 0x00, 0x00}

	st, err := h.ReadState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Buttons.IsSet(pad.ButtonA) {
		t.Fatal("buffered report not decoded")
	}

	// No new report: the same decode comes back.
	again, err := h.ReadState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(st) {
		t.Errorf("state changed without input: %+v != %+v", again, st)
	}
}

func TestValidateRequiresHIDInterface(t *testing.T) {
	p := New(zap.NewNop())
	id := pad.Identity{VendorID: 0x045e, ProductID: 0x028e, Instance: "serial"}

	bare := pad.Descriptors{}
	if p.CanProcess(id, bare) {
		t.Error("device without a hid interface should not be processable")
	}
	res := p.Validate(id, bare, method.Env{})
	if res.OK || res.Reason != pad.ReasonNotHIDCompliant {
		t.Errorf("validation = %+v, want not HID-compliant rejection", res)
	}

	seen := pad.Descriptors{}
	seen.Set(pad.MethodHidraw, "path", "/dev/hidraw3")
	if !p.CanProcess(id, seen) {
		t.Error("enumerated device should be processable")
	}
	if res := p.Validate(id, seen, method.Env{}); !res.OK {
		t.Errorf("validation = %+v, want ok", res)
	}
}

func TestFeedbackWithoutRumbleMapping(t *testing.T) {
	h := testHandle(decodeGeneric(t, nil))
	res := h.SendFeedback(pad.Feedback{LowFrequency: 0.5})
	if res.OK || res.Reason != pad.FeedbackReasonUnsupported {
		t.Errorf("feedback = %+v, want unsupported", res)
	}
}
