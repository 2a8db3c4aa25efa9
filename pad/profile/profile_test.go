package profile

import (
	"encoding/binary"
	"testing"

	"github.com/padbridge/padbridge/pad"
)

func xboxBody(lx, ly, rx, ry int16, lt, rt uint8, mask uint16) []byte {
	body := make([]byte, 12)
	binary.LittleEndian.PutUint16(body[0:2], uint16(lx))
	binary.LittleEndian.PutUint16(body[2:4], uint16(ly))
	binary.LittleEndian.PutUint16(body[4:6], uint16(rx))
	binary.LittleEndian.PutUint16(body[6:8], uint16(ry))
	body[8] = lt
	body[9] = rt
	binary.LittleEndian.PutUint16(body[10:12], mask)
	return body
}

func TestLookup(t *testing.T) {
	xid := pad.Identity{VendorID: 0x045e, ProductID: 0x02dd, Instance: "s"}
	p, ok := Lookup(xid)
	if !ok || p.Name != "Xbox-style pad" {
		t.Fatalf("Lookup(%s) = %v, %v", xid, p, ok)
	}
	if !XboxStyle(xid) || !ConsoleCapable(xid) {
		t.Error("xbox pad should be xbox-style and console-capable")
	}

	ds := pad.Identity{VendorID: 0x054c, ProductID: 0x0ce6, Instance: "s"}
	if XboxStyle(ds) || ConsoleCapable(ds) {
		t.Error("dualsense is neither xbox-style nor console-capable")
	}

	unknown := pad.Identity{VendorID: 0x1234, ProductID: 0x5678, Instance: "s"}
	if _, ok := Lookup(unknown); ok {
		t.Error("unknown identity should not resolve")
	}
}

func TestParseXboxTriggers(t *testing.T) {
	var st pad.State
	if err := xboxPad.Parse(xboxBody(0, 0, 0, 0, 0, 255, 0), &st); err != nil {
		t.Fatal(err)
	}
	if st.Axes[pad.AxisLeftTrigger] != -1.0 {
		t.Errorf("left trigger = %v, want -1.0", st.Axes[pad.AxisLeftTrigger])
	}
	if st.Axes[pad.AxisRightTrigger] != 1.0 {
		t.Errorf("right trigger = %v, want 1.0", st.Axes[pad.AxisRightTrigger])
	}
	if st.Buttons != 0 || st.DPad != pad.DPadCentered {
		t.Errorf("trigger-only report touched buttons/dpad: %+v", st)
	}
}

func TestParseXboxTriggerChangeIsIsolated(t *testing.T) {
	mask := uint16(xboxMaskA | xboxMaskDPadUp | xboxMaskLB)
	var before, after pad.State
	if err := xboxPad.Parse(xboxBody(1000, -2000, 3000, -4000, 50, 0, mask), &before); err != nil {
		t.Fatal(err)
	}
	if err := xboxPad.Parse(xboxBody(1000, -2000, 3000, -4000, 50, 200, mask), &after); err != nil {
		t.Fatal(err)
	}

	if before.Axes[pad.AxisRightTrigger] == after.Axes[pad.AxisRightTrigger] {
		t.Error("right trigger did not change")
	}
	if before.Buttons != after.Buttons || before.DPad != after.DPad {
		t.Error("buttons/dpad changed with the trigger")
	}
	for _, a := range []pad.Axis{pad.AxisLeftX, pad.AxisLeftY, pad.AxisRightX, pad.AxisRightY, pad.AxisLeftTrigger} {
		if before.Axes[a] != after.Axes[a] {
			t.Errorf("axis %s changed with the trigger", a)
		}
	}
}

func TestParseXboxButtons(t *testing.T) {
	var st pad.State
	mask := uint16(xboxMaskA | xboxMaskY | xboxMaskStart | xboxMaskRightStick |
		xboxMaskGuide | xboxMaskDPadDown | xboxMaskDPadLeft)
	if err := xboxPad.Parse(xboxBody(0, 0, 0, 0, 0, 0, mask), &st); err != nil {
		t.Fatal(err)
	}
	for _, btn := range []pad.Button{pad.ButtonA, pad.ButtonY, pad.ButtonStart, pad.ButtonRightStick} {
		if !st.Buttons.IsSet(btn) {
			t.Errorf("button %s not set", btn)
		}
	}
	if st.Buttons.IsSet(pad.ButtonGuide) {
		t.Error("guide must stay unmapped on the raw path")
	}
	if st.DPad != pad.DPadDownLeft {
		t.Errorf("dpad = %s, want down_left", st.DPad)
	}
}

func TestParseXboxSticks(t *testing.T) {
	var st pad.State
	if err := xboxPad.Parse(xboxBody(32767, -32768, 0, 16384, 0, 0, 0), &st); err != nil {
		t.Fatal(err)
	}
	if st.Axes[pad.AxisLeftX] != 1.0 {
		t.Errorf("left x = %v, want 1.0", st.Axes[pad.AxisLeftX])
	}
	if st.Axes[pad.AxisLeftY] != -1.0 {
		t.Errorf("left y = %v, want -1.0 (clamped)", st.Axes[pad.AxisLeftY])
	}
	if st.Axes[pad.AxisRightX] != 0 {
		t.Errorf("right x = %v, want 0", st.Axes[pad.AxisRightX])
	}
	if got := st.Axes[pad.AxisRightY]; got <= 0.49 || got >= 0.51 {
		t.Errorf("right y = %v, want ~0.5", got)
	}
}

func TestParseXboxShortReport(t *testing.T) {
	var st pad.State
	if err := xboxPad.Parse(make([]byte, 4), &st); err == nil {
		t.Error("expected error for short report")
	}
}

func TestXboxRumbleReport(t *testing.T) {
	id, body := xboxPad.Rumble(pad.Feedback{LowFrequency: 1.0, HighFrequency: 0.5})
	if id != 0x03 {
		t.Errorf("report id = %#x, want 0x03", id)
	}
	if len(body) != 3 || body[0] != 0x03 || body[1] != 255 || body[2] != 127 {
		t.Errorf("body = %v", body)
	}
	// Intensities clamp rather than wrap.
	_, body = xboxPad.Rumble(pad.Feedback{LowFrequency: 7.0})
	if body[1] != 255 {
		t.Errorf("clamped low = %d, want 255", body[1])
	}
}

func TestParseDualSense(t *testing.T) {
	body := make([]byte, 10)
	body[0], body[1], body[2], body[3] = 128, 0, 255, 128
	body[4], body[5] = 0, 255
	body[7] = 0x20 | 0x00   // cross pressed, hat up
	body[8] = 0x01 | 0x20   // L1, options
	body[9] = 0x01 | 0x02   // home (unmapped), touchpad click

	var st pad.State
	if err := dualSense.Parse(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Axes[pad.AxisLeftY] != 1.0 {
		t.Errorf("left y = %v, want 1.0 (stick up inverts)", st.Axes[pad.AxisLeftY])
	}
	if st.Axes[pad.AxisRightX] != 1.0 {
		t.Errorf("right x = %v, want 1.0", st.Axes[pad.AxisRightX])
	}
	if st.Axes[pad.AxisLeftTrigger] != -1.0 || st.Axes[pad.AxisRightTrigger] != 1.0 {
		t.Errorf("triggers = %v, %v", st.Axes[pad.AxisLeftTrigger], st.Axes[pad.AxisRightTrigger])
	}
	if st.DPad != pad.DPadUp {
		t.Errorf("dpad = %s, want up", st.DPad)
	}
	for _, btn := range []pad.Button{pad.ButtonA, pad.ButtonLeftBumper, pad.ButtonStart, pad.ButtonExtra1} {
		if !st.Buttons.IsSet(btn) {
			t.Errorf("button %s not set", btn)
		}
	}
	if st.Buttons.IsSet(pad.ButtonGuide) {
		t.Error("home bit must stay unmapped on the raw path")
	}
}

// Pressing the same physical face button must land on the same
// canonical index regardless of which profile parsed it.
func TestCrossProfileButtonIndices(t *testing.T) {
	var xbox pad.State
	if err := xboxPad.Parse(xboxBody(0, 0, 0, 0, 0, 0, xboxMaskA), &xbox); err != nil {
		t.Fatal(err)
	}

	ds := make([]byte, 10)
	ds[7] = 0x20 // cross = south face button
	var sony pad.State
	if err := dualSense.Parse(ds, &sony); err != nil {
		t.Fatal(err)
	}

	if !xbox.Buttons.IsSet(pad.ButtonA) || !sony.Buttons.IsSet(pad.ButtonA) {
		t.Error("south face button must map to index 0 on every profile")
	}
	if xbox.Buttons != sony.Buttons {
		t.Errorf("button sets differ: %s vs %s", xbox.Buttons, sony.Buttons)
	}
}
