package profile

import (
	"encoding/binary"
	"fmt"

	"github.com/padbridge/padbridge/pad"
)

// Xbox-style pad raw report body (after report ID 0x01), 12 bytes:
//
//	0-7   sticks, four little-endian int16, Y positive up
//	8     left trigger, 0..255
//	9     right trigger, 0..255
//	10-11 button mask, little-endian uint16
const (
	xboxMaskDPadUp     = 0x0001
	xboxMaskDPadDown   = 0x0002
	xboxMaskDPadLeft   = 0x0004
	xboxMaskDPadRight  = 0x0008
	xboxMaskStart      = 0x0010
	xboxMaskBack       = 0x0020
	xboxMaskLeftStick  = 0x0040
	xboxMaskRightStick = 0x0080
	xboxMaskLB         = 0x0100
	xboxMaskRB         = 0x0200
	xboxMaskGuide      = 0x0400
	xboxMaskA          = 0x1000
	xboxMaskB          = 0x2000
	xboxMaskX          = 0x4000
	xboxMaskY          = 0x8000
)

var xboxPad = &Profile{
	Name:     "Xbox-style pad",
	VendorID: 0x045e,
	ProductIDs: []uint16{
		0x028e, // 360 pad and the XUSB-compatible clones binding its PID
		0x02d1, // One
		0x02dd, // One, 2015 firmware
		0x02e3, // One Elite
		0x02ea, // One S
		0x0b12, // Series
	},
	XboxStyle:        true,
	ConsoleCapable:   true,
	SeparateTriggers: true,

	InputID:   0x01,
	InputSize: 12,

	Rumble:       xboxRumbleReport,
	FeedbackCaps: pad.FeedbackCaps{Supported: true, Motors: 2},
}

// Parse is assigned in init to avoid an initialization cycle:
// parseXboxReport reads xboxPad.InputSize.
func init() { xboxPad.Parse = parseXboxReport }

var xboxButtonMap = []struct {
	mask   uint16
	button pad.Button
}{
	{xboxMaskA, pad.ButtonA},
	{xboxMaskB, pad.ButtonB},
	{xboxMaskX, pad.ButtonX},
	{xboxMaskY, pad.ButtonY},
	{xboxMaskLB, pad.ButtonLeftBumper},
	{xboxMaskRB, pad.ButtonRightBumper},
	{xboxMaskBack, pad.ButtonBack},
	{xboxMaskStart, pad.ButtonStart},
	{xboxMaskLeftStick, pad.ButtonLeftStick},
	{xboxMaskRightStick, pad.ButtonRightStick},
	// The guide bit is present in raw reports but this method does not
	// carry a guide button; the bit stays unmapped.
}

func parseXboxReport(body []byte, st *pad.State) error {
	if len(body) < xboxPad.InputSize {
		return fmt.Errorf("short report: %d bytes", len(body))
	}
	st.Axes[pad.AxisLeftX] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(body[0:2]))), 32767)
	st.Axes[pad.AxisLeftY] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(body[2:4]))), 32767)
	st.Axes[pad.AxisRightX] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(body[4:6]))), 32767)
	st.Axes[pad.AxisRightY] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(body[6:8]))), 32767)
	st.Axes[pad.AxisLeftTrigger] = pad.Normalize(int32(body[8]), 0, 255)
	st.Axes[pad.AxisRightTrigger] = pad.Normalize(int32(body[9]), 0, 255)

	mask := binary.LittleEndian.Uint16(body[10:12])
	for _, m := range xboxButtonMap {
		st.Buttons.Assign(m.button, mask&m.mask != 0)
	}

	x, y := 0, 0
	if mask&xboxMaskDPadRight != 0 {
		x++
	}
	if mask&xboxMaskDPadLeft != 0 {
		x--
	}
	if mask&xboxMaskDPadUp != 0 {
		y++
	}
	if mask&xboxMaskDPadDown != 0 {
		y--
	}
	st.DPad = pad.DPadFromVector(x, y)
	return nil
}

func xboxRumbleReport(fb pad.Feedback) (uint8, []byte) {
	fb = fb.Clamp()
	return 0x03, []byte{
		0x03, // enable both motors
		byte(fb.LowFrequency * 255),
		byte(fb.HighFrequency * 255),
	}
}
