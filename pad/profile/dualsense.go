package profile

import (
	"fmt"

	"github.com/padbridge/padbridge/pad"
)

// DualSense raw report body (after report ID 0x01), first 10 bytes:
//
//	0-3  sticks, unsigned bytes centered at 128, Y positive down
//	4    left trigger, 0..255
//	5    right trigger, 0..255
//	6    sequence counter
//	7    hat in the low nibble (8 = released), face buttons bits 4-7
//	8    bumpers, trigger clicks, create/options, stick clicks
//	9    home bit 0 (unmapped), touchpad click bit 1, mute bit 2
var dualSense = &Profile{
	Name:             "DualSense controller",
	VendorID:         0x054c,
	ProductIDs:       []uint16{0x0ce6},
	SeparateTriggers: true,

	InputID:   0x01,
	InputSize: 10,
}

// Parse is assigned in init to avoid an initialization cycle:
// parseDualSenseReport reads dualSense.InputSize.
func init() { dualSense.Parse = parseDualSenseReport }

var dualSenseHat = [8]pad.DPad{
	pad.DPadUp, pad.DPadUpRight, pad.DPadRight, pad.DPadDownRight,
	pad.DPadDown, pad.DPadDownLeft, pad.DPadLeft, pad.DPadUpLeft,
}

func parseDualSenseReport(body []byte, st *pad.State) error {
	if len(body) < dualSense.InputSize {
		return fmt.Errorf("short report: %d bytes", len(body))
	}
	st.Axes[pad.AxisLeftX] = pad.Normalize(int32(body[0]), 0, 255)
	st.Axes[pad.AxisLeftY] = -pad.Normalize(int32(body[1]), 0, 255)
	st.Axes[pad.AxisRightX] = pad.Normalize(int32(body[2]), 0, 255)
	st.Axes[pad.AxisRightY] = -pad.Normalize(int32(body[3]), 0, 255)
	st.Axes[pad.AxisLeftTrigger] = pad.Normalize(int32(body[4]), 0, 255)
	st.Axes[pad.AxisRightTrigger] = pad.Normalize(int32(body[5]), 0, 255)

	if hat := body[7] & 0x0f; hat < 8 {
		st.DPad = dualSenseHat[hat]
	}
	st.Buttons.Assign(pad.ButtonX, body[7]&0x10 != 0) // square
	st.Buttons.Assign(pad.ButtonA, body[7]&0x20 != 0) // cross
	st.Buttons.Assign(pad.ButtonB, body[7]&0x40 != 0) // circle
	st.Buttons.Assign(pad.ButtonY, body[7]&0x80 != 0) // triangle

	st.Buttons.Assign(pad.ButtonLeftBumper, body[8]&0x01 != 0)
	st.Buttons.Assign(pad.ButtonRightBumper, body[8]&0x02 != 0)
	st.Buttons.Assign(pad.ButtonBack, body[8]&0x10 != 0)  // create
	st.Buttons.Assign(pad.ButtonStart, body[8]&0x20 != 0) // options
	st.Buttons.Assign(pad.ButtonLeftStick, body[8]&0x40 != 0)
	st.Buttons.Assign(pad.ButtonRightStick, body[8]&0x80 != 0)

	st.Buttons.Assign(pad.ButtonExtra1, body[9]&0x02 != 0) // touchpad click
	st.Buttons.Assign(pad.ButtonExtra2, body[9]&0x04 != 0) // mute
	return nil
}
