package xusb

import (
	"encoding/binary"
	"fmt"

	"github.com/padbridge/padbridge/pad"
)

// Protocol message types.
const (
	msgInit   = 0x05
	msgGuide  = 0x07
	msgRumble = 0x09
	msgInput  = 0x20
)

const inputReportLen = 17

// initPacket announces the host to the pad; input reports start
// flowing after it.
var initPacket = []byte{msgInit, 0x20}

// Button bits in input report byte 3.
const (
	maskShare = 0x01
	maskMenu  = 0x04
	maskView  = 0x08
	maskA     = 0x10
	maskX     = 0x20
	maskB     = 0x40
	maskY     = 0x80
)

// Button bits in input report byte 4.
const (
	maskDpadUp     = 0x01
	maskDpadDown   = 0x02
	maskDpadLeft   = 0x04
	maskDpadRight  = 0x08
	maskLeftBumper = 0x10
	maskRightBump  = 0x20
	maskLeftStick  = 0x40
	maskRightStick = 0x80
)

const triggerMax = 1023

// parseInput decodes a 0x20 input report into canonical state. The
// guide button travels in its own report and is merged by the caller.
func parseInput(report []byte, st *pad.State) error {
	if len(report) < inputReportLen {
		return fmt.Errorf("input report truncated: %d bytes", len(report))
	}
	btn1 := report[3]
	btn2 := report[4]

	press := func(mask byte, from byte, b pad.Button) {
		if from&mask != 0 {
			st.Buttons.Press(b)
		}
	}
	press(maskA, btn1, pad.ButtonA)
	press(maskB, btn1, pad.ButtonB)
	press(maskX, btn1, pad.ButtonX)
	press(maskY, btn1, pad.ButtonY)
	press(maskMenu, btn1, pad.ButtonStart)
	press(maskView, btn1, pad.ButtonBack)
	press(maskShare, btn1, pad.ButtonExtra1)
	press(maskLeftBumper, btn2, pad.ButtonLeftBumper)
	press(maskRightBump, btn2, pad.ButtonRightBumper)
	press(maskLeftStick, btn2, pad.ButtonLeftStick)
	press(maskRightStick, btn2, pad.ButtonRightStick)

	var x, y int
	if btn2&maskDpadRight != 0 {
		x++
	}
	if btn2&maskDpadLeft != 0 {
		x--
	}
	if btn2&maskDpadUp != 0 {
		y++
	}
	if btn2&maskDpadDown != 0 {
		y--
	}
	st.DPad = pad.DPadFromVector(x, y)

	lt := binary.LittleEndian.Uint16(report[5:7])
	rt := binary.LittleEndian.Uint16(report[7:9])
	st.Axes[pad.AxisLeftTrigger] = pad.Normalize(int32(lt), 0, triggerMax)
	st.Axes[pad.AxisRightTrigger] = pad.Normalize(int32(rt), 0, triggerMax)

	// Stick verticals are already up-positive on this wire.
	st.Axes[pad.AxisLeftX] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(report[9:11]))), 32767)
	st.Axes[pad.AxisLeftY] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(report[11:13]))), 32767)
	st.Axes[pad.AxisRightX] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(report[13:15]))), 32767)
	st.Axes[pad.AxisRightY] = pad.NormalizeCentered(int32(int16(binary.LittleEndian.Uint16(report[15:17]))), 32767)
	return nil
}

// parseGuide decodes a 0x07 guide report.
func parseGuide(report []byte) (pressed bool, err error) {
	if len(report) < 3 {
		return false, fmt.Errorf("guide report truncated: %d bytes", len(report))
	}
	return report[2]&0x01 != 0, nil
}

// rumblePacket builds a 0x09 vibration command. The protocol carries
// four magnitudes; this method drives the main pair and leaves the
// trigger motors silent.
func rumblePacket(seq uint8, fb pad.Feedback) []byte {
	fb = fb.Clamp()
	return []byte{
		msgRumble, 0x00, seq,
		0x09,       // payload length
		0x00, 0x0f, // all motor enable bits
		0x00, 0x00, // trigger magnitudes
		byte(fb.LowFrequency * 0xff),  // strong motor
		byte(fb.HighFrequency * 0xff), // weak motor
		0xff, 0x00, 0x00, // duration, delay, repeat
	}
}
