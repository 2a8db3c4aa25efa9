package joydev

import (
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pad/profile"
)

// padState accumulates decoded events between polls. Hat axes arrive
// as two separate wire axes, so their raw signs are kept here and
// folded into the dpad after every change.
type padState struct {
	state pad.State
	hatX  int
	hatY  int
}

func (s *padState) syncDPad() {
	// Wire hat Y grows downward.
	s.state.DPad = pad.DPadFromVector(sign(s.hatX), -sign(s.hatY))
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// modelMapping translates joystick event numbers into canonical state.
// The axis hook mutates the whole padState so one wire axis can drive
// both triggers on models that share them.
type modelMapping struct {
	name   string
	button func(num uint8) (pad.Button, bool)
	axis   func(ps *padState, num uint8, value int16)
}

func mappingFor(id pad.Identity) *modelMapping {
	if profile.XboxStyle(id) {
		return xboxMapping
	}
	return genericMapping
}

const axisMagnitude = 32767

// xboxMapping covers xbox-style pads as the classic userspace drivers
// numbered them: the guide button slot stays dark (the interface never
// carries it reliably) and axis 2 is the shared trigger, pulled
// positive by the left trigger and negative by the right. Both
// canonical trigger fields derive from that single reading.
var xboxMapping = &modelMapping{
	name: "xbox",
	button: func(num uint8) (pad.Button, bool) {
		switch num {
		case 0:
			return pad.ButtonA, true
		case 1:
			return pad.ButtonB, true
		case 2:
			return pad.ButtonX, true
		case 3:
			return pad.ButtonY, true
		case 4:
			return pad.ButtonLeftBumper, true
		case 5:
			return pad.ButtonRightBumper, true
		case 6:
			return pad.ButtonBack, true
		case 7:
			return pad.ButtonStart, true
		case 9:
			return pad.ButtonLeftStick, true
		case 10:
			return pad.ButtonRightStick, true
		}
		return 0, false
	},
	axis: func(ps *padState, num uint8, value int16) {
		v := pad.NormalizeCentered(int32(value), axisMagnitude)
		switch num {
		case 0:
			ps.state.Axes[pad.AxisLeftX] = v
		case 1:
			ps.state.Axes[pad.AxisLeftY] = -v
		case 2:
			lt, rt := splitTrigger(v)
			ps.state.Axes[pad.AxisLeftTrigger] = lt
			ps.state.Axes[pad.AxisRightTrigger] = rt
		case 3:
			ps.state.Axes[pad.AxisRightX] = v
		case 4:
			ps.state.Axes[pad.AxisRightY] = -v
		case 5:
			ps.hatX = int(value)
			ps.syncDPad()
		case 6:
			ps.hatY = int(value)
			ps.syncDPad()
		}
	},
}

// splitTrigger expands the shared axis into the two canonical trigger
// fields, each spanning [-1,1] from released to fully pressed.
func splitTrigger(v float64) (lt, rt float64) {
	lt, rt = -1, -1
	if v > 0 {
		lt = v*2 - 1
	}
	if v < 0 {
		rt = -v*2 - 1
	}
	return lt, rt
}

// genericMapping is the fallback for unknown models: buttons keep
// their wire order, the first four axes become the two sticks, and
// everything else is dropped.
var genericMapping = &modelMapping{
	name: "generic",
	button: func(num uint8) (pad.Button, bool) {
		if int(num) >= pad.MaxButtons {
			return 0, false
		}
		return pad.Button(num), true
	},
	axis: func(ps *padState, num uint8, value int16) {
		v := pad.NormalizeCentered(int32(value), axisMagnitude)
		switch num {
		case 0:
			ps.state.Axes[pad.AxisLeftX] = v
		case 1:
			ps.state.Axes[pad.AxisLeftY] = -v
		case 2:
			ps.state.Axes[pad.AxisRightX] = v
		case 3:
			ps.state.Axes[pad.AxisRightY] = -v
		}
	},
}
