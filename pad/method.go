package pad

import (
	"fmt"
)

// InputMethod selects which native backend reads a device. Exactly one
// method is active per device at a time; switching is an explicit
// configuration change, never an automatic fallback.
type InputMethod string

const (
	// MethodJoydev reads legacy joystick nodes (/dev/input/js*).
	MethodJoydev InputMethod = "joydev"
	// MethodXUSB speaks the console-pad USB protocol directly.
	MethodXUSB InputMethod = "xusb"
	// MethodEvdev reads event nodes (/dev/input/event*).
	MethodEvdev InputMethod = "evdev"
	// MethodHidraw parses raw HID reports against a device profile.
	MethodHidraw InputMethod = "hidraw"
)

// Methods returns all input methods in presentation order.
func Methods() []InputMethod {
	return []InputMethod{MethodJoydev, MethodXUSB, MethodEvdev, MethodHidraw}
}

func (m InputMethod) Valid() bool {
	switch m {
	case MethodJoydev, MethodXUSB, MethodEvdev, MethodHidraw:
		return true
	}
	return false
}

func (m InputMethod) String() string {
	return string(m)
}

func ParseInputMethod(s string) (InputMethod, error) {
	m := InputMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown input method %q", s)
	}
	return m, nil
}
