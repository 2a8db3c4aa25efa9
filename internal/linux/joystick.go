package linux

import "encoding/binary"

// Legacy joystick interface, linux/joystick.h.

const (
	JSEventButton uint8 = 0x01
	JSEventAxis   uint8 = 0x02
	JSEventInit   uint8 = 0x80
)

// JSEvent mirrors struct js_event: 8 bytes on every platform.
type JSEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

const JSEventSize = 8

// DecodeJSEvent reads one native-endian event from b.
func DecodeJSEvent(b []byte) JSEvent {
	return JSEvent{
		Time:   binary.NativeEndian.Uint32(b[0:4]),
		Value:  int16(binary.NativeEndian.Uint16(b[4:6])),
		Type:   b[6],
		Number: b[7],
	}
}

// IsInit reports whether the event is a synthetic state dump sent
// right after open rather than a live change.
func (e JSEvent) IsInit() bool {
	return e.Type&JSEventInit != 0
}

// Kind strips the init flag.
func (e JSEvent) Kind() uint8 {
	return e.Type &^ JSEventInit
}

// Joystick ioctl requests.
var (
	JSIOCGVERSION = IoR('j', 0x01, 4)
	JSIOCGAXES    = IoR('j', 0x11, 1)
	JSIOCGBUTTONS = IoR('j', 0x12, 1)
)

// JSIOCGNAME reads the device name into a buffer of the given size.
func JSIOCGNAME(size int) uint {
	return IoR('j', 0x13, uintptr(size))
}
