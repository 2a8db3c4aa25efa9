package linux

import (
	"encoding/binary"
	"time"
	"unsafe"
)

// Event types from linux/input-event-codes.h.
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvRel uint16 = 0x02
	EvAbs uint16 = 0x03
	EvMsc uint16 = 0x04
	EvFF  uint16 = 0x15
)

const SynReport uint16 = 0x00

// Gamepad key codes. The kernel's historical aliases put the X button
// on BtnNorth and Y on BtnWest for Xbox-style pads.
const (
	BtnSouth  uint16 = 0x130
	BtnEast   uint16 = 0x131
	BtnC      uint16 = 0x132
	BtnNorth  uint16 = 0x133
	BtnWest   uint16 = 0x134
	BtnZ      uint16 = 0x135
	BtnTL     uint16 = 0x136
	BtnTR     uint16 = 0x137
	BtnTL2    uint16 = 0x138
	BtnTR2    uint16 = 0x139
	BtnSelect uint16 = 0x13a
	BtnStart  uint16 = 0x13b
	BtnMode   uint16 = 0x13c
	BtnThumbL uint16 = 0x13d
	BtnThumbR uint16 = 0x13e

	BtnDpadUp    uint16 = 0x220
	BtnDpadDown  uint16 = 0x221
	BtnDpadLeft  uint16 = 0x222
	BtnDpadRight uint16 = 0x223

	KeyMax uint16 = 0x2ff
)

// Absolute axis codes.
const (
	AbsX     uint16 = 0x00
	AbsY     uint16 = 0x01
	AbsZ     uint16 = 0x02
	AbsRx    uint16 = 0x03
	AbsRy    uint16 = 0x04
	AbsRz    uint16 = 0x05
	AbsGas   uint16 = 0x09
	AbsBrake uint16 = 0x0a
	AbsHat0X uint16 = 0x10
	AbsHat0Y uint16 = 0x11
	AbsMax   uint16 = 0x3f
)

// Force feedback effect types.
const (
	FFRumble   uint16 = 0x50
	FFPeriodic uint16 = 0x51
	FFGain     uint16 = 0x60
	FFMax      uint16 = 0x7f
)

// InputEvent mirrors struct input_event on 64-bit platforms.
type InputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const InputEventSize = int(unsafe.Sizeof(InputEvent{}))

// DecodeInputEvent reads one native-endian event from b.
func DecodeInputEvent(b []byte) InputEvent {
	return InputEvent{
		Sec:   int64(binary.NativeEndian.Uint64(b[0:8])),
		Usec:  int64(binary.NativeEndian.Uint64(b[8:16])),
		Type:  binary.NativeEndian.Uint16(b[16:18]),
		Code:  binary.NativeEndian.Uint16(b[18:20]),
		Value: int32(binary.NativeEndian.Uint32(b[20:24])),
	}
}

// EncodeInputEvent writes the event into b, which must hold
// InputEventSize bytes.
func (e InputEvent) Encode(b []byte) {
	binary.NativeEndian.PutUint64(b[0:8], uint64(e.Sec))
	binary.NativeEndian.PutUint64(b[8:16], uint64(e.Usec))
	binary.NativeEndian.PutUint16(b[16:18], e.Type)
	binary.NativeEndian.PutUint16(b[18:20], e.Code)
	binary.NativeEndian.PutUint32(b[20:24], uint32(e.Value))
}

// AbsInfo mirrors struct input_absinfo.
type AbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// InputID mirrors struct input_id.
type InputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// FFEffect mirrors struct ff_effect with the union fixed at its C
// size. Only the rumble arm is populated here.
type FFEffect struct {
	Type            uint16
	ID              int16
	Direction       uint16
	TriggerButton   uint16
	TriggerInterval uint16
	ReplayLength    uint16
	ReplayDelay     uint16
	_               [2]byte
	U               [32]byte
}

// NewRumbleEffect builds an upload-ready rumble effect. ID -1 asks the
// kernel to allocate a slot.
func NewRumbleEffect(strong, weak uint16, length time.Duration) FFEffect {
	e := FFEffect{
		Type:         FFRumble,
		ID:           -1,
		ReplayLength: uint16(length.Milliseconds()),
	}
	binary.NativeEndian.PutUint16(e.U[0:2], strong)
	binary.NativeEndian.PutUint16(e.U[2:4], weak)
	return e
}

// Event device ioctl requests.
var (
	EVIOCGVERSION = IoR('E', 0x01, 4)
	EVIOCGID      = IoR('E', 0x02, unsafe.Sizeof(InputID{}))
	EVIOCSFF      = IoW('E', 0x80, unsafe.Sizeof(FFEffect{}))
	EVIOCRMFF     = IoW('E', 0x81, 4)
	EVIOCGRAB     = IoW('E', 0x90, 4)
)

// EVIOCGNAME reads the device name into a buffer of the given size.
func EVIOCGNAME(size int) uint {
	return IoR('E', 0x06, uintptr(size))
}

// EVIOCGKEY reads the global key state bitmap.
func EVIOCGKEY(size int) uint {
	return IoR('E', 0x18, uintptr(size))
}

// EVIOCGBIT reads the capability bitmap of an event type.
func EVIOCGBIT(ev uint16, size int) uint {
	return IoR('E', 0x20+uint(ev), uintptr(size))
}

// EVIOCGABS reads the range of an absolute axis.
func EVIOCGABS(abs uint16) uint {
	return IoR('E', 0x40+uint(abs), unsafe.Sizeof(AbsInfo{}))
}

// Bitmap wraps a capability bitmap read through EVIOCGBIT.
type Bitmap []byte

// NewBitmap sizes a bitmap for codes up to max inclusive.
func NewBitmap(max uint16) Bitmap {
	return make(Bitmap, int(max)/8+1)
}

func (m Bitmap) IsSet(code uint16) bool {
	idx := int(code) / 8
	if idx >= len(m) {
		return false
	}
	return m[idx]&(1<<(code%8)) != 0
}
