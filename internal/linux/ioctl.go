// Package linux carries the kernel input ABI spoken by the joystick
// and event-device backends: ioctl request construction, event wire
// structs and the constants around them.
package linux

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// _IOC encoding, as linux/ioctl.h lays it out.
const (
	iocWrite uint = 1
	iocRead  uint = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

// IoR builds a read ioctl request.
func IoR(typ byte, nr uint, size uintptr) uint {
	return iocRead<<iocDirShift | uint(size)<<iocSizeShift | uint(typ)<<iocTypeShift | nr<<iocNrShift
}

// IoW builds a write ioctl request.
func IoW(typ byte, nr uint, size uintptr) uint {
	return iocWrite<<iocDirShift | uint(size)<<iocSizeShift | uint(typ)<<iocTypeShift | nr<<iocNrShift
}

// Ioctl issues a request whose argument is a pointer.
func Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// IoctlInt issues a request whose argument is a plain value, as
// EVIOCGRAB takes it.
func IoctlInt(fd int, req uint, val int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(val))
	if errno != 0 {
		return errno
	}
	return nil
}
