package pad

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound marks lookups of an identity the registry has
	// never seen.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceOffline marks operations on a known but disconnected
	// device.
	ErrDeviceOffline = errors.New("device offline")

	// ErrNotSupported marks an operation the method/device combination
	// cannot perform. Reported, never retried.
	ErrNotSupported = errors.New("not supported")

	// ErrHandleReleased marks use of a handle after Release. This is a
	// contract violation by the caller, not a runtime condition; it is
	// logged loudly wherever it appears.
	ErrHandleReleased = errors.New("handle already released")

	// ErrDescriptorUnparsable marks a HID report descriptor the decoder
	// cannot make sense of. Surfaced once per polling cycle.
	ErrDescriptorUnparsable = errors.New("report descriptor unparsable")
)

// EnumerationError wraps a method-wide enumeration fault (driver
// missing, subsystem unavailable). Non-fatal: the method's device list
// is empty for the pass.
type EnumerationError struct {
	Method InputMethod
	Err    error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumeration failed on %s: %v", e.Method, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// AcquireError wraps a failure to take exclusive ownership of a device.
// The device stays unavailable for that method until the next retry
// window.
type AcquireError struct {
	Identity Identity
	Method   InputMethod
	Err      error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("failed to acquire %s via %s: %v", e.Identity, e.Method, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// ReadError wraps a failed per-tick read. Non-fatal: the previous
// snapshot stays last-known-good for the tick.
type ReadError struct {
	Identity Identity
	Err      error
}

func (e *ReadError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("read timed out on %s", e.Identity)
	}
	return fmt.Sprintf("read failed on %s: %v", e.Identity, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the read overran its cycle budget.
func (e *ReadError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
