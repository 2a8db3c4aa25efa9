// Package method defines the processor contract every input method
// implements, and the validation engine that gates activation.
package method

import (
	"context"

	"github.com/padbridge/padbridge/pad"
)

// Discovered is one enumerated candidate device, before any handle is
// opened. Enumeration is side-effect-free: descriptive fields only.
type Discovered struct {
	Identity    pad.Identity
	Name        string
	Node        string
	Descriptors pad.Descriptors
}

// Processor is the per-method backend contract. Implementations are
// stateless aside from the OS resources owned by handles they hand
// out; a processor never touches a device outside Acquire/Handle.
type Processor interface {
	Method() pad.InputMethod

	// Caps returns the fixed semantics of the method: device cap,
	// background behavior, trigger separation, guide button, rumble.
	Caps() Caps

	// Enumerate lists currently connected candidate devices. It must
	// be safe to call repeatedly and must not open exclusive handles.
	Enumerate(ctx context.Context) ([]Discovered, error)

	// CanProcess is a cheap compatibility check from enumeration data
	// alone.
	CanProcess(id pad.Identity, desc pad.Descriptors) bool

	// Validate runs the method's activation rules against the live
	// environment. Called before first activation and after every
	// configuration change; results are never cached.
	Validate(id pad.Identity, desc pad.Descriptors, env Env) pad.ValidationResult

	// Acquire takes exclusive ownership of the device. On any error
	// the device stays unowned; partial acquisitions are rolled back
	// internally.
	Acquire(ctx context.Context, id pad.Identity) (Handle, error)
}

// Handle owns one active device. All methods are single-caller: the
// polling loop owns the handle and nothing else touches it.
type Handle interface {
	// ReadState produces one snapshot. It honors ctx's deadline; an
	// overrun is the caller's per-tick read error, never a stall.
	ReadState(ctx context.Context) (pad.State, error)

	// SendFeedback pushes vibration targets. Methods without rumble
	// answer a "not supported" result rather than an error.
	SendFeedback(fb pad.Feedback) pad.FeedbackResult

	FeedbackCaps() pad.FeedbackCaps

	// Release returns the device to the OS. Safe to call once; any
	// use after Release is a caller defect and fails loudly.
	Release() error
}

// Background describes how a method behaves when the reading process
// has no input focus.
type Background uint8

const (
	// BackgroundAlways: reads continue regardless of focus.
	BackgroundAlways Background = iota
	// BackgroundNever: the platform stops delivery without focus.
	BackgroundNever
	// BackgroundAdvisory: works except for documented device classes;
	// validation surfaces a warning instead of rejecting.
	BackgroundAdvisory
)

func (b Background) String() string {
	switch b {
	case BackgroundAlways:
		return "always"
	case BackgroundNever:
		return "never"
	case BackgroundAdvisory:
		return "advisory"
	}
	return "unknown"
}

// Rumble describes a method's force-feedback tier.
type Rumble uint8

const (
	RumbleNone Rumble = iota
	// RumbleDual: low and high frequency motors.
	RumbleDual
	// RumbleTrigger: dual motors plus independent trigger motors.
	RumbleTrigger
	// RumbleProfile: none by default, enabled per device profile.
	RumbleProfile
)

func (r Rumble) String() string {
	switch r {
	case RumbleNone:
		return "none"
	case RumbleDual:
		return "dual"
	case RumbleTrigger:
		return "trigger"
	case RumbleProfile:
		return "profile"
	}
	return "unknown"
}

// Caps states the fixed semantics of a method. DeviceCap 0 means
// unlimited.
type Caps struct {
	DeviceCap        int
	Background       Background
	SeparateTriggers bool
	GuideButton      bool
	Rumble           Rumble
}
