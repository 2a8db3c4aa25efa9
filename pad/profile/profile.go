// Package profile is the known-device dispatch table: vendor/product
// pairs with purpose-built raw report parsers and per-method quirks.
// Unrecognized devices fall back to the generic descriptor-driven
// parser, so adding a device here is purely additive.
package profile

import (
	"github.com/padbridge/padbridge/pad"
)

// Profile describes one known device family.
type Profile struct {
	Name       string
	VendorID   uint16
	ProductIDs []uint16

	// XboxStyle marks pads with console-style semantics; joydev
	// surfaces background-access advisories for them and maps their
	// combined trigger axis.
	XboxStyle bool
	// ConsoleCapable marks devices the xusb method can drive.
	ConsoleCapable bool
	// SeparateTriggers: the raw parser recovers two independent
	// trigger axes from the report.
	SeparateTriggers bool

	// InputID is the raw input report ID (0 for unnumbered reports);
	// InputSize the minimum body length Parse needs.
	InputID   uint8
	InputSize int
	// Parse fills a zeroed state from a report body. The body excludes
	// the report ID byte.
	Parse func(body []byte, st *pad.State) error

	// Rumble builds the raw output report for the given intensities.
	// nil means the profile opts out of raw-path rumble.
	Rumble       func(fb pad.Feedback) (reportID uint8, body []byte)
	FeedbackCaps pad.FeedbackCaps
}

// Matches reports whether the identity belongs to this profile.
func (p *Profile) Matches(id pad.Identity) bool {
	if id.VendorID != p.VendorID {
		return false
	}
	for _, pid := range p.ProductIDs {
		if id.ProductID == pid {
			return true
		}
	}
	return false
}

var known = []*Profile{
	xboxPad,
	dualSense,
}

var byVendor = index(known)

func index(profiles []*Profile) map[uint16]map[uint16]*Profile {
	out := make(map[uint16]map[uint16]*Profile)
	for _, p := range profiles {
		products, ok := out[p.VendorID]
		if !ok {
			products = make(map[uint16]*Profile)
			out[p.VendorID] = products
		}
		for _, pid := range p.ProductIDs {
			products[pid] = p
		}
	}
	return out
}

// Lookup resolves the profile for an identity.
func Lookup(id pad.Identity) (*Profile, bool) {
	return LookupPair(id.VendorID, id.ProductID)
}

func LookupPair(vendor, product uint16) (*Profile, bool) {
	products, ok := byVendor[vendor]
	if !ok {
		return nil, false
	}
	p, ok := products[product]
	return p, ok
}

// XboxStyle reports whether the identity is a known Xbox-style pad.
func XboxStyle(id pad.Identity) bool {
	p, ok := Lookup(id)
	return ok && p.XboxStyle
}

// ConsoleCapable reports whether the identity can be driven by the
// console-pad USB protocol.
func ConsoleCapable(id pad.Identity) bool {
	p, ok := Lookup(id)
	return ok && p.ConsoleCapable
}
