package rawhid

import (
	"fmt"
	"strings"

	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pkg/bitfield"
	"github.com/padbridge/padbridge/pkg/hiddesc"
)

const (
	pageDesktop = 0x01
	pageButton  = 0x09

	usageHatSwitch = 0x39
)

// desktopAxisUsages are the generic-desktop usages accepted as analog
// axes, in no particular order; slot assignment follows declaration
// order in the descriptor.
var desktopAxisUsages = map[uint16]bool{
	0x30: true, // X
	0x31: true, // Y
	0x32: true, // Z
	0x33: true, // Rx
	0x34: true, // Ry
	0x35: true, // Rz
	0x36: true, // Slider
	0x37: true, // Dial
}

// hatDirections maps a hat switch step (starting at logical minimum,
// clockwise from up) to the nine-valued position.
var hatDirections = [8]pad.DPad{
	pad.DPadUp, pad.DPadUpRight, pad.DPadRight, pad.DPadDownRight,
	pad.DPadDown, pad.DPadDownLeft, pad.DPadLeft, pad.DPadUpLeft,
}

type assignKind uint8

const (
	assignButton assignKind = iota
	assignAxis
	assignDPad
)

type assign struct {
	reportID  uint8
	bitOffset int
	bitSize   int
	signed    bool
	kind      assignKind
	index     int
	invert    bool
	min, max  int32
}

// genericParser is the best-effort fallback for unrecognized HID
// gamepads. Button-page bits fill canonical buttons 0..23 in
// declaration order, desktop-page axes fill the six canonical axes in
// declaration order, and a hat switch drives the dpad.
type genericParser struct {
	sizes     map[uint8]int
	assigns   []assign
	reportIDs bool
}

func newGenericParser(desc hiddesc.Descriptor, overrides Overrides) *genericParser {
	g := &genericParser{
		sizes:     make(map[uint8]int),
		reportIDs: desc.UsesReportIDs(),
	}
	nextButton := 0
	nextAxis := 0
	for _, reportID := range desc.ReportIDs() {
		g.sizes[reportID] = desc.InputSize(reportID)
		for _, f := range desc.InputFields(reportID) {
			if f.Flags.IsConstant() || f.Flags.IsArray() {
				continue
			}
			for n := 0; n < int(f.ReportCount); n++ {
				a := assign{
					reportID:  reportID,
					bitOffset: f.BitOffset + n*int(f.ReportSize),
					bitSize:   int(f.ReportSize),
					signed:    f.Signed(),
					min:       f.LogicalMinimum,
					max:       f.LogicalMaximum,
				}
				usage := f.UsageAt(n)
				if target, ok := overrides[usageKey(f.UsagePage, usage)]; ok {
					if applyOverride(&a, target) {
						g.assigns = append(g.assigns, a)
					}
					continue
				}
				switch {
				case f.UsagePage == pageButton && f.ReportSize == 1:
					if nextButton >= pad.MaxButtons {
						continue
					}
					a.kind = assignButton
					a.index = nextButton
					nextButton++
				case f.UsagePage == pageDesktop && usage == usageHatSwitch:
					a.kind = assignDPad
				case f.UsagePage == pageDesktop && desktopAxisUsages[usage]:
					if nextAxis >= pad.AxisCount {
						continue
					}
					a.kind = assignAxis
					a.index = nextAxis
					// Stick verticals grow downward on the wire.
					a.invert = nextAxis == int(pad.AxisLeftY) || nextAxis == int(pad.AxisRightY)
					nextAxis++
				default:
					continue
				}
				g.assigns = append(g.assigns, a)
			}
		}
	}
	return g
}

func usageKey(page, usage uint16) string {
	return fmt.Sprintf("%04x:%04x", page, usage)
}

// applyOverride rewrites an assignment from its override target,
// returning false when the field is to be dropped.
func applyOverride(a *assign, target string) bool {
	kind, name, ok := strings.Cut(target, ":")
	if !ok {
		// "ignore" and anything unrecognized drop the field.
		return false
	}
	switch kind {
	case "button":
		b, ok := pad.ButtonByName(name)
		if !ok {
			return false
		}
		a.kind = assignButton
		a.index = int(b)
	case "axis":
		if strings.HasPrefix(name, "-") {
			a.invert = true
			name = name[1:]
		}
		ax, ok := pad.AxisByName(name)
		if !ok {
			return false
		}
		a.kind = assignAxis
		a.index = int(ax)
	case "dpad":
		a.kind = assignDPad
	default:
		return false
	}
	return true
}

func (g *genericParser) UsesReportIDs() bool {
	return g.reportIDs
}

func (g *genericParser) Size(reportID uint8) int {
	return g.sizes[reportID]
}

func (g *genericParser) Parse(reportID uint8, body []byte, st *pad.State) error {
	for _, a := range g.assigns {
		if a.reportID != reportID {
			continue
		}
		raw, ok := g.fieldValue(body, a)
		if !ok {
			return fmt.Errorf("field at bit %d exceeds report %#02x", a.bitOffset, a.reportID)
		}
		switch a.kind {
		case assignButton:
			if raw != 0 {
				st.Buttons.Press(pad.Button(a.index))
			}
		case assignAxis:
			v := pad.Normalize(raw, a.min, a.max)
			if a.invert {
				v = -v
			}
			st.Axes[a.index] = v
		case assignDPad:
			if raw < a.min || raw > a.max {
				st.DPad = pad.DPadCentered
				continue
			}
			st.DPad = hatDirections[int(raw-a.min)%len(hatDirections)]
		}
	}
	return nil
}

func (g *genericParser) fieldValue(body []byte, a assign) (int32, bool) {
	if a.signed {
		return bitfield.Int(body, a.bitOffset, a.bitSize)
	}
	v, ok := bitfield.Uint(body, a.bitOffset, a.bitSize)
	return int32(v), ok
}
