package rawhid

import (
	"encoding/hex"
	"fmt"

	"github.com/sstallion/go-hid"

	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pad/profile"
	"github.com/padbridge/padbridge/pkg/hiddesc"
)

// FieldReport names one generic-parser field and where its value lands
// in the canonical state.
type FieldReport struct {
	ReportID  uint8  `json:"reportId"`
	BitOffset int    `json:"bitOffset"`
	BitSize   int    `json:"bitSize"`
	Target    string `json:"target"`
}

// Description is the diagnostic dump behind `describe-device`: the raw
// report descriptor, its decoded item tree, and either the profile that
// takes precedence over both or the generic field mapping derived from
// them.
type Description struct {
	Identity   pad.Identity        `json:"identity"`
	Node       string              `json:"node"`
	Profile    string              `json:"profile,omitempty"`
	Descriptor string              `json:"descriptor,omitempty"`
	Decoded    *hiddesc.Descriptor `json:"decoded,omitempty"`
	Fields     []FieldReport       `json:"fields,omitempty"`
}

// Describe opens the device long enough to read its report descriptor
// and reports how its input reports would be parsed. The device must
// have been seen by a prior Enumerate pass.
func (p *Processor) Describe(id pad.Identity) (Description, error) {
	if err := p.init(); err != nil {
		return Description{}, err
	}
	info, ok := p.devices.Load(id)
	if !ok {
		return Description{}, fmt.Errorf("%w: %s has no hidraw node", pad.ErrDeviceNotFound, id)
	}
	d := Description{Identity: id, Node: info.Path}
	if prof, ok := profile.Lookup(id); ok && prof.Parse != nil {
		d.Profile = prof.Name
	}

	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return d, fmt.Errorf("failed to open %s: %w", info.Path, err)
	}
	defer dev.Close()

	buf := make([]byte, 4096)
	n, err := dev.GetReportDescriptor(buf)
	if err != nil {
		return d, fmt.Errorf("failed to read report descriptor: %w", err)
	}
	d.Descriptor = hex.EncodeToString(buf[:n])

	decoded, err := hiddesc.Decode(buf[:n])
	if err != nil {
		return d, fmt.Errorf("%w: %v", pad.ErrDescriptorUnparsable, err)
	}
	d.Decoded = &decoded
	if d.Profile != "" {
		// Profile parsing ignores the descriptor; the decoded tree is
		// informational only.
		return d, nil
	}

	var overrides Overrides
	if p.options.overrides != nil {
		overrides = p.options.overrides(id)
	}
	parser := newGenericParser(decoded, overrides)
	for _, a := range parser.assigns {
		d.Fields = append(d.Fields, FieldReport{
			ReportID:  a.reportID,
			BitOffset: a.bitOffset,
			BitSize:   a.bitSize,
			Target:    a.target(),
		})
	}
	return d, nil
}

func (a assign) target() string {
	switch a.kind {
	case assignButton:
		return "button:" + pad.Button(a.index).String()
	case assignAxis:
		if a.invert {
			return "axis:-" + pad.Axis(a.index).String()
		}
		return "axis:" + pad.Axis(a.index).String()
	case assignDPad:
		return "dpad"
	}
	return ""
}
