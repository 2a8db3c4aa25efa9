// Package rawhid reads devices over the raw HID report path. It has no
// built-in controller schema: known vendor/product pairs parse through
// their profile, everything else through a generic descriptor-driven
// parser.
package rawhid

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sstallion/go-hid"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pad/profile"
	"github.com/padbridge/padbridge/pkg/hiddesc"
)

// Overrides remap generic-parser fields per device: usage key
// ("<page>:<id>", hex) to "button:<name>", "axis:<name>",
// "axis:-<name>" for inverted, or "ignore".
type Overrides map[string]string

type Option func(*options)

type options struct {
	overrides func(pad.Identity) Overrides
}

// WithOverrides wires the per-device mapping override source,
// consulted at acquisition time.
func WithOverrides(fn func(pad.Identity) Overrides) Option {
	return func(o *options) {
		o.overrides = fn
	}
}

type Processor struct {
	log     *zap.Logger
	udev    *udev.Udev
	options options

	initOnce sync.Once
	initErr  error
	devices  *xsync.MapOf[pad.Identity, hid.DeviceInfo]
}

func New(log *zap.Logger, opts ...Option) *Processor {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Processor{
		log:     log,
		udev:    &udev.Udev{},
		options: o,
		devices: xsync.NewMapOf[pad.Identity, hid.DeviceInfo](),
	}
}

func (p *Processor) Method() pad.InputMethod {
	return pad.MethodHidraw
}

func (p *Processor) Caps() method.Caps {
	return method.Caps{
		DeviceCap:        0,
		Background:       method.BackgroundAlways,
		SeparateTriggers: false,
		GuideButton:      false,
		Rumble:           method.RumbleProfile,
	}
}

func (p *Processor) init() error {
	p.initOnce.Do(func() {
		if err := hid.Init(); err != nil {
			p.initErr = fmt.Errorf("failed to init hidapi: %w", err)
		}
	})
	return p.initErr
}

func (p *Processor) Enumerate(ctx context.Context) ([]method.Discovered, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	var out []method.Discovered
	seen := make(map[pad.Identity]struct{})
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		id := p.identityFor(info)
		if _, dup := seen[id]; dup {
			return nil
		}
		seen[id] = struct{}{}
		p.devices.Store(id, *info)

		desc := pad.Descriptors{}
		desc.Set(pad.MethodHidraw, "path", info.Path)
		desc.Set(pad.MethodHidraw, "usage_page", fmt.Sprintf("%04x", info.UsagePage))
		desc.Set(pad.MethodHidraw, "usage", fmt.Sprintf("%04x", info.Usage))
		desc.Set(pad.MethodHidraw, "interface", strconv.Itoa(info.InterfaceNbr))
		if info.MfrStr != "" {
			desc.Set(pad.MethodHidraw, "manufacturer", info.MfrStr)
		}
		if info.ProductStr != "" {
			desc.Set(pad.MethodHidraw, "product", info.ProductStr)
		}

		out = append(out, method.Discovered{
			Identity:    id,
			Name:        deviceName(info),
			Node:        info.Path,
			Descriptors: desc,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate hid devices: %w", err)
	}
	return out, nil
}

func deviceName(info *hid.DeviceInfo) string {
	switch {
	case info.MfrStr != "" && info.ProductStr != "":
		return info.MfrStr + " " + info.ProductStr
	case info.ProductStr != "":
		return info.ProductStr
	}
	return fmt.Sprintf("%04x:%04x", info.VendorID, info.ProductID)
}

// identityFor builds the stable identity: serial number when the
// device reports one, else the udev topology path, else the node name.
// Interfaces above 0 stay distinct by suffix.
func (p *Processor) identityFor(info *hid.DeviceInfo) pad.Identity {
	instance := info.SerialNbr
	if instance == "" {
		if dev := p.udev.NewDeviceFromSubsystemSysname("hidraw", filepath.Base(info.Path)); dev != nil {
			instance = dev.PropertyValue("ID_PATH")
		}
	}
	if instance == "" {
		instance = filepath.Base(info.Path)
	}
	if info.InterfaceNbr > 0 {
		instance += ":" + strconv.Itoa(info.InterfaceNbr)
	}
	return pad.Identity{
		VendorID:  info.VendorID,
		ProductID: info.ProductID,
		Instance:  instance,
	}
}

// CanProcess accepts anything the hidraw enumeration has seen.
func (p *Processor) CanProcess(id pad.Identity, desc pad.Descriptors) bool {
	return desc.Get(pad.MethodHidraw, "path") != ""
}

// Validate rejects devices that never appeared on the HID subsystem;
// everything HID-compliant passes.
func (p *Processor) Validate(id pad.Identity, desc pad.Descriptors, env method.Env) pad.ValidationResult {
	if desc.Get(pad.MethodHidraw, "path") == "" {
		return pad.Invalid(pad.ReasonNotHIDCompliant,
			fmt.Sprintf("%s does not expose a HID interface", id))
	}
	return pad.Valid()
}

func (p *Processor) Acquire(ctx context.Context, id pad.Identity) (method.Handle, error) {
	if err := p.init(); err != nil {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodHidraw, Err: err}
	}
	info, ok := p.devices.Load(id)
	if !ok {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodHidraw, Err: pad.ErrDeviceNotFound}
	}
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodHidraw,
			Err: fmt.Errorf("failed to open %s: %w", info.Path, err)}
	}

	parser, rumble, caps, parseErr := p.buildParser(id, dev)

	reattach, err := p.detachInputNodes(info.Path)
	if err != nil {
		dev.Close()
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodHidraw, Err: err}
	}

	h := newHandle(p.log.With(zap.String("device", id.String())), dev, id, parser, rumble, caps, parseErr, reattach)
	return h, nil
}

// buildParser picks the report parser: profile first, then the generic
// descriptor-driven fallback. An unparsable descriptor on an unknown
// device leaves the handle with a sticky read error.
func (p *Processor) buildParser(id pad.Identity, dev *hid.Device) (reportParser, rumbleFn, pad.FeedbackCaps, error) {
	if prof, ok := profile.Lookup(id); ok && prof.Parse != nil {
		return newProfileParser(prof), profileRumble(prof), prof.FeedbackCaps, nil
	}

	buf := make([]byte, 4096)
	n, err := dev.GetReportDescriptor(buf)
	if err != nil {
		return nil, nil, pad.FeedbackCaps{}, fmt.Errorf("%w: %v", pad.ErrDescriptorUnparsable, err)
	}
	desc, err := hiddesc.Decode(buf[:n])
	if err != nil {
		return nil, nil, pad.FeedbackCaps{}, fmt.Errorf("%w: %v", pad.ErrDescriptorUnparsable, err)
	}

	var overrides Overrides
	if p.options.overrides != nil {
		overrides = p.options.overrides(id)
	}
	parser := newGenericParser(desc, overrides)
	if len(parser.assigns) == 0 {
		return nil, nil, pad.FeedbackCaps{}, fmt.Errorf("%w: no mappable input fields", pad.ErrDescriptorUnparsable)
	}
	return parser, nil, pad.FeedbackCaps{}, nil
}

// detachInputNodes unbinds the kernel input translation of the device
// so no other reader sees its events while the handle is held. The
// returned function reattaches them.
func (p *Processor) detachInputNodes(hidrawPath string) (func(), error) {
	hidrawDev := p.udev.NewDeviceFromSubsystemSysname("hidraw", filepath.Base(hidrawPath))
	if hidrawDev == nil {
		// Nothing to detach; exclusive enough.
		return func() {}, nil
	}
	parent := hidrawDev.Parent()
	e := p.udev.NewEnumerate()
	e.AddMatchSubsystem("input")
	e.AddMatchParent(parent)
	inputs, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate input nodes: %w", err)
	}
	var detached []string
	for _, input := range inputs {
		syspath := input.Syspath()
		if !isEventNode(syspath) {
			continue
		}
		if err := writeUevent(syspath, "remove"); err != nil {
			p.log.Error("failed to detach input node", zap.String("syspath", syspath), zap.Error(err))
			continue
		}
		detached = append(detached, syspath)
	}
	return func() {
		for _, syspath := range detached {
			if err := writeUevent(syspath, "add"); err != nil {
				p.log.Error("failed to reattach input node", zap.String("syspath", syspath), zap.Error(err))
			}
		}
	}, nil
}

func isEventNode(syspath string) bool {
	base := filepath.Base(syspath)
	return len(base) > 5 && base[:5] == "event"
}
