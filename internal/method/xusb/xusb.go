// Package xusb drives console pads over their native USB protocol,
// bypassing the kernel input stack entirely. The protocol carries the
// guide button and dual rumble but holds only four player slots, so
// validation enforces a hard device cap.
package xusb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
)

const (
	vendorMicrosoft = 0x045e

	// PlayerSlots is the protocol's hard connection limit.
	PlayerSlots = 4
)

// gipProducts lists the pads speaking this protocol.
var gipProducts = map[gousb.ID]bool{
	0x02d1: true, // wireless pad, first revision
	0x02dd: true, // 2015 revision
	0x02e3: true, // elite
	0x02ea: true, // revision S
	0x0b12: true, // series revision
}

type usbAddr struct {
	bus     int
	address int
}

type Processor struct {
	log     *zap.Logger
	udev    *udev.Udev
	usbOnce sync.Once
	usb     *gousb.Context
	devices *xsync.MapOf[pad.Identity, usbAddr]
	open    *atomic.Int32
}

func New(log *zap.Logger) *Processor {
	return &Processor{
		log:     log,
		udev:    &udev.Udev{},
		devices: xsync.NewMapOf[pad.Identity, usbAddr](),
		open:    atomic.NewInt32(0),
	}
}

// usbContext initializes libusb on first use, keeping construction
// cheap for callers that only ever ask about capabilities.
func (p *Processor) usbContext() *gousb.Context {
	p.usbOnce.Do(func() {
		p.usb = gousb.NewContext()
	})
	return p.usb
}

// Close releases the USB context. Handles must be released first.
func (p *Processor) Close() error {
	if p.usb == nil {
		return nil
	}
	return p.usb.Close()
}

func (p *Processor) Method() pad.InputMethod {
	return pad.MethodXUSB
}

func (p *Processor) Caps() method.Caps {
	return method.Caps{
		DeviceCap:        PlayerSlots,
		Background:       method.BackgroundAlways,
		SeparateTriggers: true,
		GuideButton:      true,
		Rumble:           method.RumbleDual,
	}
}

// Enumerate walks USB device descriptors without opening anything:
// the visitor always declines, so the walk stays side-effect-free.
func (p *Processor) Enumerate(ctx context.Context) ([]method.Discovered, error) {
	var out []method.Discovered
	_, err := p.usbContext().OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != vendorMicrosoft || !gipProducts[desc.Product] {
			return false
		}
		id := p.identityFor(desc)
		p.devices.Store(id, usbAddr{bus: desc.Bus, address: desc.Address})

		d := pad.Descriptors{}
		d.Set(pad.MethodXUSB, "bus", strconv.Itoa(desc.Bus))
		d.Set(pad.MethodXUSB, "address", strconv.Itoa(desc.Address))
		d.Set(pad.MethodXUSB, "port", sysname(desc))
		d.Set(pad.MethodXUSB, "protocol", "gip")

		out = append(out, method.Discovered{
			Identity:    id,
			Name:        fmt.Sprintf("console pad %04x:%04x", uint16(desc.Vendor), uint16(desc.Product)),
			Node:        fmt.Sprintf("usb:%d:%d", desc.Bus, desc.Address),
			Descriptors: d,
		})
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk usb devices: %w", err)
	}
	return out, nil
}

// sysname renders the kernel's usb device name, bus-port.port...,
// which doubles as the udev sysname for property lookups.
func sysname(desc *gousb.DeviceDesc) string {
	if len(desc.Path) == 0 {
		return strconv.Itoa(desc.Bus)
	}
	ports := make([]string, len(desc.Path))
	for i, p := range desc.Path {
		ports[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%d-%s", desc.Bus, strings.Join(ports, "."))
}

func (p *Processor) identityFor(desc *gousb.DeviceDesc) pad.Identity {
	id := pad.Identity{
		VendorID:  uint16(desc.Vendor),
		ProductID: uint16(desc.Product),
		Instance:  sysname(desc),
	}
	dev := p.udev.NewDeviceFromSubsystemSysname("usb", sysname(desc))
	if dev == nil {
		return id
	}
	if s := dev.PropertyValue("ID_SERIAL_SHORT"); s != "" {
		id.Instance = s
	} else if s := dev.PropertyValue("ID_PATH"); s != "" {
		id.Instance = s
	}
	return id
}

func (p *Processor) CanProcess(id pad.Identity, desc pad.Descriptors) bool {
	return desc.Get(pad.MethodXUSB, "protocol") == "gip"
}

// Validate enforces the player-slot budget: the fifth concurrent
// device is rejected, never silently degraded to another method.
func (p *Processor) Validate(id pad.Identity, desc pad.Descriptors, env method.Env) pad.ValidationResult {
	if desc.Get(pad.MethodXUSB, "protocol") != "gip" {
		return pad.Invalid(pad.ReasonNotCapable,
			fmt.Sprintf("%s does not speak the console pad protocol", id))
	}
	if env.ActiveCount != nil && env.ActiveCount(pad.MethodXUSB) >= PlayerSlots {
		return pad.Invalid(pad.ReasonDeviceCountLimit,
			fmt.Sprintf("all %d player slots are held", PlayerSlots))
	}
	return pad.Valid()
}

func (p *Processor) Acquire(ctx context.Context, id pad.Identity) (method.Handle, error) {
	addr, ok := p.devices.Load(id)
	if !ok {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodXUSB, Err: pad.ErrDeviceNotFound}
	}
	if p.open.Load() >= PlayerSlots {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodXUSB,
			Err: fmt.Errorf("all %d player slots are held", PlayerSlots)}
	}

	dev, err := p.openAt(addr)
	if err != nil {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodXUSB, Err: err}
	}

	h, err := newHandle(p.log.With(zap.String("device", id.String())), dev, id, func() {
		p.open.Dec()
	})
	if err != nil {
		dev.Close()
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodXUSB, Err: err}
	}
	p.open.Inc()
	return h, nil
}

// openAt reopens the device found during enumeration by its bus
// address.
func (p *Processor) openAt(addr usbAddr) (*gousb.Device, error) {
	devs, err := p.usbContext().OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == addr.bus && desc.Address == addr.address
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open usb device: %w", err)
	}
	if len(devs) == 0 {
		return nil, pad.ErrDeviceNotFound
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	return devs[0], nil
}
