// Package evdev drives pads over the modern /dev/input/event*
// interface: separate triggers, a working guide button and kernel
// force feedback. It asks the most of the platform, so validation
// checks the kernel version and input-node access up front.
package evdev

import (
	"context"
	"fmt"
	"path/filepath"
	"unsafe"

	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/padbridge/padbridge/internal/linux"
	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
)

const nodeGlob = "/dev/input/event*"

// The event interface grew stable gamepad rumble handling here;
// anything older fails validation.
var minKernel = method.KernelVersion{Major: 4, Minor: 18}

type Processor struct {
	log   *zap.Logger
	udev  *udev.Udev
	nodes *xsync.MapOf[pad.Identity, string]
}

func New(log *zap.Logger) *Processor {
	return &Processor{
		log:   log,
		udev:  &udev.Udev{},
		nodes: xsync.NewMapOf[pad.Identity, string](),
	}
}

func (p *Processor) Method() pad.InputMethod {
	return pad.MethodEvdev
}

func (p *Processor) Caps() method.Caps {
	return method.Caps{
		DeviceCap:        0,
		Background:       method.BackgroundNever,
		SeparateTriggers: true,
		GuideButton:      true,
		Rumble:           method.RumbleTrigger,
	}
}

func (p *Processor) Enumerate(ctx context.Context) ([]method.Discovered, error) {
	paths, err := filepath.Glob(nodeGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to glob event nodes: %w", err)
	}
	var out []method.Discovered
	for _, path := range paths {
		info, err := probe(path)
		if err != nil {
			p.log.Debug("skipping event node", zap.String("path", path), zap.Error(err))
			continue
		}
		if !info.gamepad {
			continue
		}
		id := p.identityFor(path, info)
		p.nodes.Store(id, path)

		desc := pad.Descriptors{}
		desc.Set(pad.MethodEvdev, "path", path)
		desc.Set(pad.MethodEvdev, "name", info.name)
		desc.Set(pad.MethodEvdev, "bus", fmt.Sprintf("%04x", info.id.BusType))
		if info.rumble {
			desc.Set(pad.MethodEvdev, "ff", "rumble")
		} else {
			desc.Set(pad.MethodEvdev, "ff", "none")
		}

		out = append(out, method.Discovered{
			Identity:    id,
			Name:        info.name,
			Node:        path,
			Descriptors: desc,
		})
	}
	return out, nil
}

type nodeInfo struct {
	name    string
	id      linux.InputID
	gamepad bool
	rumble  bool
}

// probe opens the node briefly and asks the kernel what it is. A
// gamepad per the kernel's own convention carries BtnSouth alongside
// absolute axes.
func probe(path string) (nodeInfo, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nodeInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var info nodeInfo
	if err := linux.Ioctl(fd, linux.EVIOCGID, unsafe.Pointer(&info.id)); err != nil {
		return nodeInfo{}, fmt.Errorf("failed to read input id: %w", err)
	}
	name := make([]byte, 256)
	if err := linux.Ioctl(fd, linux.EVIOCGNAME(len(name)), unsafe.Pointer(&name[0])); err == nil {
		info.name = unix.ByteSliceToString(name)
	}
	if info.name == "" {
		info.name = filepath.Base(path)
	}

	keys := linux.NewBitmap(linux.KeyMax)
	if err := linux.Ioctl(fd, linux.EVIOCGBIT(linux.EvKey, len(keys)), unsafe.Pointer(&keys[0])); err != nil {
		return nodeInfo{}, fmt.Errorf("failed to read key capabilities: %w", err)
	}
	abs := linux.NewBitmap(linux.AbsMax)
	if err := linux.Ioctl(fd, linux.EVIOCGBIT(linux.EvAbs, len(abs)), unsafe.Pointer(&abs[0])); err != nil {
		return nodeInfo{}, fmt.Errorf("failed to read abs capabilities: %w", err)
	}
	info.gamepad = keys.IsSet(linux.BtnSouth) && abs.IsSet(linux.AbsX)

	ff := linux.NewBitmap(linux.FFMax)
	if err := linux.Ioctl(fd, linux.EVIOCGBIT(linux.EvFF, len(ff)), unsafe.Pointer(&ff[0])); err == nil {
		info.rumble = ff.IsSet(linux.FFRumble)
	}
	return info, nil
}

func (p *Processor) identityFor(path string, info nodeInfo) pad.Identity {
	id := pad.Identity{
		VendorID:  info.id.Vendor,
		ProductID: info.id.Product,
		Instance:  filepath.Base(path),
	}
	dev := p.udev.NewDeviceFromSubsystemSysname("input", filepath.Base(path))
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
	return desc.Get(pad.MethodEvdev, "path") != ""
}

// Validate enforces the platform floor: a kernel at least 4.18 and
// read access to the input nodes. Both failures reject the device, the
// method never degrades.
func (p *Processor) Validate(id pad.Identity, desc pad.Descriptors, env method.Env) pad.ValidationResult {
	if desc.Get(pad.MethodEvdev, "path") == "" {
		return pad.Invalid(pad.ReasonNotCapable,
			fmt.Sprintf("%s does not expose an event node", id))
	}
	if !env.Kernel.AtLeast(minKernel.Major, minKernel.Minor) {
		return pad.Invalid(pad.ReasonPlatformRequirement,
			fmt.Sprintf("kernel %s is older than the required %s", env.Kernel, minKernel))
	}
	if !env.InputAccess {
		return pad.Invalid(pad.ReasonPlatformRequirement,
			"input nodes are not readable; the event bridge is unavailable")
	}
	return pad.Valid()
}

func (p *Processor) Acquire(ctx context.Context, id pad.Identity) (method.Handle, error) {
	node, ok := p.nodes.Load(id)
	if !ok {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodEvdev, Err: pad.ErrDeviceNotFound}
	}
	ffWritable := true
	fd, err := unix.Open(node, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		ffWritable = false
		fd, err = unix.Open(node, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	}
	if err != nil {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodEvdev,
			Err: fmt.Errorf("failed to open %s: %w", node, err)}
	}

	log := p.log.With(zap.String("device", id.String()))

	// Exclusive grab keeps the joystick translation and other readers
	// from seeing the device while the handle is held.
	if err := linux.IoctlInt(fd, linux.EVIOCGRAB, 1); err != nil {
		log.Warn("failed to grab event node", zap.Error(err))
	}

	h := newHandle(log, fd, id, ffWritable)
	h.seed()
	return h, nil
}
