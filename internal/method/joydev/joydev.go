// Package joydev drives pads over the legacy /dev/input/js* interface.
// The interface is universally present but limited: no force feedback,
// no guide button, and xbox-style pads report both triggers on one
// shared axis.
package joydev

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"unsafe"

	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/padbridge/padbridge/internal/linux"
	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pad/profile"
)

const nodeGlob = "/dev/input/js*"

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
	return pad.MethodJoydev
}

func (p *Processor) Caps() method.Caps {
	return method.Caps{
		DeviceCap:        0,
		Background:       method.BackgroundAdvisory,
		SeparateTriggers: false,
		GuideButton:      false,
		Rumble:           method.RumbleNone,
	}
}

func (p *Processor) Enumerate(ctx context.Context) ([]method.Discovered, error) {
	paths, err := filepath.Glob(nodeGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to glob joystick nodes: %w", err)
	}
	var out []method.Discovered
	for _, path := range paths {
		info, err := probe(path)
		if err != nil {
			p.log.Debug("skipping joystick node", zap.String("path", path), zap.Error(err))
			continue
		}
		id := p.identityFor(path)
		p.nodes.Store(id, path)

		desc := pad.Descriptors{}
		desc.Set(pad.MethodJoydev, "path", path)
		desc.Set(pad.MethodJoydev, "name", info.name)
		desc.Set(pad.MethodJoydev, "axes", strconv.Itoa(info.axes))
		desc.Set(pad.MethodJoydev, "buttons", strconv.Itoa(info.buttons))

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
	axes    int
	buttons int
}

// probe opens the node read-only just long enough to ask the driver
// for its name and axis/button counts.
func probe(path string) (nodeInfo, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nodeInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var info nodeInfo
	name := make([]byte, 128)
	if err := linux.Ioctl(fd, linux.JSIOCGNAME(len(name)), unsafe.Pointer(&name[0])); err == nil {
		info.name = unix.ByteSliceToString(name)
	}
	if info.name == "" {
		info.name = filepath.Base(path)
	}
	var axes, buttons uint8
	if err := linux.Ioctl(fd, linux.JSIOCGAXES, unsafe.Pointer(&axes)); err != nil {
		return nodeInfo{}, fmt.Errorf("failed to read axis count: %w", err)
	}
	if err := linux.Ioctl(fd, linux.JSIOCGBUTTONS, unsafe.Pointer(&buttons)); err != nil {
		return nodeInfo{}, fmt.Errorf("failed to read button count: %w", err)
	}
	info.axes = int(axes)
	info.buttons = int(buttons)
	return info, nil
}

func (p *Processor) identityFor(path string) pad.Identity {
	id := pad.Identity{Instance: filepath.Base(path)}
	dev := p.udev.NewDeviceFromSubsystemSysname("input", filepath.Base(path))
	if dev == nil {
		return id
	}
	if v, err := strconv.ParseUint(dev.PropertyValue("ID_VENDOR_ID"), 16, 16); err == nil {
		id.VendorID = uint16(v)
	}
	if v, err := strconv.ParseUint(dev.PropertyValue("ID_MODEL_ID"), 16, 16); err == nil {
		id.ProductID = uint16(v)
	}
	if s := dev.PropertyValue("ID_SERIAL_SHORT"); s != "" {
		id.Instance = s
	} else if s := dev.PropertyValue("ID_PATH"); s != "" {
		id.Instance = s
	}
	return id
}

func (p *Processor) CanProcess(id pad.Identity, desc pad.Descriptors) bool {
	return desc.Get(pad.MethodJoydev, "path") != ""
}

// Validate never rejects: the joystick interface takes any device the
// kernel translated. Its limits surface as warnings instead.
func (p *Processor) Validate(id pad.Identity, desc pad.Descriptors, env method.Env) pad.ValidationResult {
	var warnings []string
	if profile.XboxStyle(id) {
		warnings = append(warnings,
			"xbox-style pads may pause event delivery to background readers on the legacy joystick interface")
	}
	warnings = append(warnings,
		"force feedback is unavailable on the legacy joystick interface")
	return pad.Valid(warnings...)
}

func (p *Processor) Acquire(ctx context.Context, id pad.Identity) (method.Handle, error) {
	node, ok := p.nodes.Load(id)
	if !ok {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodJoydev, Err: pad.ErrDeviceNotFound}
	}
	fd, err := unix.Open(node, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &pad.AcquireError{Identity: id, Method: pad.MethodJoydev,
			Err: fmt.Errorf("failed to open %s: %w", node, err)}
	}
	return newHandle(p.log.With(zap.String("device", id.String())), fd, id, mappingFor(id)), nil
}
