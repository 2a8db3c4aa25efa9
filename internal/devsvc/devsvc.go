// Package devsvc maintains the device registry: per-method
// enumeration on a refresh cadence, persistent UserDevice records,
// and the assignment layer fed by devices.yml.
package devsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/jochenvg/go-udev"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/configsvc"
	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pkg/pubsub"
)

const devicePrefix = "pad/devices/"

func deviceKey(id pad.Identity) []byte {
	return []byte(devicePrefix + id.String())
}

var defaultOptions = serviceOptions{
	refreshInterval: 5 * time.Second,
	hotplug:         true,
}

type serviceOptions struct {
	refreshInterval time.Duration
	hotplug         bool
}

type Option func(*serviceOptions)

func WithRefreshInterval(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.refreshInterval = d
	}
}

// WithoutHotplug disables the udev monitor; refresh then runs on the
// ticker alone.
func WithoutHotplug() Option {
	return func(o *serviceOptions) {
		o.hotplug = false
	}
}

type Service struct {
	log         *zap.Logger
	db          *badger.DB
	config      *configsvc.Service
	engine      *method.Engine
	devicesPath string
	now         func() time.Time
	options     serviceOptions

	ready     chan struct{}
	bus       *DeviceBus
	refreshCh chan chan error

	mu          sync.Mutex
	devices     map[pad.Identity]UserDevice
	assignments map[pad.Identity]DeviceAssignment
	notices     map[pad.InputMethod]string
	writer      *configsvc.Writer[DevicesConfig]
}

func New(db *badger.DB, log *zap.Logger, config *configsvc.Service, engine *method.Engine, devicesPath string, now func() time.Time, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		log:         log,
		db:          db,
		config:      config,
		engine:      engine,
		devicesPath: devicesPath,
		now:         now,
		options:     options,
		ready:       make(chan struct{}),
		bus:         pubsub.NewHub[pad.Identity, DeviceEvent](log.Named("bus")),
		refreshCh:   make(chan chan error),
		devices:     make(map[pad.Identity]UserDevice),
		assignments: make(map[pad.Identity]DeviceAssignment),
		notices:     make(map[pad.InputMethod]string),
	}
}

func (s *Service) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.config.Ready():
	}

	if err := s.loadPersisted(); err != nil {
		return fmt.Errorf("failed to load persisted devices: %w", err)
	}

	cfg, writer, err := configsvc.RegisterWriteable(s.config, s.devicesPath, DevicesConfig{}, s.onConfigChange)
	if err != nil {
		return fmt.Errorf("failed to register devices config: %w", err)
	}
	s.mu.Lock()
	s.writer = writer
	s.mu.Unlock()
	s.applyConfig(cfg)

	if err := s.runRefresh(ctx); err != nil {
		s.log.Error("initial enumeration failed", zap.Error(err))
	}

	nudge := make(chan struct{}, 1)
	if s.options.hotplug {
		go s.watchHotplug(ctx, nudge)
	}

	close(s.ready)
	s.log.Info("Device registry started")

	ticker := time.NewTicker(s.options.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.runRefresh(ctx); err != nil {
				s.log.Error("failed to refresh devices", zap.Error(err))
			}
		case <-nudge:
			if err := s.runRefresh(ctx); err != nil {
				s.log.Error("failed to refresh devices", zap.Error(err))
			}
		case done := <-s.refreshCh:
			done <- s.runRefresh(ctx)
		}
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Events returns the device bus carrying connect/disconnect/update
// notifications.
func (s *Service) Events() *DeviceBus {
	return s.bus
}

// Refresh runs one enumeration pass now, outside the ticker cadence.
func (s *Service) Refresh(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.refreshCh <- done:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// loadPersisted seeds the in-memory view from badger so devices seen
// in earlier runs are listed before the first enumeration pass.
func (s *Service) loadPersisted() error {
	var devices []UserDevice
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte(devicePrefix)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var dev UserDevice
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device: %w", err)
			}
			devices = append(devices, dev)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dev := range devices {
		// A fresh process holds no handles; enumeration rebuilds the
		// online flags.
		dev.Online = false
		s.devices[dev.Identity] = dev
	}
	return nil
}

// runRefresh is one full enumeration pass: collect per method, merge
// into the persistent records, flip online flags, publish the diff.
func (s *Service) runRefresh(ctx context.Context) error {
	discovered := make(map[pad.Identity]pad.Descriptors)
	notices := make(map[pad.InputMethod]string)
	for _, proc := range s.engine.Processors() {
		devs, err := proc.Enumerate(ctx)
		if err != nil {
			enumErr := &pad.EnumerationError{Method: proc.Method(), Err: err}
			s.log.Warn("enumeration failed",
				zap.String("method", proc.Method().String()), zap.Error(err))
			notices[proc.Method()] = enumErr.Error()
			continue
		}
		for _, d := range devs {
			desc := d.Descriptors
			if desc == nil {
				desc = pad.Descriptors{}
			}
			if d.Name != "" {
				desc.Set(proc.Method(), "name", d.Name)
			}
			if d.Node != "" {
				desc.Set(proc.Method(), "node", d.Node)
			}
			if cur, ok := discovered[d.Identity]; ok {
				cur.Merge(desc)
			} else {
				discovered[d.Identity] = desc
			}
		}
	}

	now := s.now()

	s.mu.Lock()
	known := make(map[pad.Identity]UserDevice, len(s.devices))
	for id, dev := range s.devices {
		known[id] = dev
	}
	assignments := s.assignments
	s.mu.Unlock()

	var events []DeviceEvent
	var upserts []UserDevice

	for id, desc := range discovered {
		prev, existed := known[id]
		next := prev
		if !existed {
			next = UserDevice{
				Identity:    id,
				IsEnabled:   true,
				Descriptors: pad.Descriptors{},
				FirstSeenAt: now,
			}
		}
		merged := pad.Descriptors{}
		merged.Merge(prev.Descriptors)
		descChanged := merged.Merge(desc)
		next.Descriptors = merged
		next.LastSeenAt = now
		next.Online = true

		a, assigned := assignments[id]
		assignChanged := applyAssignment(&next, a, assigned)
		if !existed {
			next.NeedsReload = false
		}

		switch {
		case !existed || !prev.Online:
			events = append(events, DeviceEvent{Type: DeviceConnected, Device: next})
		case descChanged || assignChanged:
			events = append(events, DeviceEvent{Type: DeviceUpdated, Device: next})
		}
		upserts = append(upserts, next)
	}

	for id, prev := range known {
		if _, ok := discovered[id]; ok || !prev.Online {
			continue
		}
		next := prev
		next.Online = false
		events = append(events, DeviceEvent{Type: DeviceDisconnected, Device: next})
		upserts = append(upserts, next)
	}

	if err := s.persist(upserts); err != nil {
		return fmt.Errorf("failed to persist devices: %w", err)
	}

	s.mu.Lock()
	for _, dev := range upserts {
		s.devices[dev.Identity] = dev
	}
	s.notices = notices
	s.mu.Unlock()

	for _, ev := range events {
		s.log.Debug("device "+ev.Type.String(),
			zap.String("device", ev.Device.Identity.String()),
			zap.String("name", ev.Device.Label()))
		s.bus.Publish(ev.Device.Identity, ev)
	}
	return nil
}

// applyAssignment folds a devices.yml entry into the record. A method
// change raises NeedsReload for the orchestrator's next cycle.
func applyAssignment(dev *UserDevice, a DeviceAssignment, assigned bool) bool {
	if !assigned {
		return false
	}
	changed := false
	if a.DisplayName != dev.DisplayName {
		dev.DisplayName = a.DisplayName
		changed = true
	}
	if a.Method != "" && a.Method != dev.InputMethod {
		dev.InputMethod = a.Method
		dev.NeedsReload = true
		changed = true
	}
	if enabled := a.enabled(); enabled != dev.IsEnabled {
		dev.IsEnabled = enabled
		changed = true
	}
	if a.Hidden != dev.IsHidden {
		dev.IsHidden = a.Hidden
		changed = true
	}
	return changed
}

func (s *Service) onConfigChange(cfg DevicesConfig, err error) {
	if err != nil {
		s.log.Error("failed to parse devices config", zap.Error(err))
		return
	}
	s.applyConfig(cfg)
}

func (s *Service) applyConfig(cfg DevicesConfig) {
	assignments := cfg.index()
	now := s.now()

	var events []DeviceEvent
	var upserts []UserDevice

	s.mu.Lock()
	s.assignments = assignments
	for id, dev := range s.devices {
		a, ok := assignments[id]
		if !ok {
			continue
		}
		next := dev
		if applyAssignment(&next, a, true) {
			s.devices[id] = next
			upserts = append(upserts, next)
			events = append(events, DeviceEvent{Type: DeviceUpdated, Device: next})
		}
	}
	// devices.yml may pre-configure a device the agent has never seen;
	// the record starts offline and fills in at first detection.
	for id, a := range assignments {
		if _, ok := s.devices[id]; ok {
			continue
		}
		dev := UserDevice{
			Identity:    id,
			IsEnabled:   true,
			Descriptors: pad.Descriptors{},
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		applyAssignment(&dev, a, true)
		dev.NeedsReload = false
		s.devices[id] = dev
		upserts = append(upserts, dev)
		events = append(events, DeviceEvent{Type: DeviceUpdated, Device: dev})
	}
	s.mu.Unlock()

	if err := s.persist(upserts); err != nil {
		s.log.Error("failed to persist devices", zap.Error(err))
	}
	for _, ev := range events {
		s.bus.Publish(ev.Device.Identity, ev)
	}
}

func (s *Service) persist(devs []UserDevice) error {
	if len(devs) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, dev := range devs {
			b, err := json.Marshal(dev)
			if err != nil {
				return fmt.Errorf("failed to marshal device: %w", err)
			}
			if err := txn.Set(deviceKey(dev.Identity), b); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns a copy of every known device, ordered by identity.
func (s *Service) List() []UserDevice {
	s.mu.Lock()
	out := make([]UserDevice, 0, len(s.devices))
	for _, dev := range s.devices {
		out = append(out, dev)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.String() < out[j].Identity.String()
	})
	return out
}

func (s *Service) Get(id pad.Identity) (UserDevice, error) {
	s.mu.Lock()
	dev, ok := s.devices[id]
	s.mu.Unlock()
	if !ok {
		return UserDevice{}, fmt.Errorf("%w: %s", pad.ErrDeviceNotFound, id)
	}
	return dev, nil
}

// Notices reports per-method enumeration failures from the last pass.
func (s *Service) Notices() map[pad.InputMethod]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[pad.InputMethod]string, len(s.notices))
	for m, msg := range s.notices {
		out[m] = msg
	}
	return out
}

// MappingOverrides returns the normalized hidraw mapping overrides
// assigned to a device, nil when there are none.
func (s *Service) MappingOverrides(id pad.Identity) map[string]string {
	s.mu.Lock()
	a, ok := s.assignments[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return normalizeMapping(a.Mapping)
}

// ConsumeReload clears a pending reload flag, reporting whether one
// was set. The orchestrator calls this once per cycle per device.
func (s *Service) ConsumeReload(id pad.Identity) bool {
	s.mu.Lock()
	dev, ok := s.devices[id]
	if !ok || !dev.NeedsReload {
		s.mu.Unlock()
		return false
	}
	dev.NeedsReload = false
	s.devices[id] = dev
	s.mu.Unlock()
	if err := s.persist([]UserDevice{dev}); err != nil {
		s.log.Error("failed to persist device", zap.Error(err))
	}
	return true
}

// SetMethod assigns the input method by rewriting devices.yml through
// the config service. The watch cycle folds the change back into the
// registry and raises NeedsReload there.
func (s *Service) SetMethod(id pad.Identity, m pad.InputMethod) error {
	if !m.Valid() {
		return fmt.Errorf("unknown input method %q", m)
	}
	s.mu.Lock()
	writer := s.writer
	assignments := s.assignments
	s.mu.Unlock()
	if writer == nil {
		return errors.New("devices config is not registered yet")
	}

	ids := make([]pad.Identity, 0, len(assignments))
	for aid := range assignments {
		ids = append(ids, aid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	cfg := DevicesConfig{Devices: make([]DeviceAssignment, 0, len(ids)+1)}
	found := false
	for _, aid := range ids {
		a := assignments[aid]
		if aid == id {
			a.Method = m
			found = true
		}
		cfg.Devices = append(cfg.Devices, a)
	}
	if !found {
		cfg.Devices = append(cfg.Devices, DeviceAssignment{Identity: id, Method: m})
	}
	return writer.Write(cfg)
}

// watchHotplug nudges the refresh loop when udev reports add/remove
// activity, so a replug shows up before the next tick. The ticker
// remains the correctness path; losing the monitor only costs
// latency.
func (s *Service) watchHotplug(ctx context.Context, nudge chan<- struct{}) {
	u := udev.Udev{}
	monitor := u.NewMonitorFromNetlink("udev")
	if monitor == nil {
		s.log.Warn("hotplug monitor unavailable")
		return
	}
	ch, err := monitor.DeviceChan(ctx)
	if err != nil {
		s.log.Warn("hotplug monitor unavailable", zap.Error(err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				return
			}
			if d == nil {
				continue
			}
			switch d.Subsystem() {
			case "input", "hidraw", "usb":
			default:
				continue
			}
			if action := d.Action(); action != "add" && action != "remove" {
				continue
			}
			select {
			case nudge <- struct{}{}:
			default:
			}
		}
	}
}
