package devsvc

import (
	"time"

	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pkg/pubsub"
)

// UserDevice is the persistent registry record of one physical
// device. It survives disconnects: enumeration toggles Online without
// touching the user's configuration, so a device keeps its method and
// name across replug.
type UserDevice struct {
	Identity    pad.Identity    `json:"identity"`
	DisplayName string          `json:"displayName,omitempty"`
	InputMethod pad.InputMethod `json:"inputMethod,omitempty"`
	IsEnabled   bool            `json:"isEnabled"`
	IsHidden    bool            `json:"isHidden,omitempty"`
	Online      bool            `json:"online"`
	NeedsReload bool            `json:"needsReload,omitempty"`
	Descriptors pad.Descriptors `json:"descriptors"`
	FirstSeenAt time.Time       `json:"firstSeenAt"`
	LastSeenAt  time.Time       `json:"lastSeenAt"`
}

// Label is the name shown to the user: the assigned display name when
// set, otherwise the best name a method reported, otherwise the
// identity itself.
func (d UserDevice) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	for _, m := range pad.Methods() {
		if name := d.Descriptors.Get(m, "name"); name != "" {
			return name
		}
		if name := d.Descriptors.Get(m, "product"); name != "" {
			return name
		}
	}
	return d.Identity.String()
}

// Pollable reports whether the orchestrator should drive this device:
// it needs a method assigned, the enabled flag, and a live connection.
func (d UserDevice) Pollable() bool {
	return d.Online && d.IsEnabled && d.InputMethod.Valid()
}

type DeviceEventType uint8

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
	DeviceUpdated
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	case DeviceUpdated:
		return "updated"
	}
	return "unknown"
}

// DeviceEvent is published on the device bus whenever a registry
// record changes. The embedded record is a copy taken at publish time.
type DeviceEvent struct {
	Type   DeviceEventType
	Device UserDevice
}

type (
	DeviceBus     = pubsub.Hub[pad.Identity, DeviceEvent]
	DeviceMessage = pubsub.Message[pad.Identity, DeviceEvent]
)
