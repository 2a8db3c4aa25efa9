package devsvc

import (
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/padbridge/padbridge/pad"
)

// DevicesConfig is the devices.yml document: the user's per-device
// assignments, hot-reloaded through the config service and rewritten
// by `set-method`.
type DevicesConfig struct {
	Devices []DeviceAssignment `json:"devices"`
}

// DeviceAssignment configures one device by identity. A nil Enabled
// means enabled; Mapping holds hidraw usage overrides.
type DeviceAssignment struct {
	Identity    pad.Identity      `json:"identity"`
	DisplayName string            `json:"displayName,omitempty"`
	Method      pad.InputMethod   `json:"method,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Hidden      bool              `json:"hidden,omitempty"`
	Mapping     map[string]string `json:"mapping,omitempty"`
}

func (a DeviceAssignment) enabled() bool {
	return a.Enabled == nil || *a.Enabled
}

func (c DevicesConfig) index() map[pad.Identity]DeviceAssignment {
	out := make(map[pad.Identity]DeviceAssignment, len(c.Devices))
	for _, a := range c.Devices {
		out[a.Identity] = a
	}
	return out
}

// normalizeMapping rewrites override keys and targets into canonical
// form, so devices.yml accepts any case style: "Button:Extra1",
// "axis: -LeftY" and "button:extra1" mean the same thing.
func normalizeMapping(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, target := range in {
		out[strings.ToLower(strings.TrimSpace(key))] = normalizeTarget(target)
	}
	return out
}

func normalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	kind, name, ok := strings.Cut(target, ":")
	if !ok {
		return strings.ToLower(target)
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	name = strings.TrimSpace(name)
	invert := strings.HasPrefix(name, "-")
	if invert {
		name = strings.TrimSpace(name[1:])
	}
	name = snakeName(name)
	if invert {
		name = "-" + name
	}
	return kind + ":" + name
}

// snakeName converts to snake_case and reattaches digits: strcase
// splits letter-digit boundaries ("Extra1" -> "extra_1") but the
// canonical control names keep digits glued on ("extra1").
func snakeName(name string) string {
	s := strcase.ToSnake(name)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '_' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
