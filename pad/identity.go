package pad

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Identity is the stable cross-method identifier of a physical device:
// vendor ID, product ID, and an OS-assigned instance discriminator
// (serial number when the device reports one, otherwise a stable
// topology path). It is set at enumeration time and never changes for
// the life of a physical connection.
type Identity struct {
	VendorID  uint16
	ProductID uint16
	Instance  string
}

func (i Identity) String() string {
	return fmt.Sprintf("%04x:%04x/%s", i.VendorID, i.ProductID, i.Instance)
}

func (i Identity) IsZero() bool {
	return i == Identity{}
}

// Pair reports whether the identity matches a vendor/product pair,
// ignoring the instance.
func (i Identity) Pair(vendor, product uint16) bool {
	return i.VendorID == vendor && i.ProductID == product
}

func ParseIdentity(s string) (Identity, error) {
	pair, instance, ok := strings.Cut(s, "/")
	if !ok {
		return Identity{}, fmt.Errorf("invalid identity %q: missing instance", s)
	}
	vid, pid, ok := strings.Cut(pair, ":")
	if !ok {
		return Identity{}, fmt.Errorf("invalid identity %q: missing product id", s)
	}
	vendor, err := strconv.ParseUint(vid, 16, 16)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid vendor id %q: %w", vid, err)
	}
	product, err := strconv.ParseUint(pid, 16, 16)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid product id %q: %w", pid, err)
	}
	return Identity{
		VendorID:  uint16(vendor),
		ProductID: uint16(product),
		Instance:  instance,
	}, nil
}

func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Identity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseIdentity(s)
	if err != nil {
		return err
	}
	*i = id
	return nil
}

func (i Identity) MarshalYAML() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalYAML(data []byte) error {
	id, err := ParseIdentity(strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// Descriptors holds descriptive fields captured at detection time,
// namespaced by method prefix ("joydev.version", "hidraw.usage_page")
// so a device visible to several methods keeps every field set without
// collision.
type Descriptors map[string]string

func (d Descriptors) Get(method InputMethod, field string) string {
	return d[string(method)+"."+field]
}

func (d Descriptors) Set(method InputMethod, field, value string) {
	d[string(method)+"."+field] = value
}

// Merge copies src entries over d, returning true when anything changed.
func (d Descriptors) Merge(src Descriptors) bool {
	changed := false
	for k, v := range src {
		if d[k] != v {
			d[k] = v
			changed = true
		}
	}
	return changed
}

// Method filters the fields belonging to one method, with the prefix
// stripped.
func (d Descriptors) Method(method InputMethod) map[string]string {
	prefix := string(method) + "."
	out := make(map[string]string)
	for k, v := range d {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}
