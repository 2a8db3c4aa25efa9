// Package hiddesc decodes HID report descriptors into a walkable item
// tree and computes per-report field layouts from it.
package hiddesc

// Descriptor is a decoded report descriptor: the ordered top-level
// application collections of a device.
type Descriptor struct {
	Collections []Collection
}

type CollectionType uint8

const (
	CollectionPhysical CollectionType = iota
	CollectionApplication
	CollectionLogical
	CollectionReport
	CollectionNamedArray
	CollectionUsageSwitch
	CollectionUsageModifier
)

// Collection groups related items. Collections nest; only the
// top-level application collection is mandatory in a descriptor.
type Collection struct {
	Type      CollectionType
	UsagePage uint16
	UsageID   uint16
	Items     []Item
}

type ItemKind uint8

const (
	ItemInput ItemKind = iota
	ItemOutput
	ItemFeature
	ItemCollection
)

// Item is one main item: either a data item (input/output/feature) or
// a nested collection.
type Item struct {
	Kind       ItemKind
	Data       *DataItem
	Collection *Collection
}

type DataFlags uint16

const (
	FlagConstant DataFlags = 1 << iota
	FlagVariable
	FlagRelative
	FlagWrap
	FlagNonLinear
	FlagNoPreferred
	FlagNullState
	FlagVolatile
	FlagBufferedBytes
)

func (f DataFlags) IsConstant() bool      { return f&FlagConstant != 0 }
func (f DataFlags) IsVariable() bool      { return f&FlagVariable != 0 }
func (f DataFlags) IsArray() bool         { return !f.IsVariable() }
func (f DataFlags) IsRelative() bool      { return f&FlagRelative != 0 }
func (f DataFlags) IsNullState() bool     { return f&FlagNullState != 0 }
func (f DataFlags) IsBufferedBytes() bool { return f&FlagBufferedBytes != 0 }

// DataItem describes one run of equally-shaped report fields:
// ReportCount fields of ReportSize bits each, tagged with usages either
// listed individually or as a contiguous range.
type DataItem struct {
	Flags        DataFlags
	UsagePage    uint16
	Usages       []uint16
	UsageMinimum uint16
	UsageMaximum uint16

	ReportID    uint8
	ReportSize  uint32
	ReportCount uint32

	LogicalMinimum int32
	LogicalMaximum int32
}

// Signed reports whether field values are two's-complement encoded.
func (d DataItem) Signed() bool {
	return d.LogicalMinimum < 0
}

// UsageAt resolves the usage of the n-th field in this item, following
// listed usages first and the declared range after. The last listed
// usage repeats when the item has more fields than usage declarations.
func (d DataItem) UsageAt(n int) uint16 {
	if n < len(d.Usages) {
		return d.Usages[n]
	}
	if d.UsageMinimum != 0 || d.UsageMaximum != 0 {
		u := uint32(d.UsageMinimum) + uint32(n-len(d.Usages))
		if u > uint32(d.UsageMaximum) {
			return d.UsageMaximum
		}
		return uint16(u)
	}
	if len(d.Usages) > 0 {
		return d.Usages[len(d.Usages)-1]
	}
	return 0
}

// Walk visits every item of the collection depth first in declaration
// order, stopping when fn returns false.
func (c Collection) Walk(fn func(Item) bool) bool {
	for _, item := range c.Items {
		if !fn(item) {
			return false
		}
		if item.Collection != nil {
			if !item.Collection.Walk(fn) {
				return false
			}
		}
	}
	return true
}

func (d Descriptor) Walk(fn func(Item) bool) {
	for _, c := range d.Collections {
		if !c.Walk(fn) {
			return
		}
	}
}

// HasUsage reports whether any collection in the descriptor declares
// the given application usage.
func (d Descriptor) HasUsage(page, id uint16) bool {
	for _, c := range d.Collections {
		if c.UsagePage == page && c.UsageID == id {
			return true
		}
	}
	return false
}
