package hiddesc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode parses raw report descriptor bytes into a Descriptor. The
// input is walked as a sequence of short items updating global/local
// parser state; main items emit into the open collection.
func Decode(data []byte) (Descriptor, error) {
	s := &decodeState{}
	i := 0
	for i < len(data) {
		raw := Tag(data[i])
		if raw == longItemPrefix {
			if i+2 > len(data) {
				return Descriptor{}, errors.New("truncated long item")
			}
			i += 3 + int(data[i+1])
			continue
		}
		n := raw.payloadBytes()
		if i+1+n > len(data) {
			return Descriptor{}, fmt.Errorf("truncated item %#02x at offset %d", byte(raw), i)
		}
		payload := data[i+1 : i+1+n]
		fn := itemHandlers[raw.prefix()]
		if fn == nil {
			return Descriptor{}, fmt.Errorf("unknown item tag %#02x at offset %d", byte(raw), i)
		}
		if err := fn(s, payload); err != nil {
			return Descriptor{}, fmt.Errorf("failed to decode item %#02x: %w", byte(raw), err)
		}
		i += 1 + n
	}
	if s.open != nil {
		return Descriptor{}, errors.New("unterminated collection")
	}
	return Descriptor{Collections: s.collections}, nil
}

type globals struct {
	usagePage      uint16
	logicalMinimum int32
	logicalMaximum int32
	reportID       uint8
	reportSize     uint32
	reportCount    uint32
}

type locals struct {
	usages       []uint16
	usageMinimum uint16
	usageMaximum uint16
}

type decodeState struct {
	global      globals
	local       locals
	globalStack []globals

	open        *Collection
	stack       []Collection
	collections []Collection
}

type itemHandler func(*decodeState, []byte) error

var itemHandlers = map[Tag]itemHandler{
	tagInput:         func(s *decodeState, p []byte) error { return s.emitData(ItemInput, p) },
	tagOutput:        func(s *decodeState, p []byte) error { return s.emitData(ItemOutput, p) },
	tagFeature:       func(s *decodeState, p []byte) error { return s.emitData(ItemFeature, p) },
	tagCollection:    (*decodeState).openCollection,
	tagEndCollection: (*decodeState).closeCollection,

	tagUsagePage: func(s *decodeState, p []byte) error {
		s.global.usagePage = uint16(payloadUint(p))
		return nil
	},
	tagLogicalMinimum: func(s *decodeState, p []byte) error {
		s.global.logicalMinimum = payloadInt(p)
		return nil
	},
	tagLogicalMaximum: func(s *decodeState, p []byte) error {
		s.global.logicalMaximum = payloadInt(p)
		return nil
	},
	tagReportSize: func(s *decodeState, p []byte) error {
		s.global.reportSize = payloadUint(p)
		return nil
	},
	tagReportID: func(s *decodeState, p []byte) error {
		if len(p) == 0 {
			return errors.New("report id payload missing")
		}
		s.global.reportID = p[0]
		return nil
	},
	tagReportCount: func(s *decodeState, p []byte) error {
		s.global.reportCount = payloadUint(p)
		return nil
	},
	tagPush: func(s *decodeState, p []byte) error {
		s.globalStack = append(s.globalStack, s.global)
		return nil
	},
	tagPop: func(s *decodeState, p []byte) error {
		if len(s.globalStack) == 0 {
			return errors.New("pop with empty global stack")
		}
		s.global = s.globalStack[len(s.globalStack)-1]
		s.globalStack = s.globalStack[:len(s.globalStack)-1]
		return nil
	},

	tagUsage: func(s *decodeState, p []byte) error {
		s.local.usages = append(s.local.usages, uint16(payloadUint(p)))
		return nil
	},
	tagUsageMinimum: func(s *decodeState, p []byte) error {
		s.local.usageMinimum = uint16(payloadUint(p))
		return nil
	},
	tagUsageMaximum: func(s *decodeState, p []byte) error {
		s.local.usageMaximum = uint16(payloadUint(p))
		return nil
	},

	// Physical ranges, units, designators, strings and delimiters are
	// consumed for parser state correctness but carry nothing the
	// report layout needs.
	tagPhysicalMinimum:   ignorePayload,
	tagPhysicalMaximum:   ignorePayload,
	tagUnitExponent:      ignorePayload,
	tagUnit:              ignorePayload,
	tagDesignatorIndex:   ignorePayload,
	tagDesignatorMinimum: ignorePayload,
	tagDesignatorMaximum: ignorePayload,
	tagStringIndex:       ignorePayload,
	tagStringMinimum:     ignorePayload,
	tagStringMaximum:     ignorePayload,
	tagDelimiter:         ignorePayload,
}

func ignorePayload(*decodeState, []byte) error {
	return nil
}

func (s *decodeState) emitData(kind ItemKind, payload []byte) error {
	if s.open == nil {
		return errors.New("data item outside a collection")
	}
	item := &DataItem{
		Flags:        DataFlags(payloadUint(payload)),
		UsagePage:    s.global.usagePage,
		Usages:       s.local.usages,
		UsageMinimum: s.local.usageMinimum,
		UsageMaximum: s.local.usageMaximum,

		ReportID:    s.global.reportID,
		ReportSize:  s.global.reportSize,
		ReportCount: s.global.reportCount,

		LogicalMinimum: s.global.logicalMinimum,
		LogicalMaximum: s.global.logicalMaximum,
	}
	s.open.Items = append(s.open.Items, Item{Kind: kind, Data: item})
	s.local = locals{}
	return nil
}

func (s *decodeState) openCollection(payload []byte) error {
	if len(payload) != 1 {
		return errors.New("collection payload length is not 1")
	}
	c := Collection{
		Type:      CollectionType(payload[0]),
		UsagePage: s.global.usagePage,
	}
	if len(s.local.usages) > 0 {
		c.UsageID = s.local.usages[0]
	}
	if s.open != nil {
		s.stack = append(s.stack, *s.open)
	}
	s.open = &c
	s.local = locals{}
	return nil
}

func (s *decodeState) closeCollection(payload []byte) error {
	if s.open == nil {
		return errors.New("end collection without open collection")
	}
	if len(s.stack) == 0 {
		s.collections = append(s.collections, *s.open)
		s.open = nil
	} else {
		parent := s.stack[len(s.stack)-1]
		parent.Items = append(parent.Items, Item{Kind: ItemCollection, Collection: s.open})
		s.stack = s.stack[:len(s.stack)-1]
		s.open = &parent
	}
	s.local = locals{}
	return nil
}

// payloadUint reads a 0-4 byte little-endian payload, short payloads
// zero-padded.
func payloadUint(p []byte) uint32 {
	var buf [4]byte
	copy(buf[:], p)
	return binary.LittleEndian.Uint32(buf[:])
}

// payloadInt sign-extends by payload width.
func payloadInt(p []byte) int32 {
	switch len(p) {
	case 1:
		return int32(int8(p[0]))
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(p)))
	default:
		return int32(payloadUint(p))
	}
}
