package hiddesc

// Tag is a short-item prefix byte with the size bits masked off. The
// low two bits of the raw prefix select the payload size; bits 2-3
// select main/global/local.
type Tag uint8

const (
	tagInput         Tag = 0x80
	tagOutput        Tag = 0x90
	tagFeature       Tag = 0xb0
	tagCollection    Tag = 0xa0
	tagEndCollection Tag = 0xc0

	tagUsagePage       Tag = 0x04
	tagLogicalMinimum  Tag = 0x14
	tagLogicalMaximum  Tag = 0x24
	tagPhysicalMinimum Tag = 0x34
	tagPhysicalMaximum Tag = 0x44
	tagUnitExponent    Tag = 0x54
	tagUnit            Tag = 0x64
	tagReportSize      Tag = 0x74
	tagReportID        Tag = 0x84
	tagReportCount     Tag = 0x94
	tagPush            Tag = 0xa4
	tagPop             Tag = 0xb4

	tagUsage             Tag = 0x08
	tagUsageMinimum      Tag = 0x18
	tagUsageMaximum      Tag = 0x28
	tagDesignatorIndex   Tag = 0x38
	tagDesignatorMinimum Tag = 0x48
	tagDesignatorMaximum Tag = 0x58
	tagStringIndex       Tag = 0x68
	tagStringMinimum     Tag = 0x78
	tagStringMaximum     Tag = 0x88
	tagDelimiter         Tag = 0xa8

	// longItemPrefix introduces a long item: a size byte and a tag byte
	// follow, then the payload. Defined but unused by HID 1.11.
	longItemPrefix = 0xfe
)

func (t Tag) prefix() Tag {
	return t & 0xfc
}

// payloadBytes decodes the size bits of the raw prefix: 0, 1, 2 or 4.
func (t Tag) payloadBytes() int {
	n := int(t & 0x03)
	if n == 3 {
		return 4
	}
	return n
}
