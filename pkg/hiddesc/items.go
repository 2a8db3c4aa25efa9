package hiddesc

// Field is one data item placed at its absolute bit offset inside a
// report body (the report ID prefix byte, when present, is not
// counted).
type Field struct {
	DataItem
	BitOffset int
}

// Bits is the total width of the field run.
func (f Field) Bits() int {
	return int(f.ReportSize) * int(f.ReportCount)
}

// UsesReportIDs reports whether the descriptor declares numbered
// reports, in which case every report starts with its ID byte.
func (d Descriptor) UsesReportIDs() bool {
	ids := false
	d.Walk(func(item Item) bool {
		if item.Data != nil && item.Data.ReportID != 0 {
			ids = true
			return false
		}
		return true
	})
	return ids
}

// ReportIDs lists the declared input report IDs in declaration order.
// A descriptor without numbered reports yields the single ID 0.
func (d Descriptor) ReportIDs() []uint8 {
	var ids []uint8
	seen := make(map[uint8]struct{})
	d.Walk(func(item Item) bool {
		if item.Kind == ItemInput && item.Data != nil {
			if _, ok := seen[item.Data.ReportID]; !ok {
				seen[item.Data.ReportID] = struct{}{}
				ids = append(ids, item.Data.ReportID)
			}
		}
		return true
	})
	if len(ids) == 0 {
		ids = []uint8{0}
	}
	return ids
}

// InputFields lays out the input report with the given ID: every input
// data item in declaration order with its computed bit offset.
func (d Descriptor) InputFields(reportID uint8) []Field {
	return d.fields(ItemInput, reportID)
}

// OutputFields lays out the output report with the given ID.
func (d Descriptor) OutputFields(reportID uint8) []Field {
	return d.fields(ItemOutput, reportID)
}

func (d Descriptor) fields(kind ItemKind, reportID uint8) []Field {
	var fields []Field
	offset := 0
	d.Walk(func(item Item) bool {
		if item.Kind != kind || item.Data == nil || item.Data.ReportID != reportID {
			return true
		}
		fields = append(fields, Field{DataItem: *item.Data, BitOffset: offset})
		offset += int(item.Data.ReportSize) * int(item.Data.ReportCount)
		return true
	})
	return fields
}

// InputSize returns the byte length of the report body, rounded up to
// whole bytes, excluding the report ID prefix.
func (d Descriptor) InputSize(reportID uint8) int {
	bits := 0
	for _, f := range d.InputFields(reportID) {
		bits += f.Bits()
	}
	return (bits + 7) / 8
}
