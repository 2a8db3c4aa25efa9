package hiddesc

import (
	"testing"
)

// gamepadDesc is a plain 16-button gamepad with a hat switch and four
// signed 8-bit axes: 7 byte reports, no report IDs.
var gamepadDesc = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x05, // Usage (Gamepad)
	0xa1, 0x01, // Collection (Application)
	0xa1, 0x00, //   Collection (Physical)
	0x05, 0x09, //     Usage Page (Button)
	0x19, 0x01, //     Usage Minimum (1)
	0x29, 0x10, //     Usage Maximum (16)
	0x15, 0x00, //     Logical Minimum (0)
	0x25, 0x01, //     Logical Maximum (1)
	0x75, 0x01, //     Report Size (1)
	0x95, 0x10, //     Report Count (16)
	0x81, 0x02, //     Input (Data,Var,Abs)
	0x05, 0x01, //     Usage Page (Generic Desktop)
	0x09, 0x39, //     Usage (Hat switch)
	0x15, 0x00, //     Logical Minimum (0)
	0x25, 0x07, //     Logical Maximum (7)
	0x75, 0x04, //     Report Size (4)
	0x95, 0x01, //     Report Count (1)
	0x81, 0x42, //     Input (Data,Var,Abs,Null)
	0x75, 0x04, //     Report Size (4)
	0x95, 0x01, //     Report Count (1)
	0x81, 0x01, //     Input (Const)
	0x09, 0x30, //     Usage (X)
	0x09, 0x31, //     Usage (Y)
	0x09, 0x32, //     Usage (Z)
	0x09, 0x35, //     Usage (Rz)
	0x15, 0x81, //     Logical Minimum (-127)
	0x25, 0x7f, //     Logical Maximum (127)
	0x75, 0x08, //     Report Size (8)
	0x95, 0x04, //     Report Count (4)
	0x81, 0x02, //     Input (Data,Var,Abs)
	0xc0, //   End Collection
	0xc0, // End Collection
}

func TestDecodeGamepad(t *testing.T) {
	desc, err := Decode(gamepadDesc)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc.Collections) != 1 {
		t.Fatalf("collections = %d, want 1", len(desc.Collections))
	}
	top := desc.Collections[0]
	if top.Type != CollectionApplication || top.UsagePage != 0x01 || top.UsageID != 0x05 {
		t.Errorf("top collection = %+v", top)
	}
	if !desc.HasUsage(0x01, 0x05) {
		t.Error("gamepad application usage not found")
	}
	if desc.HasUsage(0x01, 0x06) {
		t.Error("keyboard usage should not be found")
	}
	if len(top.Items) != 1 || top.Items[0].Kind != ItemCollection {
		t.Fatalf("expected single nested collection, got %+v", top.Items)
	}
	if got := len(top.Items[0].Collection.Items); got != 4 {
		t.Fatalf("nested items = %d, want 4", got)
	}
}

func TestInputFieldLayout(t *testing.T) {
	desc, err := Decode(gamepadDesc)
	if err != nil {
		t.Fatal(err)
	}
	if desc.UsesReportIDs() {
		t.Error("descriptor declares no report ids")
	}
	if ids := desc.ReportIDs(); len(ids) != 1 || ids[0] != 0 {
		t.Errorf("report ids = %v, want [0]", ids)
	}
	if size := desc.InputSize(0); size != 7 {
		t.Errorf("input size = %d, want 7", size)
	}

	fields := desc.InputFields(0)
	if len(fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(fields))
	}

	buttons := fields[0]
	if buttons.BitOffset != 0 || buttons.UsagePage != 0x09 ||
		buttons.UsageMinimum != 1 || buttons.UsageMaximum != 16 ||
		buttons.ReportCount != 16 || buttons.ReportSize != 1 {
		t.Errorf("button field = %+v", buttons)
	}
	if buttons.UsageAt(0) != 1 || buttons.UsageAt(15) != 16 {
		t.Errorf("button usages = %d..%d", buttons.UsageAt(0), buttons.UsageAt(15))
	}

	hat := fields[1]
	if hat.BitOffset != 16 || hat.UsageAt(0) != 0x39 || !hat.Flags.IsNullState() {
		t.Errorf("hat field = %+v", hat)
	}

	padding := fields[2]
	if padding.BitOffset != 20 || !padding.Flags.IsConstant() {
		t.Errorf("padding field = %+v", padding)
	}

	axes := fields[3]
	if axes.BitOffset != 24 || axes.Bits() != 32 || !axes.Signed() {
		t.Errorf("axes field = %+v", axes)
	}
	wantUsages := []uint16{0x30, 0x31, 0x32, 0x35}
	for i, want := range wantUsages {
		if got := axes.UsageAt(i); got != want {
			t.Errorf("axes usage %d = %#x, want %#x", i, got, want)
		}
	}
}

func TestDecodeNumberedReports(t *testing.T) {
	desc, err := Decode([]byte{
		0x05, 0x01, // Usage Page (Generic Desktop)
		0x09, 0x05, // Usage (Gamepad)
		0xa1, 0x01, // Collection (Application)
		0x85, 0x01, //   Report ID (1)
		0x05, 0x09, //   Usage Page (Button)
		0x19, 0x01, //   Usage Minimum (1)
		0x29, 0x08, //   Usage Maximum (8)
		0x15, 0x00, //   Logical Minimum (0)
		0x25, 0x01, //   Logical Maximum (1)
		0x75, 0x01, //   Report Size (1)
		0x95, 0x08, //   Report Count (8)
		0x81, 0x02, //   Input (Data,Var,Abs)
		0x85, 0x02, //   Report ID (2)
		0x75, 0x08, //   Report Size (8)
		0x95, 0x02, //   Report Count (2)
		0x91, 0x02, //   Output (Data,Var,Abs)
		0xc0, // End Collection
	})
	if err != nil {
		t.Fatal(err)
	}
	if !desc.UsesReportIDs() {
		t.Error("expected numbered reports")
	}
	if ids := desc.ReportIDs(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("input report ids = %v, want [1]", ids)
	}
	if size := desc.InputSize(1); size != 1 {
		t.Errorf("input size = %d, want 1", size)
	}
	out := desc.OutputFields(2)
	if len(out) != 1 || out[0].Bits() != 16 {
		t.Errorf("output fields = %+v", out)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated payload", []byte{0x05}},
		{"data item outside collection", []byte{0x81, 0x02}},
		{"unterminated collection", []byte{0x05, 0x01, 0x09, 0x05, 0xa1, 0x01}},
		{"end without open", []byte{0xc0}},
		{"pop with empty stack", []byte{0xb4}},
		{"truncated long item", []byte{0xfe}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestDecodeSkipsLongItems(t *testing.T) {
	data := []byte{
		0xfe, 0x02, 0x00, 0xaa, 0xbb, // long item, skipped
		0x05, 0x01, // Usage Page (Generic Desktop)
		0x09, 0x05, // Usage (Gamepad)
		0xa1, 0x01, // Collection (Application)
		0xc0, // End Collection
	}
	desc, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc.Collections) != 1 {
		t.Errorf("collections = %d, want 1", len(desc.Collections))
	}
}
