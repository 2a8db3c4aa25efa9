package pad

import (
	"encoding/json"
	"fmt"
)

// Axis is a canonical axis index. Sign conventions: stick right is +X,
// stick up is +Y; trigger axes run from -1 (released) to +1 (fully
// pressed). The two trigger axes are independent in the model; a
// method that cannot separate them populates both from the same
// physical reading.
type Axis uint8

const (
	AxisLeftX Axis = iota
	AxisLeftY
	AxisRightX
	AxisRightY
	AxisLeftTrigger
	AxisRightTrigger

	AxisCount = 6
)

var axisNames = [AxisCount]string{
	"left_x", "left_y", "right_x", "right_y",
	"left_trigger", "right_trigger",
}

func (a Axis) String() string {
	if int(a) >= AxisCount {
		return "invalid"
	}
	return axisNames[a]
}

func (a Axis) Valid() bool {
	return int(a) < AxisCount
}

func AxisByName(name string) (Axis, bool) {
	for i, n := range axisNames {
		if n == name {
			return Axis(i), true
		}
	}
	return 0, false
}

// DPad is the directional pad position: centered plus eight directions.
type DPad uint8

const (
	DPadCentered DPad = iota
	DPadUp
	DPadUpRight
	DPadRight
	DPadDownRight
	DPadDown
	DPadDownLeft
	DPadLeft
	DPadUpLeft
)

var dpadNames = [9]string{
	"centered", "up", "up_right", "right", "down_right",
	"down", "down_left", "left", "up_left",
}

func (d DPad) String() string {
	if int(d) >= len(dpadNames) {
		return "invalid"
	}
	return dpadNames[d]
}

// DPadFromVector converts an x/y pair (each -1, 0 or +1, y positive up)
// into the nine-valued position.
func DPadFromVector(x, y int) DPad {
	switch {
	case x == 0 && y > 0:
		return DPadUp
	case x > 0 && y > 0:
		return DPadUpRight
	case x > 0 && y == 0:
		return DPadRight
	case x > 0 && y < 0:
		return DPadDownRight
	case x == 0 && y < 0:
		return DPadDown
	case x < 0 && y < 0:
		return DPadDownLeft
	case x < 0 && y == 0:
		return DPadLeft
	case x < 0 && y > 0:
		return DPadUpLeft
	}
	return DPadCentered
}

// Vector returns the x/y decomposition of the position, y positive up.
func (d DPad) Vector() (x, y int) {
	switch d {
	case DPadUp:
		return 0, 1
	case DPadUpRight:
		return 1, 1
	case DPadRight:
		return 1, 0
	case DPadDownRight:
		return 1, -1
	case DPadDown:
		return 0, -1
	case DPadDownLeft:
		return -1, -1
	case DPadLeft:
		return -1, 0
	case DPadUpLeft:
		return -1, 1
	}
	return 0, 0
}

func (d DPad) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DPad) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, n := range dpadNames {
		if n == s {
			*d = DPad(i)
			return nil
		}
	}
	return fmt.Errorf("unknown dpad position %q", s)
}

// State is the uniform controller snapshot. Its shape is identical
// regardless of which method produced it.
type State struct {
	Buttons   Buttons            `json:"buttons"`
	Axes      [AxisCount]float64 `json:"axes"`
	DPad      DPad               `json:"dpad"`
	ReadMicro uint64             `json:"readMicro"`
}

// Equal compares everything except the read timestamp.
func (s State) Equal(o State) bool {
	return s.Buttons == o.Buttons && s.Axes == o.Axes && s.DPad == o.DPad
}

// Normalize maps a raw reading in [min,max] linearly onto [-1,1],
// clamping out-of-range input. For a trigger reported in [0,255] this
// yields -1 at rest and +1 fully pressed.
func Normalize(raw, min, max int32) float64 {
	if max <= min {
		return 0
	}
	if raw < min {
		raw = min
	}
	if raw > max {
		raw = max
	}
	return float64(raw-min)/float64(max-min)*2 - 1
}

// NormalizeCentered maps a signed raw reading with the given magnitude
// onto [-1,1], clamping. Suited to sticks reported around zero.
func NormalizeCentered(raw, magnitude int32) float64 {
	if magnitude <= 0 {
		return 0
	}
	v := float64(raw) / float64(magnitude)
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
