package pad

import "strings"

// Button is a canonical button index. The ordering is the contract:
// every method's normalizer maps the same physical control to the same
// index, so downstream consumers and user mappings never depend on
// which method produced a snapshot.
type Button uint8

const (
	ButtonA Button = iota // south face button
	ButtonB               // east face button
	ButtonX               // west face button
	ButtonY               // north face button
	ButtonLeftBumper
	ButtonRightBumper
	ButtonBack
	ButtonStart
	ButtonGuide
	ButtonLeftStick
	ButtonRightStick
	ButtonExtra1
	ButtonExtra2
	ButtonExtra3
	ButtonExtra4
	ButtonExtra5
	ButtonExtra6
	ButtonExtra7
	ButtonExtra8
	ButtonExtra9
	ButtonExtra10
	ButtonExtra11
	ButtonExtra12
	ButtonExtra13

	// MaxButtons is the size of the button bit-set.
	MaxButtons = 24
)

var buttonNames = [MaxButtons]string{
	"a", "b", "x", "y",
	"left_bumper", "right_bumper",
	"back", "start", "guide",
	"left_stick", "right_stick",
	"extra1", "extra2", "extra3", "extra4", "extra5", "extra6",
	"extra7", "extra8", "extra9", "extra10", "extra11", "extra12",
	"extra13",
}

func (b Button) String() string {
	if int(b) >= MaxButtons {
		return "invalid"
	}
	return buttonNames[b]
}

func (b Button) Valid() bool {
	return int(b) < MaxButtons
}

// ButtonByName resolves a canonical button name. Names are matched in
// snake_case; callers normalize user input before lookup.
func ButtonByName(name string) (Button, bool) {
	for i, n := range buttonNames {
		if n == name {
			return Button(i), true
		}
	}
	return 0, false
}

// Buttons is a bit-set over the canonical button indices. Only the low
// MaxButtons bits are meaningful.
type Buttons uint32

func (b Buttons) IsSet(btn Button) bool {
	return btn.Valid() && b&(1<<btn) != 0
}

func (b *Buttons) Press(btn Button) {
	if btn.Valid() {
		*b |= 1 << btn
	}
}

func (b *Buttons) Release(btn Button) {
	if btn.Valid() {
		*b &^= 1 << btn
	}
}

func (b *Buttons) Assign(btn Button, pressed bool) {
	if pressed {
		b.Press(btn)
	} else {
		b.Release(btn)
	}
}

// Pressed lists the set buttons in index order.
func (b Buttons) Pressed() []Button {
	var out []Button
	for i := Button(0); i < MaxButtons; i++ {
		if b.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}

func (b Buttons) String() string {
	pressed := b.Pressed()
	if len(pressed) == 0 {
		return "none"
	}
	names := make([]string, len(pressed))
	for i, btn := range pressed {
		names[i] = btn.String()
	}
	return strings.Join(names, "+")
}
