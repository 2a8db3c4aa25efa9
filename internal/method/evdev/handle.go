package evdev

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/padbridge/padbridge/internal/linux"
	"github.com/padbridge/padbridge/pad"
)

// padState accumulates decoded events between polls, with hat raw
// values kept aside for dpad folding.
type padState struct {
	state pad.State
	hatX  int
	hatY  int
}

func (s *padState) syncDPad() {
	// Wire hat Y grows downward.
	s.state.DPad = pad.DPadFromVector(sign(s.hatX), -sign(s.hatY))
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

type handle struct {
	log      *zap.Logger
	fd       int
	id       pad.Identity
	released *atomic.Bool

	ps     padState
	ranges map[uint16]linux.AbsInfo

	ffWritable bool
	ffRumble   bool
	effectID   int16
	playing    bool

	buf [linux.InputEventSize * 64]byte
}

func newHandle(log *zap.Logger, fd int, id pad.Identity, ffWritable bool) *handle {
	return &handle{
		log:        log,
		fd:         fd,
		id:         id,
		released:   atomic.NewBool(false),
		ranges:     make(map[uint16]linux.AbsInfo),
		ffWritable: ffWritable,
		effectID:   -1,
	}
}

var absAxes = []uint16{
	linux.AbsX, linux.AbsY, linux.AbsZ, linux.AbsRx, linux.AbsRy, linux.AbsRz,
	linux.AbsGas, linux.AbsBrake, linux.AbsHat0X, linux.AbsHat0Y,
}

// seed loads axis ranges, current axis positions, held keys and the
// force-feedback capability, so the first poll already reflects the
// device without waiting for events.
func (h *handle) seed() {
	for _, code := range absAxes {
		var info linux.AbsInfo
		if err := linux.Ioctl(h.fd, linux.EVIOCGABS(code), unsafe.Pointer(&info)); err != nil {
			continue
		}
		h.ranges[code] = info
		h.applyAbs(code, info.Value)
	}

	keys := linux.NewBitmap(linux.KeyMax)
	if err := linux.Ioctl(h.fd, linux.EVIOCGKEY(len(keys)), unsafe.Pointer(&keys[0])); err == nil {
		for code, button := range buttonCodes {
			if keys.IsSet(code) {
				h.ps.state.Buttons.Press(button)
			}
		}
	}

	ff := linux.NewBitmap(linux.FFMax)
	if err := linux.Ioctl(h.fd, linux.EVIOCGBIT(linux.EvFF, len(ff)), unsafe.Pointer(&ff[0])); err == nil {
		h.ffRumble = ff.IsSet(linux.FFRumble)
	}
}

// buttonCodes is the canonical key translation, matching what the
// in-kernel pad drivers emit. The historical aliases put X on BtnNorth
// and Y on BtnWest.
var buttonCodes = map[uint16]pad.Button{
	linux.BtnSouth:  pad.ButtonA,
	linux.BtnEast:   pad.ButtonB,
	linux.BtnNorth:  pad.ButtonX,
	linux.BtnWest:   pad.ButtonY,
	linux.BtnTL:     pad.ButtonLeftBumper,
	linux.BtnTR:     pad.ButtonRightBumper,
	linux.BtnSelect: pad.ButtonBack,
	linux.BtnStart:  pad.ButtonStart,
	linux.BtnMode:   pad.ButtonGuide,
	linux.BtnThumbL: pad.ButtonLeftStick,
	linux.BtnThumbR: pad.ButtonRightStick,
	linux.BtnC:      pad.ButtonExtra1,
	linux.BtnZ:      pad.ButtonExtra2,
}

func (h *handle) ReadState(ctx context.Context) (pad.State, error) {
	if h.released.Load() {
		return pad.State{}, pad.ErrHandleReleased
	}
	if err := ctx.Err(); err != nil {
		return pad.State{}, &pad.ReadError{Identity: h.id, Err: err}
	}
	for {
		n, err := unix.Read(h.fd, h.buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			break
		}
		if err != nil {
			if h.released.Load() {
				return pad.State{}, pad.ErrHandleReleased
			}
			return pad.State{}, &pad.ReadError{Identity: h.id,
				Err: fmt.Errorf("failed to read input events: %w", err)}
		}
		if n < linux.InputEventSize {
			break
		}
		for off := 0; off+linux.InputEventSize <= n; off += linux.InputEventSize {
			h.apply(linux.DecodeInputEvent(h.buf[off : off+linux.InputEventSize]))
		}
	}
	return h.ps.state, nil
}

func (h *handle) apply(ev linux.InputEvent) {
	switch ev.Type {
	case linux.EvKey:
		h.applyKey(ev.Code, ev.Value)
	case linux.EvAbs:
		h.applyAbs(ev.Code, ev.Value)
	}
}

func (h *handle) applyKey(code uint16, value int32) {
	switch code {
	// Some pads report the dpad as buttons rather than a hat.
	case linux.BtnDpadUp:
		h.ps.hatY = -int(boolInt(value))
		h.ps.syncDPad()
	case linux.BtnDpadDown:
		h.ps.hatY = int(boolInt(value))
		h.ps.syncDPad()
	case linux.BtnDpadLeft:
		h.ps.hatX = -int(boolInt(value))
		h.ps.syncDPad()
	case linux.BtnDpadRight:
		h.ps.hatX = int(boolInt(value))
		h.ps.syncDPad()
	// Trigger-as-button pads snap the axis between its endpoints.
	case linux.BtnTL2:
		h.ps.state.Axes[pad.AxisLeftTrigger] = triggerEndpoint(value)
	case linux.BtnTR2:
		h.ps.state.Axes[pad.AxisRightTrigger] = triggerEndpoint(value)
	default:
		button, ok := buttonCodes[code]
		if !ok {
			return
		}
		if value != 0 {
			h.ps.state.Buttons.Press(button)
		} else {
			h.ps.state.Buttons.Release(button)
		}
	}
}

func boolInt(v int32) int32 {
	if v != 0 {
		return 1
	}
	return 0
}

func triggerEndpoint(v int32) float64 {
	if v != 0 {
		return 1
	}
	return -1
}

func (h *handle) applyAbs(code uint16, value int32) {
	switch code {
	case linux.AbsHat0X:
		h.ps.hatX = int(value)
		h.ps.syncDPad()
		return
	case linux.AbsHat0Y:
		h.ps.hatY = int(value)
		h.ps.syncDPad()
		return
	}
	r, ok := h.ranges[code]
	if !ok || r.Minimum == r.Maximum {
		return
	}
	v := pad.Normalize(value, r.Minimum, r.Maximum)
	switch code {
	case linux.AbsX:
		h.ps.state.Axes[pad.AxisLeftX] = v
	case linux.AbsY:
		h.ps.state.Axes[pad.AxisLeftY] = -v
	case linux.AbsRx:
		h.ps.state.Axes[pad.AxisRightX] = v
	case linux.AbsRy:
		h.ps.state.Axes[pad.AxisRightY] = -v
	case linux.AbsZ, linux.AbsBrake:
		h.ps.state.Axes[pad.AxisLeftTrigger] = v
	case linux.AbsRz, linux.AbsGas:
		h.ps.state.Axes[pad.AxisRightTrigger] = v
	}
}

// SendFeedback drives the kernel rumble pair: low frequency onto the
// strong motor, high onto the weak one. Trigger intensities have no
// kernel channel and stay with the caller per the capability report.
func (h *handle) SendFeedback(fb pad.Feedback) pad.FeedbackResult {
	if h.released.Load() {
		return pad.FeedbackFailed(pad.ErrHandleReleased)
	}
	if !h.ffRumble || !h.ffWritable {
		return pad.FeedbackUnsupported("device has no rumble motors reachable over the event interface")
	}
	fb = fb.Clamp()
	if fb.LowFrequency == 0 && fb.HighFrequency == 0 {
		if err := h.stopEffect(); err != nil {
			return pad.FeedbackFailed(err)
		}
		return pad.FeedbackDelivered()
	}

	effect := linux.NewRumbleEffect(
		uint16(fb.LowFrequency*0xffff),
		uint16(fb.HighFrequency*0xffff),
		0, // plays until stopped or replaced
	)
	effect.ID = h.effectID
	if err := linux.Ioctl(h.fd, linux.EVIOCSFF, unsafe.Pointer(&effect)); err != nil {
		return pad.FeedbackFailed(fmt.Errorf("failed to upload rumble effect: %w", err))
	}
	h.effectID = effect.ID

	if !h.playing {
		if err := h.writeEvent(linux.EvFF, uint16(h.effectID), 1); err != nil {
			return pad.FeedbackFailed(fmt.Errorf("failed to start rumble effect: %w", err))
		}
		h.playing = true
	}
	return pad.FeedbackDelivered()
}

func (h *handle) stopEffect() error {
	if h.effectID < 0 || !h.playing {
		return nil
	}
	if err := h.writeEvent(linux.EvFF, uint16(h.effectID), 0); err != nil {
		return fmt.Errorf("failed to stop rumble effect: %w", err)
	}
	h.playing = false
	return nil
}

func (h *handle) writeEvent(typ, code uint16, value int32) error {
	ev := linux.InputEvent{Type: typ, Code: code, Value: value}
	buf := make([]byte, linux.InputEventSize)
	ev.Encode(buf)
	_, err := unix.Write(h.fd, buf)
	return err
}

func (h *handle) FeedbackCaps() pad.FeedbackCaps {
	if !h.ffRumble || !h.ffWritable {
		return pad.FeedbackCaps{}
	}
	return pad.FeedbackCaps{Supported: true, Motors: 2}
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if err := h.stopEffect(); err != nil {
		h.log.Debug("failed to stop rumble on release", zap.Error(err))
	}
	if h.effectID >= 0 {
		id := int32(h.effectID)
		if err := linux.IoctlInt(h.fd, linux.EVIOCRMFF, int(id)); err != nil {
			h.log.Debug("failed to remove rumble effect", zap.Error(err))
		}
	}
	if err := linux.IoctlInt(h.fd, linux.EVIOCGRAB, 0); err != nil {
		h.log.Debug("failed to release event grab", zap.Error(err))
	}
	if err := unix.Close(h.fd); err != nil {
		return fmt.Errorf("failed to close event node: %w", err)
	}
	return nil
}
