package rawhid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sstallion/go-hid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pad/profile"
)

// reportParser turns one input report body into controller state. The
// state starts zeroed on every call.
type reportParser interface {
	// Size reports the expected body length for a report ID, 0 when
	// the ID is not an input report.
	Size(reportID uint8) int
	Parse(reportID uint8, body []byte, st *pad.State) error
	UsesReportIDs() bool
}

type rumbleFn func(fb pad.Feedback) (reportID uint8, body []byte)

func profileRumble(prof *profile.Profile) rumbleFn {
	if prof.Rumble == nil {
		return nil
	}
	return prof.Rumble
}

// profileParser adapts a device profile's fixed-layout parser.
type profileParser struct {
	prof *profile.Profile
}

func newProfileParser(prof *profile.Profile) *profileParser {
	return &profileParser{prof: prof}
}

func (p *profileParser) UsesReportIDs() bool {
	return p.prof.InputID != 0
}

func (p *profileParser) Size(reportID uint8) int {
	if reportID != p.prof.InputID {
		return 0
	}
	return p.prof.InputSize
}

func (p *profileParser) Parse(reportID uint8, body []byte, st *pad.State) error {
	return p.prof.Parse(body, st)
}

const readSlice = 250 * time.Millisecond

type handle struct {
	log    *zap.Logger
	dev    *hid.Device
	id     pad.Identity
	parser reportParser
	rumble rumbleFn
	caps   pad.FeedbackCaps

	// parseErr is sticky: the descriptor never became usable, every
	// read surfaces it.
	parseErr error

	reattach func()
	released *atomic.Bool

	reports chan []byte
	stop    chan struct{}
	readErr *atomic.Error

	last pad.State
}

func newHandle(log *zap.Logger, dev *hid.Device, id pad.Identity, parser reportParser, rumble rumbleFn, caps pad.FeedbackCaps, parseErr error, reattach func()) *handle {
	h := &handle{
		log:      log,
		dev:      dev,
		id:       id,
		parser:   parser,
		rumble:   rumble,
		caps:     caps,
		parseErr: parseErr,
		reattach: reattach,
		released: atomic.NewBool(false),
		reports:  make(chan []byte, 64),
		stop:     make(chan struct{}),
		readErr:  atomic.NewError(nil),
	}
	if parseErr == nil {
		go h.readLoop()
	}
	return h
}

// readLoop pulls reports off the device into the buffer channel,
// dropping the oldest report when the poller falls behind.
func (h *handle) readLoop() {
	buf := make([]byte, 256)
	for {
		select {
		case <-h.stop:
			return
		default:
		}
		n, err := h.dev.ReadWithTimeout(buf, readSlice)
		if err != nil {
			if h.released.Load() {
				return
			}
			h.readErr.Store(fmt.Errorf("failed to read report: %w", err))
			return
		}
		if n == 0 {
			continue
		}
		report := make([]byte, n)
		copy(report, buf[:n])
		select {
		case h.reports <- report:
		default:
			select {
			case <-h.reports:
			default:
			}
			h.reports <- report
		}
	}
}

// ReadState drains buffered reports and returns the newest decoded
// state. With no new report the previous decode is returned unchanged.
func (h *handle) ReadState(ctx context.Context) (pad.State, error) {
	if h.released.Load() {
		return pad.State{}, pad.ErrHandleReleased
	}
	if h.parseErr != nil {
		return pad.State{}, &pad.ReadError{Identity: h.id, Err: h.parseErr}
	}
	if err := h.readErr.Load(); err != nil {
		return pad.State{}, &pad.ReadError{Identity: h.id, Err: err}
	}
	for {
		select {
		case report := <-h.reports:
			if err := h.decode(report); err != nil {
				h.log.Debug("skipping report", zap.Error(err))
			}
		case <-ctx.Done():
			return pad.State{}, &pad.ReadError{Identity: h.id, Err: ctx.Err()}
		default:
			return h.last, nil
		}
	}
}

func (h *handle) decode(report []byte) error {
	if len(report) == 0 {
		return errors.New("empty report")
	}
	reportID := uint8(0)
	body := report
	if h.parser.UsesReportIDs() {
		reportID = report[0]
		body = report[1:]
	}
	size := h.parser.Size(reportID)
	if size == 0 {
		return fmt.Errorf("report %#02x is not an input report", reportID)
	}
	if len(body) < size {
		return fmt.Errorf("report %#02x truncated: %d < %d bytes", reportID, len(body), size)
	}
	st := pad.State{}
	if err := h.parser.Parse(reportID, body[:size], &st); err != nil {
		return err
	}
	h.last = st
	return nil
}

func (h *handle) SendFeedback(fb pad.Feedback) pad.FeedbackResult {
	if h.released.Load() {
		return pad.FeedbackFailed(pad.ErrHandleReleased)
	}
	if h.rumble == nil {
		return pad.FeedbackUnsupported("no rumble mapping for this device")
	}
	reportID, body := h.rumble(fb.Clamp())
	report := append([]byte{reportID}, body...)
	if _, err := h.dev.Write(report); err != nil {
		return pad.FeedbackFailed(fmt.Errorf("failed to write rumble report: %w", err))
	}
	return pad.FeedbackDelivered()
}

func (h *handle) FeedbackCaps() pad.FeedbackCaps {
	return h.caps
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	close(h.stop)
	err := h.dev.Close()
	h.reattach()
	if err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}
	return nil
}

func writeUevent(syspath, action string) error {
	return os.WriteFile(filepath.Join(syspath, "uevent"), []byte(action), 0644)
}
