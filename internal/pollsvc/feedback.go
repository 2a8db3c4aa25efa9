package pollsvc

import (
	"context"
	"fmt"

	"github.com/padbridge/padbridge/pad"
)

type feedbackRequest struct {
	fb    pad.Feedback
	reply chan feedbackReply
}

type feedbackReply struct {
	result pad.FeedbackResult
	err    error
}

// SendFeedback routes vibration targets to the device's active handle.
// The request runs on the poller goroutine so the handle stays
// single-caller. A "not supported" outcome is a result, not an error,
// and is never retried on another method.
func (s *Service) SendFeedback(ctx context.Context, id pad.Identity, fb pad.Feedback) (pad.FeedbackResult, error) {
	p, ok := s.pollers.Load(id)
	if !ok {
		if _, err := s.devices.Get(id); err != nil {
			return pad.FeedbackResult{}, err
		}
		return pad.FeedbackResult{}, fmt.Errorf("%w: %s is not being polled", pad.ErrDeviceOffline, id)
	}
	req := feedbackRequest{fb: fb.Clamp(), reply: make(chan feedbackReply, 1)}
	select {
	case p.feedback <- req:
	case <-p.done:
		return pad.FeedbackResult{}, fmt.Errorf("%w: %s stopped polling", pad.ErrDeviceOffline, id)
	case <-ctx.Done():
		return pad.FeedbackResult{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep.result, rep.err
	case <-p.done:
		return pad.FeedbackResult{}, fmt.Errorf("%w: %s stopped polling", pad.ErrDeviceOffline, id)
	case <-ctx.Done():
		return pad.FeedbackResult{}, ctx.Err()
	}
}

func (p *poller) handleFeedback(req feedbackRequest) {
	if p.handle == nil {
		req.reply <- feedbackReply{err: fmt.Errorf("%w: %s has no acquired handle", pad.ErrDeviceOffline, p.id)}
		return
	}
	req.reply <- feedbackReply{result: p.handle.SendFeedback(req.fb)}
}
