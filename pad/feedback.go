package pad

// Feedback carries target vibration intensities in [0,1]. Low and high
// frequency motors are the baseline pair; trigger motors apply only to
// methods that expose them and are ignored elsewhere.
type Feedback struct {
	LowFrequency  float64 `json:"lowFrequency"`
	HighFrequency float64 `json:"highFrequency"`
	LeftTrigger   float64 `json:"leftTrigger"`
	RightTrigger  float64 `json:"rightTrigger"`
}

func (f Feedback) IsZero() bool {
	return f == Feedback{}
}

// Clamp bounds every intensity into [0,1].
func (f Feedback) Clamp() Feedback {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return Feedback{
		LowFrequency:  clamp(f.LowFrequency),
		HighFrequency: clamp(f.HighFrequency),
		LeftTrigger:   clamp(f.LeftTrigger),
		RightTrigger:  clamp(f.RightTrigger),
	}
}

// FeedbackCaps describes what a handle can actually vibrate.
type FeedbackCaps struct {
	Supported     bool `json:"supported"`
	Motors        int  `json:"motors"`
	TriggerMotors bool `json:"triggerMotors"`
}

type FeedbackReason string

const (
	FeedbackReasonNone        FeedbackReason = ""
	FeedbackReasonUnsupported FeedbackReason = "not supported"
	FeedbackReasonWriteFailed FeedbackReason = "write failed"
)

// FeedbackResult reports a single dispatch attempt. A method without
// rumble support answers OK=false, Reason "not supported"; that outcome
// surfaces to the caller unchanged and is never retried on another
// method.
type FeedbackResult struct {
	OK     bool           `json:"ok"`
	Reason FeedbackReason `json:"reason,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

func FeedbackDelivered() FeedbackResult {
	return FeedbackResult{OK: true}
}

func FeedbackUnsupported(detail string) FeedbackResult {
	return FeedbackResult{OK: false, Reason: FeedbackReasonUnsupported, Detail: detail}
}

func FeedbackFailed(err error) FeedbackResult {
	return FeedbackResult{OK: false, Reason: FeedbackReasonWriteFailed, Detail: err.Error()}
}
