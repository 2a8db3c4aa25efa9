package pad

// Reason is a structured validation failure code. The string values are
// the user-visible messages; callers compare against the constants.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonDeviceCountLimit    Reason = "device-count limit exceeded"
	ReasonPlatformRequirement Reason = "platform requirement not met"
	ReasonNotHIDCompliant     Reason = "not HID-compliant"
	ReasonNotCapable          Reason = "device not capable of requested method"
)

// ValidationResult is the outcome of checking whether a device may use
// a method right now. Results are produced fresh on every activation
// attempt and never cached across configuration changes. Warnings are
// advisory: the method still activates, but the caller should surface
// them.
type ValidationResult struct {
	OK       bool     `json:"ok"`
	Reason   Reason   `json:"reason,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func Valid(warnings ...string) ValidationResult {
	return ValidationResult{OK: true, Warnings: warnings}
}

func Invalid(reason Reason, detail string) ValidationResult {
	return ValidationResult{OK: false, Reason: reason, Detail: detail}
}
