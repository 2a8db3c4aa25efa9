package method

import (
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/pad"
)

// Engine gates method activation. It owns the processor set and runs
// the compatibility check plus the method's own rules with a freshly
// built Env per attempt. Validation never changes any assignment: the
// only output is the result.
type Engine struct {
	log        *zap.Logger
	processors map[pad.InputMethod]Processor
	envFn      func() Env
}

func NewEngine(log *zap.Logger, processors map[pad.InputMethod]Processor, envFn func() Env) *Engine {
	return &Engine{
		log:        log,
		processors: processors,
		envFn:      envFn,
	}
}

// Processor resolves a registered processor by method tag.
func (e *Engine) Processor(m pad.InputMethod) (Processor, bool) {
	p, ok := e.processors[m]
	return p, ok
}

// Processors lists the registered processors in method order.
func (e *Engine) Processors() []Processor {
	out := make([]Processor, 0, len(e.processors))
	for _, m := range pad.Methods() {
		if p, ok := e.processors[m]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks whether the device may activate on the method right
// now.
func (e *Engine) Validate(id pad.Identity, desc pad.Descriptors, m pad.InputMethod) pad.ValidationResult {
	p, ok := e.processors[m]
	if !ok {
		return pad.Invalid(pad.ReasonNotCapable, "method "+m.String()+" is not available")
	}
	if !p.CanProcess(id, desc) {
		return pad.Invalid(pad.ReasonNotCapable, id.String()+" cannot be processed via "+m.String())
	}
	result := p.Validate(id, desc, e.envFn())
	if !result.OK {
		e.log.Debug("validation failed",
			zap.String("device", id.String()),
			zap.String("method", m.String()),
			zap.String("reason", string(result.Reason)),
			zap.String("detail", result.Detail))
	}
	return result
}

// AvailableMethods lists the methods whose processors consider the
// device processable at all, before rule validation.
func (e *Engine) AvailableMethods(id pad.Identity, desc pad.Descriptors) []pad.InputMethod {
	var out []pad.InputMethod
	for _, p := range e.Processors() {
		if p.CanProcess(id, desc) {
			out = append(out, p.Method())
		}
	}
	return out
}
