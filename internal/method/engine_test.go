package method_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/internal/method/methodtest"
	"github.com/padbridge/padbridge/pad"
)

func testEngine(t *testing.T, processors ...method.Processor) *method.Engine {
	t.Helper()
	byMethod := make(map[pad.InputMethod]method.Processor)
	for _, p := range processors {
		byMethod[p.Method()] = p
	}
	return method.NewEngine(zap.NewNop(), byMethod, func() method.Env {
		return method.Env{ActiveCount: func(pad.InputMethod) int { return 0 }}
	})
}

func TestValidateUnknownMethod(t *testing.T) {
	engine := testEngine(t)
	id := pad.Identity{VendorID: 1, ProductID: 2, Instance: "x"}

	result := engine.Validate(id, nil, pad.MethodEvdev)
	require.False(t, result.OK)
	assert.Equal(t, pad.ReasonNotCapable, result.Reason)
}

func TestValidateRunsCanProcessFirst(t *testing.T) {
	validateCalled := false
	proc := &methodtest.Processor{
		Tag: pad.MethodHidraw,
		CanProcessFn: func(pad.Identity, pad.Descriptors) bool {
			return false
		},
		ValidateFn: func(pad.Identity, pad.Descriptors, method.Env) pad.ValidationResult {
			validateCalled = true
			return pad.Valid()
		},
	}
	engine := testEngine(t, proc)
	id := pad.Identity{VendorID: 1, ProductID: 2, Instance: "x"}

	result := engine.Validate(id, nil, pad.MethodHidraw)
	require.False(t, result.OK)
	assert.Equal(t, pad.ReasonNotCapable, result.Reason)
	assert.False(t, validateCalled, "method rules must not run for incompatible devices")
}

func TestValidatePassesFreshEnv(t *testing.T) {
	count := 0
	byMethod := map[pad.InputMethod]method.Processor{
		pad.MethodXUSB: &methodtest.Processor{
			Tag: pad.MethodXUSB,
			ValidateFn: func(_ pad.Identity, _ pad.Descriptors, env method.Env) pad.ValidationResult {
				if env.ActiveCount(pad.MethodXUSB) >= 4 {
					return pad.Invalid(pad.ReasonDeviceCountLimit, "all slots taken")
				}
				return pad.Valid()
			},
		},
	}
	engine := method.NewEngine(zap.NewNop(), byMethod, func() method.Env {
		return method.Env{ActiveCount: func(pad.InputMethod) int { return count }}
	})
	id := pad.Identity{VendorID: 1, ProductID: 2, Instance: "x"}

	assert.True(t, engine.Validate(id, nil, pad.MethodXUSB).OK)

	count = 4
	result := engine.Validate(id, nil, pad.MethodXUSB)
	require.False(t, result.OK)
	assert.Equal(t, pad.ReasonDeviceCountLimit, result.Reason)
}

func TestAvailableMethods(t *testing.T) {
	hid := &methodtest.Processor{Tag: pad.MethodHidraw}
	joy := &methodtest.Processor{
		Tag: pad.MethodJoydev,
		CanProcessFn: func(pad.Identity, pad.Descriptors) bool {
			return false
		},
	}
	engine := testEngine(t, hid, joy)
	id := pad.Identity{VendorID: 1, ProductID: 2, Instance: "x"}

	methods := engine.AvailableMethods(id, nil)
	assert.Equal(t, []pad.InputMethod{pad.MethodHidraw}, methods)
}

func TestParseKernelVersion(t *testing.T) {
	tests := []struct {
		release string
		want    method.KernelVersion
		wantErr bool
	}{
		{release: "6.8.0-41-generic", want: method.KernelVersion{Major: 6, Minor: 8}},
		{release: "4.19", want: method.KernelVersion{Major: 4, Minor: 19}},
		{release: "5.10-arch1", want: method.KernelVersion{Major: 5, Minor: 10}},
		{release: "banana", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.release, func(t *testing.T) {
			got, err := method.ParseKernelVersion(tt.release)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKernelVersionAtLeast(t *testing.T) {
	v := method.KernelVersion{Major: 5, Minor: 4}
	assert.True(t, v.AtLeast(4, 18))
	assert.True(t, v.AtLeast(5, 4))
	assert.False(t, v.AtLeast(5, 5))
	assert.False(t, v.AtLeast(6, 0))
}
