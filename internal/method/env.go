package method

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/padbridge/padbridge/pad"
)

// Env carries the live facts validation rules check against. It is
// rebuilt for every validation attempt so rules never see stale state.
type Env struct {
	// ActiveCount reports how many devices currently hold a handle on
	// the given method.
	ActiveCount func(pad.InputMethod) int

	// Kernel is the running kernel release.
	Kernel KernelVersion

	// InputAccess reports whether the process can reach the event
	// node directory at all (the udev/group bridging a desktop
	// session needs).
	InputAccess bool
}

// NewEnv builds an Env from the running system. countFn may be nil
// when no devices can be active yet.
func NewEnv(countFn func(pad.InputMethod) int) Env {
	if countFn == nil {
		countFn = func(pad.InputMethod) int { return 0 }
	}
	kernel, err := CurrentKernel()
	if err != nil {
		kernel = KernelVersion{}
	}
	return Env{
		ActiveCount: countFn,
		Kernel:      kernel,
		InputAccess: unix.Access("/dev/input", unix.R_OK|unix.X_OK) == nil,
	}
}

// KernelVersion is the major.minor of the running kernel.
type KernelVersion struct {
	Major int
	Minor int
}

func (v KernelVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

func (v KernelVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func CurrentKernel() (KernelVersion, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return KernelVersion{}, fmt.Errorf("failed to read kernel release: %w", err)
	}
	release := unix.ByteSliceToString(uts.Release[:])
	return ParseKernelVersion(release)
}

func ParseKernelVersion(release string) (KernelVersion, error) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return KernelVersion{}, fmt.Errorf("invalid kernel release %q", release)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return KernelVersion{}, fmt.Errorf("invalid kernel release %q: %w", release, err)
	}
	// The minor may carry a suffix like "10-arch1"; take leading digits.
	minorDigits := parts[1]
	for i, r := range minorDigits {
		if r < '0' || r > '9' {
			minorDigits = minorDigits[:i]
			break
		}
	}
	minor, err := strconv.Atoi(minorDigits)
	if err != nil {
		return KernelVersion{}, fmt.Errorf("invalid kernel release %q: %w", release, err)
	}
	return KernelVersion{Major: major, Minor: minor}, nil
}
