package stacktrace

import (
	"runtime"
)

// Frames contributed by the capture machinery itself: CaptureStackTrace and
// the unwinder shim.
const internalFrames = 2

// getBacktrace fills stack with return addresses of the current goroutine,
// innermost first, starting with the shim's own return address.  It returns
// the number of addresses written; zero means unwinding is unavailable.
//
// Swappable for testing unsupported and inconsistent unwinders.
var getBacktrace = callersBacktrace

//go:noinline
func callersBacktrace(stack []uintptr) int {
	return runtime.Callers(1, stack)
}
