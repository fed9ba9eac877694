package stacktrace

import (
	"fmt"
	"io"
	"strings"
)

// StackTrace is a bounded snapshot of raw return addresses.  Capturing is
// cheap; symbolication happens only when the trace is rendered.
type StackTrace struct {
	// Capacity limited view into the capture buffer; only the first size
	// entries are meaningful.
	frames []uintptr
	size   int

	prefix string
}

// CaptureStackTrace records up to maxFrames return addresses of the calling
// goroutine, innermost first, after dropping framesToSkip frames above the
// caller.  With framesToSkip == 0 the first frame is the caller of
// CaptureStackTrace.
//
// maxFrames is clamped to at least one.  A trace with no frames means the
// platform cannot unwind; it is valid but renders nothing.
//
//go:noinline
func CaptureStackTrace(maxFrames int, framesToSkip int) *StackTrace {
	if maxFrames < 1 {
		maxFrames = 1
	}
	if framesToSkip < 0 {
		framesToSkip = 0
	}

	skip := framesToSkip + internalFrames

	// Single allocation.  The leading slots receive the skipped frames.
	storage := make([]uintptr, skip+maxFrames)
	n := getBacktrace(storage)

	trace := &StackTrace{
		frames: storage[skip : skip+maxFrames : skip+maxFrames],
	}

	if n == 0 {
		return trace
	}

	if n < skip {
		panic(fmt.Sprintf(
			"unwinder returned %d frames, fewer than the %d skipped frames",
			n,
			skip))
	}

	trace.size = min(n-skip, maxFrames)
	return trace
}

func (trace *StackTrace) Size() int {
	return trace.size
}

func (trace *StackTrace) Capacity() int {
	return len(trace.frames)
}

// Stack returns a copy of the captured return addresses.
func (trace *StackTrace) Stack() []uintptr {
	result := make([]uintptr, trace.size)
	copy(result, trace.frames[:trace.size])
	return result
}

func (trace *StackTrace) Prefix() string {
	return trace.prefix
}

// SetPrefix sets the label prepended to every rendered line.
func (trace *StackTrace) SetPrefix(prefix string) {
	trace.prefix = prefix
}

// Dump renders the trace to out using the platform's default backend.
func (trace *StackTrace) Dump(out io.Writer, indent string) error {
	return DefaultRenderer().Render(trace, out, indent)
}

func (trace *StackTrace) String() string {
	builder := &strings.Builder{}
	err := trace.Dump(builder, "")
	if err != nil {
		panic("should never happen")
	}
	return builder.String()
}
