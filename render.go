package stacktrace

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/pattyshack/stacktrace/symbol"
)

// Renderer formats traces one line per frame:
//
//	<prefix><indent><frame number> <address> <name>
//
// The name field is omitted when nothing resolved.
type Renderer struct {
	// nil selects symbol.Default().
	Backend symbol.Backend

	// Consulted for every frame after the backend.  Its demangled name
	// replaces the backend's text.  nil disables the lookup.
	Companion symbol.Companion

	// When set, the companion's raw name also replaces the backend's text.
	CompanionOverridesRaw bool

	// nil selects slog.Default().
	Logger *slog.Logger
}

// DefaultRenderer uses the platform's default backend together with the
// dynamic loader companion.
func DefaultRenderer() *Renderer {
	return &Renderer{
		Backend:   symbol.Default(),
		Companion: symbol.NewLoaderCompanion(),
	}
}

func (renderer *Renderer) backend() symbol.Backend {
	if renderer.Backend == nil {
		return symbol.Default()
	}
	return renderer.Backend
}

func (renderer *Renderer) logger() *slog.Logger {
	if renderer.Logger == nil {
		return slog.Default()
	}
	return renderer.Logger
}

// Render writes the trace to out in a single Write call.  When the backend
// cannot produce names for the trace at all, nothing is written and nil is
// returned; a partial trace is never emitted.  Only sink errors are
// returned.
func (renderer *Renderer) Render(
	trace *StackTrace,
	out io.Writer,
	indent string,
) error {
	if trace.size == 0 {
		return nil
	}

	pcs := trace.frames[:trace.size]

	backend := renderer.backend()
	names, err := backend.ResolveBatch(pcs)
	if err != nil {
		renderer.logger().Debug(
			"stack trace not rendered",
			"backend", backend.Kind(),
			"frames", len(pcs),
			"error", err)
		return nil
	}
	defer names.Release()

	if names.Len() != len(pcs) {
		panic(fmt.Sprintf(
			"%s backend resolved %d names for %d frames",
			backend.Kind(),
			names.Len(),
			len(pcs)))
	}

	buf := make([]byte, 0, 128*len(pcs))
	for i, pc := range pcs {
		buf = append(buf, trace.prefix...)
		buf = append(buf, indent...)
		buf = appendFrameNumber(buf, i+1)
		buf = append(buf, " 0x"...)
		buf = strconv.AppendUint(buf, uint64(pc), 16)

		name := renderer.frameName(pc, names.At(i))
		if name != "" {
			buf = append(buf, ' ')
			buf = append(buf, name...)
		}

		buf = append(buf, '\n')
	}

	_, err = out.Write(buf)
	if err != nil {
		return fmt.Errorf("failed to write stack trace: %w", err)
	}

	return nil
}

// Left justified, at least 3 columns wide.
func appendFrameNumber(buf []byte, frameNumber int) []byte {
	start := len(buf)
	buf = strconv.AppendInt(buf, int64(frameNumber), 10)
	for len(buf)-start < 3 {
		buf = append(buf, ' ')
	}
	return buf
}

func (renderer *Renderer) frameName(pc uintptr, info symbol.NameInfo) string {
	name := info.Name
	if renderer.Companion == nil {
		return name
	}

	entry, ok := renderer.Companion.Demangle(pc)
	if !ok {
		return name
	}

	if entry.DemangledName != "" {
		return entry.DemangledName
	}

	if name == "" || renderer.CompanionOverridesRaw {
		return entry.MangledName
	}

	return name
}
