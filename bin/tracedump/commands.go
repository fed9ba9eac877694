package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pattyshack/stacktrace"
	"github.com/pattyshack/stacktrace/callsite"
	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/config"
	"github.com/pattyshack/stacktrace/symbol"
)

type session struct {
	config   config.Config
	renderer *stacktrace.Renderer
	out      io.Writer

	trace *stacktrace.StackTrace
}

type command struct {
	name        string
	usage       string
	description string
	run         func(*session, []string) error
}

var (
	commands []command // initialized by init()
)

func init() {
	commands = []command{
		{
			name:        "capture",
			usage:       "capture [max frames] [frames to skip]",
			description: "capture the current stack",
			run:         capture,
		},
		{
			name:        "dump",
			usage:       "dump",
			description: "render the captured stack",
			run:         dump,
		},
		{
			name:        "backend",
			usage:       "backend [name]",
			description: "show or select the symbol backend",
			run:         selectBackend,
		},
		{
			name:        "demangle",
			usage:       "demangle <name>",
			description: "demangle a c++ or rust symbol name",
			run:         demangle,
		},
		{
			name:        "symbolize",
			usage:       "symbolize <address>",
			description: "resolve a single return address",
			run:         symbolize,
		},
		{
			name:        "callsite",
			usage:       "callsite <frame>",
			description: "disassemble the call instruction of a captured frame",
			run:         decodeCallSite,
		},
		{
			name:        "help",
			usage:       "help",
			description: "list commands",
			run:         help,
		},
	}
}

func isQuit(name string) bool {
	return name == "quit" || name == "exit"
}

// runCommand reports panics (e.g., skipping past the end of the stack) as
// command errors so that the session survives them.
func runCommand(sess *session, cmd command, args []string) (err error) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			err = fmt.Errorf("%s panicked: %v", cmd.name, recovered)
		}
	}()

	return cmd.run(sess, args)
}

// Commands may be abbreviated to any unambiguous prefix.
func lookupCommand(name string) (command, error) {
	matches := []command{}
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, nil
		}
		if strings.HasPrefix(cmd.name, name) {
			matches = append(matches, cmd)
		}
	}

	switch len(matches) {
	case 0:
		return command{}, fmt.Errorf("invalid command: %s", name)
	case 1:
		return matches[0], nil
	default:
		names := []string{}
		for _, cmd := range matches {
			names = append(names, cmd.name)
		}
		return command{}, fmt.Errorf(
			"ambiguous command: %s (%s)",
			name,
			strings.Join(names, ", "))
	}
}

func parseCount(
	args []string,
	idx int,
	defaultValue int,
	minValue int,
	maxValue int,
) (
	int,
	error,
) {
	if len(args) <= idx {
		return defaultValue, nil
	}

	value, err := strconv.ParseUint(args[idx], 10, 32)
	if err != nil {
		return 0, fmt.Errorf(
			"%w: invalid count (%s)",
			ErrInvalidArgument,
			args[idx])
	}

	if value < uint64(minValue) || value > uint64(maxValue) {
		return 0, fmt.Errorf(
			"%w: count (%s) must be in [%d, %d]",
			ErrInvalidArgument,
			args[idx],
			minValue,
			maxValue)
	}

	return int(value), nil
}

func capture(sess *session, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("%w: too many arguments", ErrInvalidArgument)
	}

	maxFrames, err := parseCount(
		args,
		0,
		sess.config.MaxFrames,
		1,
		config.MaxFrames)
	if err != nil {
		return err
	}

	framesToSkip, err := parseCount(
		args,
		1,
		sess.config.FramesToSkip,
		0,
		config.MaxFramesToSkip)
	if err != nil {
		return err
	}

	trace := stacktrace.CaptureStackTrace(maxFrames, framesToSkip)
	trace.SetPrefix(sess.config.Prefix)
	sess.trace = trace

	fmt.Fprintf(
		sess.out,
		"captured %d frames (capacity %d)\n",
		trace.Size(),
		trace.Capacity())
	return nil
}

func (sess *session) capturedTrace() (*stacktrace.StackTrace, error) {
	if sess.trace == nil {
		return nil, fmt.Errorf("no stack captured")
	}
	return sess.trace, nil
}

func dump(sess *session, args []string) error {
	trace, err := sess.capturedTrace()
	if err != nil {
		return err
	}

	return sess.renderer.Render(trace, sess.out, sess.config.Indent)
}

func selectBackend(sess *session, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(sess.out, "current backend:", sess.renderer.Backend.Kind())
		for _, kind := range symbol.Kinds() {
			fmt.Fprintln(sess.out, "  ", kind)
		}
		return nil
	}

	backend, err := symbol.ByKind(symbol.Kind(args[0]))
	if err != nil {
		return err
	}

	sess.renderer.Backend = backend
	fmt.Fprintln(sess.out, "selected backend:", backend.Kind())
	return nil
}

func demangle(sess *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected a symbol name", ErrInvalidArgument)
	}

	demangled, ok := symbol.Demangle(args[0])
	if !ok {
		fmt.Fprintln(sess.out, "not a mangled name:", args[0])
		return nil
	}

	fmt.Fprintln(sess.out, demangled)
	return nil
}

func symbolize(sess *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected an address", ErrInvalidArgument)
	}

	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf(
			"%w: invalid address (%s)",
			ErrInvalidArgument,
			args[0])
	}

	names, err := sess.renderer.Backend.ResolveBatch([]uintptr{uintptr(addr)})
	if err != nil {
		return err
	}
	defer names.Release()

	info := names.At(0)
	if !info.Found() {
		fmt.Fprintln(sess.out, "no symbol for", VirtualAddress(addr))
	} else {
		fmt.Fprintln(sess.out, info.Name)
		if info.Raw != "" && info.Raw != info.Name {
			fmt.Fprintln(sess.out, "  raw:", info.Raw)
		}
		if info.File != "" {
			fmt.Fprintf(sess.out, "  %s:%d\n", info.File, info.Line)
		}
	}

	if sess.renderer.Companion != nil {
		entry, ok := sess.renderer.Companion.Demangle(uintptr(addr))
		if ok {
			fmt.Fprintln(sess.out, "  nearest symbol:", entry.Display())
		}
	}

	return nil
}

func decodeCallSite(sess *session, args []string) error {
	trace, err := sess.capturedTrace()
	if err != nil {
		return err
	}

	if len(args) != 1 {
		return fmt.Errorf("%w: expected a frame number", ErrInvalidArgument)
	}

	frame, err := strconv.Atoi(args[0])
	if err != nil || frame < 1 || frame > trace.Size() {
		return fmt.Errorf(
			"%w: frame number must be in [1, %d]",
			ErrInvalidArgument,
			trace.Size())
	}

	inst, err := callsite.Decode(trace.Stack()[frame-1])
	if err != nil {
		return err
	}

	fmt.Fprintln(sess.out, inst)
	return nil
}

func help(sess *session, args []string) error {
	for _, cmd := range commands {
		fmt.Fprintf(sess.out, "  %-36s %s\n", cmd.usage, cmd.description)
	}
	fmt.Fprintf(sess.out, "  %-36s %s\n", "quit", "exit tracedump")
	return nil
}
