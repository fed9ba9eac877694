package symbol

import (
	"fmt"
	"sort"
	"sync"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/loadedelf"
)

type Kind string

const (
	// Go's embedded pc tables, falling back to elf symbol tables.
	KindPCInfo = Kind("pcinfo")

	// backtrace_symbols style "module(symbol+offset) [address]" strings.
	KindBatch = Kind("batch")

	// Per address queries with a fixed size name buffer.
	KindQuery = Kind("query")

	// Resolves nothing.
	KindNone = Kind("none")
)

// Backend maps raw return addresses to names.
type Backend interface {
	Kind() Kind

	// ResolveBatch returns exactly one entry per address.  Misses are empty
	// (or placeholder) entries, not errors.  An error (wrapping ErrNoSymbols)
	// means the backend could not produce a batch at all.  The caller owns
	// the returned names and must release them.
	ResolveBatch(pcs []uintptr) (*Names, error)
}

// Resolver answers a single address.
type Resolver interface {
	Resolve(pc uintptr) (NameInfo, bool)
}

type perAddressBackend struct {
	kind     Kind
	resolver Resolver
}

// PerAddress adapts a Resolver into a Backend which queries addresses one at
// a time.  Unresolved addresses produce empty entries.
func PerAddress(kind Kind, resolver Resolver) Backend {
	return perAddressBackend{
		kind:     kind,
		resolver: resolver,
	}
}

func (backend perAddressBackend) Kind() Kind {
	return backend.kind
}

func (backend perAddressBackend) ResolveBatch(pcs []uintptr) (*Names, error) {
	names := newNames(len(pcs))
	for _, pc := range pcs {
		info, ok := backend.resolver.Resolve(pc)
		if !ok {
			info = NameInfo{}
		}
		names.add(info)
	}
	return names, nil
}

// ImageSource supplies the loaded image snapshot used by elf based lookups.
type ImageSource func() (*loadedelf.Files, error)

// ProcessImages is the process-wide symbol table handle.  It is built on
// first use (concurrent first use is safe) and intentionally never torn
// down: the images stay mapped so that diagnostics keep working during
// shutdown.
var ProcessImages = memoizeImages(loadedelf.LoadSelf)

// memoizeImages calls load at most once; every caller, including concurrent
// first callers, observes the same result.
func memoizeImages(load ImageSource) ImageSource {
	return sync.OnceValues(load)
}

// Stack entries are return addresses.  The instruction before the return
// address belongs to the call site, which is what symbolication should
// describe (the return address may already be in the next function when
// the call is the last instruction).
func lookupPC(pc uintptr) uintptr {
	if pc == 0 {
		return 0
	}
	return pc - 1
}

func noSymbols(kind Kind, err error) error {
	return fmt.Errorf("%w: %s backend: %w", ErrNoSymbols, kind, err)
}

var (
	constructors = map[Kind]func() Backend{
		KindPCInfo: func() Backend { return NewPCInfoBackend() },
		KindBatch:  func() Backend { return NewBatchBackend() },
		KindQuery:  func() Backend { return NewQueryBackend() },
		KindNone:   func() Backend { return NoneBackend{} },
	}

	defaultBackend = sync.OnceValue(func() Backend {
		return constructors[defaultKind]()
	})
)

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []Kind {
	result := make([]Kind, 0, len(constructors))
	for kind := range constructors {
		result = append(result, kind)
	}
	sort.Slice(result, func(i int, j int) bool {
		return result[i] < result[j]
	})
	return result
}

// DefaultKind is the backend compiled in for this platform.
func DefaultKind() Kind {
	return defaultKind
}

// Default returns the platform's backend.  The instance is shared.
func Default() Backend {
	return defaultBackend()
}

// ByKind returns a backend of the given kind.  The empty kind selects the
// platform default.
func ByKind(kind Kind) (Backend, error) {
	if kind == "" {
		return Default(), nil
	}

	constructor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol backend (%s)", ErrInvalidArgument, kind)
	}

	return constructor(), nil
}

type NoneBackend struct{}

func (NoneBackend) Kind() Kind {
	return KindNone
}

func (NoneBackend) ResolveBatch(pcs []uintptr) (*Names, error) {
	names := newNames(len(pcs))
	for range pcs {
		names.add(NameInfo{})
	}
	return names, nil
}
