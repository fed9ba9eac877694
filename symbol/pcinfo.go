package symbol

import (
	"log/slog"
	"runtime"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/loadedelf"
)

// PCInfoBackend resolves addresses using the debug information embedded in
// the binary: go's pc tables give function, file and line; addresses
// outside go code (e.g., cgo) fall back to the nearest elf symbol.  Every
// address yields a name, UnknownSymbol when nothing matched.
type PCInfoBackend struct {
	Images ImageSource

	// nil selects slog.Default().
	Logger *slog.Logger
}

func NewPCInfoBackend() *PCInfoBackend {
	return &PCInfoBackend{
		Images: ProcessImages,
	}
}

func (*PCInfoBackend) Kind() Kind {
	return KindPCInfo
}

func (backend *PCInfoBackend) ResolveBatch(pcs []uintptr) (*Names, error) {
	images, err := backend.Images()
	if err != nil {
		return nil, noSymbols(KindPCInfo, err)
	}

	names := newNames(len(pcs))
	for _, pc := range pcs {
		info, ok := resolvePCInfo(images, pc)
		if !ok {
			info = NameInfo{Name: UnknownSymbol}
		}
		names.add(info)
	}

	return names, nil
}

func (backend *PCInfoBackend) logger() *slog.Logger {
	if backend.Logger == nil {
		return slog.Default()
	}
	return backend.Logger
}

// Image failures only disable the elf symbol fallback.
func (backend *PCInfoBackend) Resolve(pc uintptr) (NameInfo, bool) {
	images, err := backend.Images()
	if err != nil {
		backend.logger().Debug(
			"elf symbol fallback unavailable",
			"backend", KindPCInfo,
			"error", err)
		images = nil
	}
	return resolvePCInfo(images, pc)
}

func resolvePCInfo(images *loadedelf.Files, pc uintptr) (NameInfo, bool) {
	lookup := lookupPC(pc)

	fn := runtime.FuncForPC(lookup)
	if fn != nil && fn.Name() != "" {
		info := newNameInfo(fn.Name())
		info.File, info.Line = fn.FileLine(lookup)
		return info, true
	}

	if images == nil {
		return NameInfo{}, false
	}

	_, symbol := images.SymbolContaining(VirtualAddress(lookup))
	if symbol == nil || symbol.Name == "" {
		return NameInfo{}, false
	}

	return newNameInfo(symbol.Name), true
}
