package symbol

import (
	"strconv"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/loadedelf"
)

// BatchBackend symbolizes a whole stack in one call, producing
// backtrace_symbols style strings:
//
//	/path/to/module(symbol+0x1d) [0x4011ad]
//	/path/to/module(+0x11ad) [0x4011ad]    (no symbol)
//	[0x4011ad]                             (no module)
//
// Symbol names are reported as found in the symbol table (i.e., still
// mangled).
type BatchBackend struct {
	Images ImageSource
}

func NewBatchBackend() *BatchBackend {
	return &BatchBackend{
		Images: ProcessImages,
	}
}

func (*BatchBackend) Kind() Kind {
	return KindBatch
}

func (backend *BatchBackend) ResolveBatch(pcs []uintptr) (*Names, error) {
	images, err := backend.Images()
	if err != nil {
		return nil, noSymbols(KindBatch, err)
	}

	names := newNames(len(pcs))
	buf := make([]byte, 0, 128)
	for _, pc := range pcs {
		var raw string
		buf, raw = formatBatchEntry(buf[:0], images, pc)
		names.add(NameInfo{
			Name: string(buf),
			Raw:  raw,
		})
	}

	return names, nil
}

func formatBatchEntry(
	buf []byte,
	images *loadedelf.Files,
	pc uintptr,
) (
	[]byte,
	string,
) {
	address := VirtualAddress(pc)
	file, symbol := images.SymbolContaining(VirtualAddress(lookupPC(pc)))

	raw := ""
	if file != nil {
		buf = append(buf, file.Path...)
		buf = append(buf, '(')

		var base VirtualAddress
		if symbol != nil {
			raw = symbol.Name
			buf = append(buf, symbol.Name...)
			base = file.SymbolToVirtualAddress(symbol)
		} else {
			base = VirtualAddress(file.LoadBias)
		}

		buf = append(buf, "+0x"...)
		buf = strconv.AppendUint(buf, uint64(address-base), 16)
		buf = append(buf, ") "...)
	}

	buf = append(buf, "[0x"...)
	buf = strconv.AppendUint(buf, uint64(address), 16)
	buf = append(buf, ']')

	return buf, raw
}
