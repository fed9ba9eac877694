package loadedelf

import (
	"fmt"
	"os"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/elf"
	"github.com/pattyshack/stacktrace/procfs"
)

// File is one elf image mapped into the process.
type File struct {
	Path string

	// nil when the image could not be parsed (e.g., unsupported format).  The
	// module is still tracked so that addresses inside it can be attributed
	// to its path.
	Elf *elf.File

	LoadBias uint64

	// Executable regions of the image.
	Ranges AddressRanges
}

func (file *File) ToFileAddress(address VirtualAddress) elf.FileAddress {
	return elf.FileAddress(uint64(address) - file.LoadBias)
}

func (file *File) ToVirtualAddress(address elf.FileAddress) VirtualAddress {
	return VirtualAddress(uint64(address) + file.LoadBias)
}

// NearestSymbol returns the closest symbol starting at or before address
// within this image, or nil.
func (file *File) NearestSymbol(address VirtualAddress) *elf.Symbol {
	if file.Elf == nil {
		return nil
	}

	return file.Elf.NearestSymbol(file.ToFileAddress(address))
}

func (file *File) SymbolsByName(name string) []*elf.Symbol {
	if file.Elf == nil {
		return nil
	}
	return file.Elf.SymbolsByName(name)
}

func (file *File) SymbolToVirtualAddress(symbol *elf.Symbol) VirtualAddress {
	return file.ToVirtualAddress(elf.FileAddress(symbol.Value))
}

func computeLoadBias(
	image *elf.File,
	region procfs.MappedMemoryRegion,
) (
	uint64,
	error,
) {
	segment, ok := image.LoadSegmentAt(
		region.Offset,
		uint64(os.Getpagesize()),
		elf.ProgramFlagExecutableBit)
	if !ok {
		return 0, fmt.Errorf(
			"no loadable segment covers file offset %#x of %s",
			region.Offset,
			region.Pathname)
	}

	// The segment is mapped linearly: file offset o lives at
	// vaddr + (o - offset) before relocation.
	unbiased := segment.VirtualAddress - segment.ContentOffset + region.Offset
	return region.LowAddress - unbiased, nil
}
