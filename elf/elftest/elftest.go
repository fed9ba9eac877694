// Package elftest builds small little endian x86-64 elf64 executables for
// tests that need a symbol table independent of how the test binary itself
// was linked.
package elftest

import (
	"encoding/binary"
	"fmt"

	"github.com/pattyshack/stacktrace/elf"
)

const (
	DefaultTextOffset = 0x1000

	textSectionIndex     = 1
	symbolStringIndex    = 3
	sectionNameIndex     = 4
	symbolBindingGlobal  = 1
	sectionFlagsAllocExe = 0x2 | 0x4 // SHF_ALLOC | SHF_EXECINSTR
	segmentAlignment     = 0x1000
)

type Symbol struct {
	Name    string
	Address uint64
	Size    uint64
	Type    elf.SymbolType
}

// Image describes an executable with a single read+execute PT_LOAD segment
// (backed by a zero filled .text section) and a .symtab whose symbols all
// live in .text.
type Image struct {
	TextAddress uint64

	// Defaults to DefaultTextOffset.
	TextOffset uint64

	TextSize uint64

	Symbols []Symbol
}

type stringTable struct {
	content []byte
}

func newStringTable() *stringTable {
	return &stringTable{content: []byte{0}}
}

func (table *stringTable) add(value string) uint32 {
	index := uint32(len(table.content))
	table.content = append(table.content, value...)
	table.content = append(table.content, 0)
	return index
}

func appendStruct(buf []byte, data any) []byte {
	buf, err := binary.Append(buf, binary.LittleEndian, data)
	if err != nil {
		panic(fmt.Sprintf("failed to encode %T: %s", data, err))
	}
	return buf
}

func padTo(buf []byte, offset uint64) []byte {
	for uint64(len(buf)) < offset {
		buf = append(buf, 0)
	}
	return buf
}

func alignTo(buf []byte, alignment uint64) []byte {
	size := uint64(len(buf))
	return padTo(buf, (size+alignment-1)/alignment*alignment)
}

// Build encodes the image.  The layout is
//
//	elf header, program header, .text, .symtab, .strtab, .shstrtab,
//	section headers
func Build(image Image) []byte {
	textOffset := image.TextOffset
	if textOffset == 0 {
		textOffset = DefaultTextOffset
	}

	headersSize := uint64(elf.Elf64HeaderSize + elf.Elf64ProgramHeaderEntrySize)
	if textOffset < headersSize {
		panic(fmt.Sprintf("text offset %#x overlaps elf headers", textOffset))
	}

	symbolNames := newStringTable()
	entries := []elf.SymbolEntry{{}}
	for _, symbol := range image.Symbols {
		entries = append(
			entries,
			elf.SymbolEntry{
				NameIndex:    symbolNames.add(symbol.Name),
				Info:         symbolBindingGlobal<<4 | byte(symbol.Type),
				SectionIndex: textSectionIndex,
				Value:        symbol.Address,
				Size:         symbol.Size,
			})
	}

	sectionNames := newStringTable()
	textName := sectionNames.add(".text")
	symbolTableName := sectionNames.add(elf.SymbolTableName)
	symbolStringName := sectionNames.add(".strtab")
	sectionNamesName := sectionNames.add(elf.SectionStringTableName)

	// headers are written last, once all offsets are known.
	buf := make([]byte, headersSize)
	buf = padTo(buf, textOffset+image.TextSize)

	buf = alignTo(buf, 8)
	symbolTableOffset := uint64(len(buf))
	for _, entry := range entries {
		buf = appendStruct(buf, entry)
	}
	symbolTableSize := uint64(len(buf)) - symbolTableOffset

	symbolStringOffset := uint64(len(buf))
	buf = append(buf, symbolNames.content...)

	sectionNamesOffset := uint64(len(buf))
	buf = append(buf, sectionNames.content...)

	buf = alignTo(buf, 8)
	sectionHeaderOffset := uint64(len(buf))

	sections := []elf.SectionHeaderEntry{
		{},
		{
			NameIndex:        textName,
			SectionType:      elf.SectionTypeProgramBits,
			Flags:            sectionFlagsAllocExe,
			Address:          image.TextAddress,
			Offset:           textOffset,
			Size:             image.TextSize,
			AddressAlignment: 16,
		},
		{
			NameIndex:        symbolTableName,
			SectionType:      elf.SectionTypeSymbolTable,
			Offset:           symbolTableOffset,
			Size:             symbolTableSize,
			Link:             symbolStringIndex,
			Info:             1, // index of the first non-local symbol
			AddressAlignment: 8,
			EntrySize:        elf.Elf64SymbolEntrySize,
		},
		{
			NameIndex:        symbolStringName,
			SectionType:      elf.SectionTypeStringTable,
			Offset:           symbolStringOffset,
			Size:             uint64(len(symbolNames.content)),
			AddressAlignment: 1,
		},
		{
			NameIndex:        sectionNamesName,
			SectionType:      elf.SectionTypeStringTable,
			Offset:           sectionNamesOffset,
			Size:             uint64(len(sectionNames.content)),
			AddressAlignment: 1,
		},
	}
	for _, section := range sections {
		buf = appendStruct(buf, section)
	}

	header := elf.ElfHeader{
		Identifier: elf.Identifier{
			Class:              elf.Class64,
			DataEncoding:       elf.DataEncodingTwosComplementLittleEndian,
			IdentifierVersion:  elf.IdentifierVersion,
			OperatingSystemABI: elf.OperatingSystemABIUnixSystemV,
		},
		FileType:                elf.FileTypeExecutable,
		MachineArchitecture:     elf.MachineArchitectureX86_64,
		FormatVersion:           elf.FormatVersion,
		EntryPointAddress:       image.TextAddress,
		ProgramHeaderOffset:     elf.Elf64HeaderSize,
		SectionHeaderOffset:     sectionHeaderOffset,
		ElfHeaderSize:           elf.Elf64HeaderSize,
		ProgramHeaderEntrySize:  elf.Elf64ProgramHeaderEntrySize,
		NumProgramHeaderEntries: 1,
		SectionHeaderEntrySize:  elf.Elf64SectionHeaderEntrySize,
		NumSectionHeaderEntries: uint16(len(sections)),
		SectionStringTableIndex: sectionNameIndex,
	}
	copy(header.Magic[:], elf.IdentifierMagic)

	program := elf.ProgramHeaderEntry{
		ProgramType:     elf.ProgramLoadable,
		ProgramFlags:    elf.ProgramFlagReadableBit | elf.ProgramFlagExecutableBit,
		ContentOffset:   textOffset,
		VirtualAddress:  image.TextAddress,
		PhysicalAddress: image.TextAddress,
		FileImageSize:   image.TextSize,
		MemoryImageSize: image.TextSize,
		Alignment:       segmentAlignment,
	}

	headers := appendStruct(nil, header)
	headers = appendStruct(headers, program)
	copy(buf, headers)

	return buf
}
