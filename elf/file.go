package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// Resources:
// https://refspecs.linuxfoundation.org/

type FileAddress uint64

var (
	supportedArchitecture = map[MachineArchitecture]struct{}{
		MachineArchitectureX86_64:  struct{}{},
		MachineArchitectureAArch64: struct{}{},
	}
)

type Section struct {
	SectionHeaderEntry

	Name string
}

// File is a parsed elf64 image.  The image content is either a caller owned
// byte slice or a read-only private mapping of the file on disk (a heap copy
// on platforms without mmap); in the latter case the content stays valid
// until Close.
type File struct {
	ElfHeader

	Path string

	ProgramHeaders []ProgramHeaderEntry
	Sections       []Section

	// .symtab first (when present), then .dynsym.
	SymbolTables []*SymbolTable

	content []byte
	mapped  bool
}

// Open maps the elf file at path and parses its headers and symbol tables.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open elf file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat elf file %s: %w", path, err)
	}

	size := info.Size()
	if size < Elf64HeaderSize {
		return nil, fmt.Errorf("elf file %s too small (%d bytes)", path, size)
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("elf file %s too large (%d bytes)", path, size)
	}

	content, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("failed to map elf file %s: %w", path, err)
	}

	file, err := ParseBytes(content)
	if err != nil {
		_ = unmapFile(content)
		return nil, fmt.Errorf("failed to parse elf file %s: %w", path, err)
	}

	file.Path = path
	file.mapped = true
	return file, nil
}

// ParseBytes parses an in-memory elf image.  The returned file references
// content; the caller must not modify it afterward.
func ParseBytes(content []byte) (*File, error) {
	p := parser{
		content: content,
	}

	err := p.parse()
	if err != nil {
		return nil, err
	}

	p.File.content = content
	return &p.File, nil
}

// Close releases the file mapping.  Symbols obtained from the file remain
// valid since their names are copied out of the image during parsing.
func (file *File) Close() error {
	if !file.mapped {
		return nil
	}

	file.mapped = false
	content := file.content
	file.content = nil

	err := unmapFile(content)
	if err != nil {
		return fmt.Errorf("failed to unmap elf file %s: %w", file.Path, err)
	}
	return nil
}

func (file *File) GetSection(name string) (Section, bool) {
	for _, section := range file.Sections {
		if section.Name == name {
			return section, true
		}
	}

	return Section{}, false
}

// LoadSegmentAt returns the loadable segment with (at least) the given
// permission flags whose file content covers the given file offset.  Segment
// offsets are compared after aligning down to the mapping granularity, since
// the loader maps whole pages.
func (file *File) LoadSegmentAt(
	fileOffset uint64,
	pageSize uint64,
	flags ProgramFlags,
) (
	ProgramHeaderEntry,
	bool,
) {
	if pageSize == 0 {
		pageSize = 1
	}

	for _, header := range file.ProgramHeaders {
		if header.ProgramType != ProgramLoadable ||
			header.ProgramFlags&flags != flags {
			continue
		}

		start := header.ContentOffset &^ (pageSize - 1)
		end := header.ContentOffset + header.FileImageSize
		if start <= fileOffset && fileOffset < end {
			return header, true
		}
	}

	return ProgramHeaderEntry{}, false
}

// NearestSymbol searches each symbol table in order.  See
// SymbolTable.NearestSymbol.
func (file *File) NearestSymbol(address FileAddress) *Symbol {
	for _, table := range file.SymbolTables {
		symbol := table.NearestSymbol(address)
		if symbol != nil {
			return symbol
		}
	}

	return nil
}

func (file *File) SymbolsByName(name string) []*Symbol {
	result := []*Symbol{}
	for _, table := range file.SymbolTables {
		result = append(result, table.SymbolsByName(name)...)
	}
	return result
}

type parser struct {
	content []byte

	binary.ByteOrder

	File
}

func (p *parser) parse() error {
	// NOTE: identifier (e_ident) has no endian-ness.  We must parse identifier
	// to determine the elf file's endian-ness (including the elf header).
	err := p.parseIdentifier()
	if err != nil {
		return err
	}

	err = p.parseHeader()
	if err != nil {
		return err
	}

	err = p.parseProgramHeaders()
	if err != nil {
		return err
	}

	return p.parseSections()
}

func (p *parser) parseIdentifier() error {
	id := &Identifier{}

	n, err := binary.Decode(p.content, binary.NativeEndian, id)
	if err != nil {
		return fmt.Errorf("failed to parse identifier: %w", err)
	}

	if n != ElfIdentifierSize {
		panic("should never happen")
	}

	if !bytes.Equal(id.Magic[:], IdentifierMagic) {
		return fmt.Errorf("invalid elf magic number")
	}

	if id.Class != Class64 {
		return fmt.Errorf("unsupported elf class: %s", id.Class)
	}

	switch id.DataEncoding {
	case DataEncodingTwosComplementLittleEndian:
		p.ByteOrder = binary.LittleEndian
	case DataEncodingTwosComplementBigEndian:
		p.ByteOrder = binary.BigEndian
	default:
		return fmt.Errorf("unsupported data encoding: %s", id.DataEncoding)
	}

	if id.IdentifierVersion != IdentifierVersion {
		return fmt.Errorf(
			"unsupported identifier version: %d",
			id.IdentifierVersion)
	}

	// NOTE: gnu toolchains stamp some shared objects with ELFOSABI_LINUX even
	// though the layout is plain system v.
	if id.OperatingSystemABI != OperatingSystemABIUnixSystemV &&
		id.OperatingSystemABI != OperatingSystemABILinux {
		return fmt.Errorf("unsupported os/abi: %d", id.OperatingSystemABI)
	}

	return nil
}

func (p *parser) parseHeader() error {
	n, err := binary.Decode(p.content, p.ByteOrder, &p.ElfHeader)
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	if n != Elf64HeaderSize {
		panic("should never happen")
	}

	_, ok := supportedArchitecture[p.MachineArchitecture]
	if !ok {
		return fmt.Errorf(
			"unsupported machine architecture: %s",
			p.MachineArchitecture)
	}

	if p.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version: %d", p.FormatVersion)
	}

	if p.ElfHeaderSize != Elf64HeaderSize {
		return fmt.Errorf("unexpected elf64 header size: %d", p.ElfHeaderSize)
	}

	if p.NumProgramHeaderEntries > 0 &&
		p.ProgramHeaderEntrySize != Elf64ProgramHeaderEntrySize {
		return fmt.Errorf(
			"unexpected elf64 program header entry size: %d",
			p.ProgramHeaderEntrySize)
	}

	if p.NumSectionHeaderEntries > 0 &&
		p.SectionHeaderEntrySize != Elf64SectionHeaderEntrySize {
		return fmt.Errorf(
			"unexpected elf64 section header entry size: %d",
			p.SectionHeaderEntrySize)
	}

	// For simplicity, we'll disallow extended section header.  Elf64_Sym's
	// st_shndx doesn't support extended section indexing.
	if p.SectionHeaderOffset > 0 && p.NumSectionHeaderEntries == 0 {
		return fmt.Errorf("extended section header not supported")
	}

	return nil
}

func (p *parser) parseProgramHeaders() error {
	if p.NumProgramHeaderEntries == 0 {
		return nil
	}

	if p.ProgramHeaderOffset >= uint64(len(p.content)) {
		return fmt.Errorf(
			"out of bound program header offset (%d)",
			p.ProgramHeaderOffset)
	}

	headers := make([]ProgramHeaderEntry, p.NumProgramHeaderEntries)
	n, err := binary.Decode(
		p.content[p.ProgramHeaderOffset:],
		p.ByteOrder,
		headers)
	if err != nil {
		return fmt.Errorf("failed to read program header entries: %w", err)
	}
	if n != int(p.NumProgramHeaderEntries)*Elf64ProgramHeaderEntrySize {
		panic("should never happen")
	}

	p.ProgramHeaders = headers
	return nil
}

func (p *parser) sectionContent(header SectionHeaderEntry) ([]byte, error) {
	if header.SectionType == SectionTypeNoSpace {
		return nil, nil
	}

	start := header.Offset
	end := start + header.Size
	if end < start || end > uint64(len(p.content)) {
		return nil, fmt.Errorf(
			"out of bound section (%d > %d)",
			end,
			len(p.content))
	}

	return p.content[start:end], nil
}

func (p *parser) parseSections() error {
	if p.NumSectionHeaderEntries == 0 {
		return nil
	}

	if p.SectionHeaderOffset >= uint64(len(p.content)) {
		return fmt.Errorf(
			"out of bound section header offset (%d)",
			p.SectionHeaderOffset)
	}

	headers := make([]SectionHeaderEntry, p.NumSectionHeaderEntries)
	n, err := binary.Decode(
		p.content[p.SectionHeaderOffset:],
		p.ByteOrder,
		headers)
	if err != nil {
		return fmt.Errorf("failed to read section header entries: %w", err)
	}
	if n != int(p.NumSectionHeaderEntries)*Elf64SectionHeaderEntrySize {
		panic("should never happen")
	}

	var sectionNames StringTable
	if p.SectionStringTableIndex != SectionIndexUndefined {
		idx := int(p.SectionStringTableIndex)
		if idx >= len(headers) {
			return fmt.Errorf(
				"section name index out of bound (%d >= %d)",
				idx,
				len(headers))
		}

		if headers[idx].SectionType != SectionTypeStringTable {
			return fmt.Errorf(
				"section name index does not point to a string table")
		}

		content, err := p.sectionContent(headers[idx])
		if err != nil {
			return err
		}
		sectionNames = StringTable{Content: content}
	}

	p.Sections = make([]Section, 0, len(headers))
	for _, header := range headers {
		p.Sections = append(
			p.Sections,
			Section{
				SectionHeaderEntry: header,
				Name:               sectionNames.Get(header.NameIndex),
			})
	}

	// .symtab is a superset of .dynsym when both are present, so search it
	// first.
	for _, tableType := range []SectionType{
		SectionTypeSymbolTable,
		SectionTypeDynamicSymbolTable,
	} {
		for _, section := range p.Sections {
			if section.SectionType != tableType {
				continue
			}

			table, err := p.parseSymbolTable(section)
			if err != nil {
				return err
			}
			p.SymbolTables = append(p.SymbolTables, table)
		}
	}

	return nil
}

func (p *parser) parseSymbolTable(section Section) (*SymbolTable, error) {
	content, err := p.sectionContent(section.SectionHeaderEntry)
	if err != nil {
		return nil, err
	}

	if len(content)%Elf64SymbolEntrySize != 0 {
		return nil, fmt.Errorf(
			"invalid symbol table %s size (%d)",
			section.Name,
			len(content))
	}

	// sh_link names the associated string table.
	if section.Link == 0 || int(section.Link) >= len(p.Sections) {
		return nil, fmt.Errorf(
			"symbol table %s string table index out of bound (%d)",
			section.Name,
			section.Link)
	}

	namesSection := p.Sections[section.Link]
	if namesSection.SectionType != SectionTypeStringTable {
		return nil, fmt.Errorf(
			"symbol table %s link does not point to a string table",
			section.Name)
	}

	namesContent, err := p.sectionContent(namesSection.SectionHeaderEntry)
	if err != nil {
		return nil, err
	}
	names := StringTable{Content: namesContent}

	entries := make([]SymbolEntry, len(content)/Elf64SymbolEntrySize)
	n, err := binary.Decode(content, p.ByteOrder, entries)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to parse symbol table %s: %w",
			section.Name,
			err)
	}
	if n != len(content) {
		panic("should never happen")
	}

	return newSymbolTable(section.Name, entries, names), nil
}
