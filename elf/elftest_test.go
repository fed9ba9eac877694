package elf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/stacktrace/elf"
	"github.com/pattyshack/stacktrace/elf/elftest"
)

var builtImage = elftest.Image{
	TextAddress: 0x401000,
	TextSize:    0x200,
	Symbols: []elftest.Symbol{
		{
			Name:    "main.alpha",
			Address: 0x401000,
			Size:    0x40,
			Type:    elf.SymbolTypeFunction,
		},
		{
			Name:    "_ZN3foo3barEv",
			Address: 0x401040,
			Size:    0x20,
			Type:    elf.SymbolTypeFunction,
		},
		{
			Name:    "main.label",
			Address: 0x401100,
			Type:    elf.SymbolTypeNone,
		},
		{
			Name:    "main.data",
			Address: 0x401180,
			Size:    8,
			Type:    elf.SymbolTypeObject,
		},
	},
}

type BuiltImageSuite struct{}

func TestBuiltImage(t *testing.T) {
	suite.RunTests(t, &BuiltImageSuite{})
}

func expectBuiltImage(t *testing.T, file *elf.File) {
	expect.Equal(t, elf.Class64, file.Class)
	expect.Equal(t, elf.MachineArchitectureX86_64, file.MachineArchitecture)
	expect.Equal(t, elf.FileTypeExecutable, file.FileType)

	expect.Equal(t, 1, len(file.ProgramHeaders))
	expect.Equal(t, 5, len(file.Sections))

	text, ok := file.GetSection(".text")
	expect.True(t, ok)
	expect.Equal(t, uint64(0x401000), text.Address)
	expect.Equal(t, uint64(elftest.DefaultTextOffset), text.Offset)

	_, ok = file.GetSection(elf.SymbolTableName)
	expect.True(t, ok)

	_, ok = file.GetSection(elf.DynamicSymbolTableName)
	expect.False(t, ok)

	expect.Equal(t, 1, len(file.SymbolTables))
	expect.Equal(t, elf.SymbolTableName, file.SymbolTables[0].Name)
	expect.Equal(t, 5, len(file.SymbolTables[0].Symbols))

	expect.Nil(t, file.NearestSymbol(0x400fff))
	expect.Equal(t, "main.alpha", file.NearestSymbol(0x401000).Name)
	expect.Equal(t, "main.alpha", file.NearestSymbol(0x40103f).Name)
	expect.Equal(t, "_ZN3foo3barEv", file.NearestSymbol(0x401047).Name)

	// gap between the end of foo::bar and the label
	expect.Nil(t, file.NearestSymbol(0x401060))

	expect.Equal(t, "main.label", file.NearestSymbol(0x401100).Name)
	expect.Equal(t, "main.label", file.NearestSymbol(0x401184).Name)

	symbols := file.SymbolsByName("_ZN3foo3barEv")
	expect.Equal(t, 1, len(symbols))
	expect.Equal(t, elf.SymbolTypeFunction, symbols[0].Type())
	expect.Equal(t, uint64(0x20), symbols[0].Size)

	symbols = file.SymbolsByName("main.data")
	expect.Equal(t, 1, len(symbols))
	expect.Equal(t, elf.SymbolTypeObject, symbols[0].Type())

	segment, ok := file.LoadSegmentAt(
		elftest.DefaultTextOffset,
		4096,
		elf.ProgramFlagExecutableBit)
	expect.True(t, ok)
	expect.Equal(t, uint64(0x401000), segment.VirtualAddress)

	_, ok = file.LoadSegmentAt(
		elftest.DefaultTextOffset,
		4096,
		elf.ProgramFlagWritableBit)
	expect.False(t, ok)
}

func (BuiltImageSuite) TestParseBytes(t *testing.T) {
	file, err := elf.ParseBytes(elftest.Build(builtImage))
	expect.Nil(t, err)

	expectBuiltImage(t, file)

	// nothing to unmap
	expect.Nil(t, file.Close())
}

func (BuiltImageSuite) TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	err := os.WriteFile(path, elftest.Build(builtImage), 0o644)
	expect.Nil(t, err)

	file, err := elf.Open(path)
	expect.Nil(t, err)

	expectBuiltImage(t, file)

	expect.Nil(t, file.Close())
	expect.Nil(t, file.Close())
}

func (BuiltImageSuite) TestTruncatedImage(t *testing.T) {
	content := elftest.Build(builtImage)

	// section headers are the last thing in the image
	_, err := elf.ParseBytes(content[:len(content)-1])
	expect.Error(t, err, "failed to read section header entries")
}
