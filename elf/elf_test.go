package elf

import (
	"reflect"
	"runtime"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

//go:noinline
func symbolLookupTarget(x int) int {
	return x*31 + 7
}

type ElfSuite struct{}

func TestElf(t *testing.T) {
	suite.RunTests(t, &ElfSuite{})
}

func (ElfSuite) TestStringTable(t *testing.T) {
	table := StringTable{
		Content: []byte("\x00Milkshake\x00shake\x00no\x00"),
	}

	expect.Equal(t, "Milkshake", table.Get(1))
	expect.Equal(t, "shake", table.Get(5))
	expect.Equal(t, "", table.Get(10))
	expect.Equal(t, "shake", table.Get(11))
	expect.Equal(t, "no", table.Get(17))
	expect.Equal(t, "o", table.Get(18))
	expect.Equal(t, "", table.Get(19))
	expect.Equal(t, "", table.Get(20))
}

func (ElfSuite) TestNearestSymbol(t *testing.T) {
	names := StringTable{Content: []byte("\x00alpha\x00beta\x00label\x00data\x00")}
	function := byte(SymbolTypeFunction)
	table := newSymbolTable(
		".symtab",
		[]SymbolEntry{
			{}, // index 0 is always the undefined symbol
			{NameIndex: 1, Info: function, SectionIndex: 1, Value: 0x1000, Size: 0x10},
			{NameIndex: 7, Info: function, SectionIndex: 1, Value: 0x1020, Size: 0x20},
			{NameIndex: 12, Info: byte(SymbolTypeNone), SectionIndex: 1, Value: 0x1100},
			{NameIndex: 18, Info: byte(SymbolTypeObject), SectionIndex: 2, Value: 0x2000, Size: 8},
		},
		names)

	expect.Equal(t, 5, len(table.Symbols))

	expect.Nil(t, table.NearestSymbol(0xfff))
	expect.Equal(t, "alpha", table.NearestSymbol(0x1000).Name)
	expect.Equal(t, "alpha", table.NearestSymbol(0x100f).Name)

	// gap between alpha and beta
	expect.Nil(t, table.NearestSymbol(0x1010))

	expect.Equal(t, "beta", table.NearestSymbol(0x1020).Name)
	expect.Equal(t, "beta", table.NearestSymbol(0x103f).Name)
	expect.Nil(t, table.NearestSymbol(0x1040))

	// zero sized labels cover everything up to the next symbol
	expect.Equal(t, "label", table.NearestSymbol(0x1100).Name)
	expect.Equal(t, "label", table.NearestSymbol(0x5000).Name)

	expect.Equal(t, "beta", table.SymbolAt(0x1020).Name)
	expect.Nil(t, table.SymbolAt(0x1021))

	// data symbols are never matched by code lookups
	expect.Nil(t, table.SymbolAt(0x2000))
	expect.Equal(t, 1, len(table.SymbolsByName("data")))
}

func (ElfSuite) TestParseInvalid(t *testing.T) {
	content := make([]byte, Elf64HeaderSize)
	_, err := ParseBytes(content)
	expect.Error(t, err, "invalid elf magic number")

	copy(content, IdentifierMagic)
	content[4] = byte(Class32)
	_, err = ParseBytes(content)
	expect.Error(t, err, "unsupported elf class")
}

func (ElfSuite) TestOpenSelf(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc/self/exe")
	}

	file, err := Open("/proc/self/exe")
	expect.Nil(t, err)
	defer file.Close()

	_, ok := file.GetSection(SymbolTableName)
	if !ok {
		// elftest_test.go covers symbol lookups on a built image.
		t.Skip("test binary has no .symtab")
	}
	expect.True(t, len(file.SymbolTables) > 0)

	name := runtime.FuncForPC(
		reflect.ValueOf(symbolLookupTarget).Pointer()).Name()

	symbols := file.SymbolsByName(name)
	expect.True(t, len(symbols) > 0)

	symbol := symbols[0]
	expect.Equal(t, SymbolTypeFunction, symbol.Type())

	nearest := file.NearestSymbol(FileAddress(symbol.Value + 1))
	expect.NotNil(t, nearest)
	expect.Equal(t, name, nearest.Name)

	// text must be covered by an executable load segment
	covered := false
	for _, header := range file.ProgramHeaders {
		if header.ProgramType != ProgramLoadable ||
			header.ProgramFlags&ProgramFlagExecutableBit == 0 {
			continue
		}

		if header.VirtualAddress <= symbol.Value &&
			symbol.Value < header.VirtualAddress+header.MemoryImageSize {
			covered = true

			segment, ok := file.LoadSegmentAt(
				header.ContentOffset,
				4096,
				ProgramFlagExecutableBit)
			expect.True(t, ok)
			expect.Equal(t, header.VirtualAddress, segment.VirtualAddress)
		}
	}
	expect.True(t, covered)

	expect.Nil(t, file.Close())
	expect.Nil(t, file.Close())
}
