package elf

import (
	"bytes"
	"sort"
)

type StringTable struct {
	Content []byte
}

func (table StringTable) Get(index uint32) string {
	if index >= uint32(len(table.Content)) {
		return ""
	}

	chunk := table.Content[index:]
	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return ""
	}

	return string(chunk[:end])
}

type Symbol struct {
	SymbolEntry

	Name string
}

func (symbol *Symbol) Type() SymbolType {
	return SymbolInfoToType(symbol.Info)
}

// AddressRange returns [start, end) for symbols that occupy code or data.
// Zero-sized symbols have start == end.
func (symbol *Symbol) AddressRange() (FileAddress, FileAddress, bool) {
	if symbol.Value == 0 ||
		symbol.Name == "" ||
		symbol.SectionIndex == SectionIndexUndefined ||
		symbol.Type() == SymbolTypeTLSObject ||
		symbol.Type() == SymbolTypeSection {

		return 0, 0, false
	}

	start := FileAddress(symbol.Value)
	end := FileAddress(symbol.Value + symbol.Size)
	return start, end, true
}

func (symbol *Symbol) isCode() bool {
	switch symbol.Type() {
	case SymbolTypeFunction, SymbolTypeIFunc, SymbolTypeNone:
		return true
	}
	return false
}

type SymbolTable struct {
	Name    string
	Symbols []*Symbol

	// code symbols with a valid address range, sorted by start address.
	byAddress []*Symbol
}

func newSymbolTable(
	name string,
	entries []SymbolEntry,
	names StringTable,
) *SymbolTable {
	table := &SymbolTable{
		Name:    name,
		Symbols: make([]*Symbol, 0, len(entries)),
	}

	for _, entry := range entries {
		symbol := &Symbol{
			SymbolEntry: entry,
			Name:        names.Get(entry.NameIndex),
		}
		table.Symbols = append(table.Symbols, symbol)

		_, _, ok := symbol.AddressRange()
		if ok && symbol.isCode() {
			table.byAddress = append(table.byAddress, symbol)
		}
	}

	// Sized symbols sort ahead of aliases at the same address so that lookups
	// prefer the entry that carries range information.
	sort.SliceStable(table.byAddress, func(i int, j int) bool {
		a := table.byAddress[i]
		b := table.byAddress[j]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		return a.Size > b.Size
	})

	return table
}

func (table *SymbolTable) SymbolsByName(name string) []*Symbol {
	result := []*Symbol{}
	for _, symbol := range table.Symbols {
		if symbol.Name == name {
			result = append(result, symbol)
		}
	}
	return result
}

func (table *SymbolTable) SymbolAt(address FileAddress) *Symbol {
	idx := sort.Search(len(table.byAddress), func(i int) bool {
		return FileAddress(table.byAddress[i].Value) >= address
	})

	if idx < len(table.byAddress) &&
		FileAddress(table.byAddress[idx].Value) == address {
		return table.byAddress[idx]
	}

	return nil
}

// NearestSymbol returns the code symbol with the greatest start address
// <= address.  A sized symbol that ends at or before address does not match;
// zero-sized symbols (e.g., hand written assembly labels) match any address
// up to the next symbol.
func (table *SymbolTable) NearestSymbol(address FileAddress) *Symbol {
	idx := sort.Search(len(table.byAddress), func(i int) bool {
		return FileAddress(table.byAddress[i].Value) > address
	})
	if idx == 0 {
		return nil
	}

	start := idx - 1
	for start > 0 &&
		table.byAddress[start-1].Value == table.byAddress[idx-1].Value {
		start--
	}

	symbol := table.byAddress[start]
	if symbol.Size == 0 {
		return symbol
	}

	_, end, _ := symbol.AddressRange()
	if address < end {
		return symbol
	}

	return nil
}
