package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pattyshack/stacktrace/elf"
	"github.com/pattyshack/stacktrace/loadedelf"
	"github.com/pattyshack/stacktrace/symbol"
)

func main() {
	self := false
	flag.BoolVar(&self, "self", false, "print this process's loaded images")
	flag.Parse()

	if self {
		if len(flag.Args()) != 0 {
			fmt.Println("USAGE: print-symbols -self")
			os.Exit(1)
		}
		printLoadedImages()
		return
	}

	if len(flag.Args()) != 1 {
		fmt.Println("USAGE: print-symbols <file>")
		os.Exit(1)
	}

	file, err := elf.Open(flag.Args()[0])
	if err != nil {
		panic(err)
	}
	defer file.Close()

	printFile(file)
}

func printFile(file *elf.File) {
	fmt.Printf(
		"Header: %s %s %s entry=%#x\n",
		file.Class,
		file.DataEncoding,
		file.MachineArchitecture,
		file.EntryPointAddress)

	fmt.Println("Program headers:", len(file.ProgramHeaders))
	for headerIdx, header := range file.ProgramHeaders {
		fmt.Printf("  [%d] %+v\n", headerIdx, header)
	}

	fmt.Println("Sections:", len(file.Sections))
	for sectionIdx, section := range file.Sections {
		fmt.Printf(
			"  [%d] %s: type=%d addr=%#x size=%d\n",
			sectionIdx,
			section.Name,
			section.SectionType,
			section.Address,
			section.Size)
	}

	for _, table := range file.SymbolTables {
		fmt.Printf("Symbol table %s: %d\n", table.Name, len(table.Symbols))
		for symbolIdx, sym := range table.Symbols {
			name := sym.Name
			demangled, ok := symbol.Demangle(sym.Name)
			if ok {
				name = fmt.Sprintf("%s (%s)", demangled, sym.Name)
			}

			fmt.Printf(
				"    %d: %x %d %d %d %s\n",
				symbolIdx,
				sym.Value,
				sym.Size,
				sym.Type(),
				sym.SectionIndex,
				name)
		}
	}
}

func printLoadedImages() {
	files, err := loadedelf.LoadSelf()
	if err != nil {
		panic(err)
	}
	defer files.Close()

	fmt.Println("Loaded images:", len(files.Files))
	for _, file := range files.Files {
		numSymbols := 0
		if file.Elf != nil {
			for _, table := range file.Elf.SymbolTables {
				numSymbols += len(table.Symbols)
			}
		}

		fmt.Printf(
			"  %s load bias=%#x symbols=%d\n",
			file.Path,
			file.LoadBias,
			numSymbols)
		for _, ar := range file.Ranges {
			fmt.Printf("    %s - %s\n", ar.Low, ar.High)
		}
	}

	for path, err := range files.Skipped {
		fmt.Printf("  skipped %s: %s\n", path, err)
	}
}
