package loadedelf

import (
	"errors"
	"fmt"
	"sort"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/elf"
	"github.com/pattyshack/stacktrace/procfs"
)

type OpenFunc func(path string) (*elf.File, error)

// Files is a snapshot of the elf images mapped into a process.
type Files struct {
	Files []*File

	// Images that could not be opened / parsed, keyed by path.
	Skipped map[string]error

	// Executable ranges sorted by low address, for pc -> file lookup.
	ranges []fileRange
}

type fileRange struct {
	AddressRange
	file *File
}

// LoadSelf snapshots the calling process's executable mappings.
func LoadSelf() (*Files, error) {
	regions, err := procfs.GetMappedMemoryRegions(procfs.Self)
	if err != nil {
		return nil, err
	}

	return Load(regions, elf.Open)
}

// Load builds the image set from the given mappings.  Only executable,
// file-backed regions are considered.  Each distinct path is opened once.
func Load(
	regions []procfs.MappedMemoryRegion,
	open OpenFunc,
) (
	*Files,
	error,
) {
	files := &Files{
		Skipped: map[string]error{},
	}

	byPath := map[string]*File{}
	for _, region := range regions {
		if !region.Execute || !region.IsFileBacked() {
			continue
		}

		file, ok := byPath[region.Pathname]
		if !ok {
			file = &File{
				Path: region.Pathname,
			}
			byPath[region.Pathname] = file
			files.Files = append(files.Files, file)

			image, err := open(region.Pathname)
			if err != nil {
				files.Skipped[region.Pathname] = err
			} else {
				bias, err := computeLoadBias(image, region)
				if err != nil {
					files.Skipped[region.Pathname] = err
					_ = image.Close()
				} else {
					file.Elf = image
					file.LoadBias = bias
				}
			}
		}

		ar := AddressRange{
			Low:  VirtualAddress(region.LowAddress),
			High: VirtualAddress(region.HighAddress),
		}
		file.Ranges = append(file.Ranges, ar)
		files.ranges = append(
			files.ranges,
			fileRange{
				AddressRange: ar,
				file:         file,
			})
	}

	if len(files.Files) == 0 {
		return nil, fmt.Errorf("no executable file-backed mappings found")
	}

	sort.Slice(files.ranges, func(i int, j int) bool {
		return files.ranges[i].Low < files.ranges[j].Low
	})

	return files, nil
}

// FileContaining returns the image whose executable mapping covers address.
func (files *Files) FileContaining(address VirtualAddress) *File {
	idx := sort.Search(len(files.ranges), func(i int) bool {
		return files.ranges[i].Low > address
	})
	if idx == 0 {
		return nil
	}

	entry := files.ranges[idx-1]
	if entry.Contains(address) {
		return entry.file
	}

	return nil
}

// SymbolContaining is the dladdr equivalent: it locates the image that maps
// address and that image's nearest symbol at or before address.  The symbol
// is nil when the image has no matching symbol; both are nil when no image
// maps address.
func (files *Files) SymbolContaining(
	address VirtualAddress,
) (
	*File,
	*elf.Symbol,
) {
	file := files.FileContaining(address)
	if file == nil {
		return nil, nil
	}

	return file, file.NearestSymbol(address)
}

func (files *Files) SymbolsByName(name string) []*elf.Symbol {
	result := []*elf.Symbol{}
	for _, file := range files.Files {
		result = append(result, file.SymbolsByName(name)...)
	}
	return result
}

// Close unmaps every image.  Process-wide snapshots are never closed.
func (files *Files) Close() error {
	var errs []error
	for _, file := range files.Files {
		if file.Elf == nil {
			continue
		}

		err := file.Elf.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
