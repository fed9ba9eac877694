package symbol

import (
	. "github.com/pattyshack/stacktrace/common"
)

// Companion is the dynamic loader style lookup consulted for every frame in
// addition to the backend.  It reports the raw name of the nearest symbol
// and, when the name is mangled, its demangled form.
type Companion interface {
	Demangle(pc uintptr) (DemangleEntry, bool)
}

// LoaderCompanion looks up the nearest symbol at or before pc within the
// loaded image that maps pc.
type LoaderCompanion struct {
	Images ImageSource
}

func NewLoaderCompanion() *LoaderCompanion {
	return &LoaderCompanion{
		Images: ProcessImages,
	}
}

func (companion *LoaderCompanion) Demangle(pc uintptr) (DemangleEntry, bool) {
	images, err := companion.Images()
	if err != nil {
		return DemangleEntry{}, false
	}

	_, symbol := images.SymbolContaining(VirtualAddress(lookupPC(pc)))
	if symbol == nil || symbol.Name == "" {
		return DemangleEntry{}, false
	}

	entry := DemangleEntry{
		MangledName: symbol.Name,
	}

	demangled, ok := Demangle(symbol.Name)
	if ok {
		entry.DemangledName = demangled
	}

	return entry, true
}
