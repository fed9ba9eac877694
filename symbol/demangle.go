package symbol

import (
	"github.com/ianlancetaylor/demangle"
)

// Demangle converts an itanium c++ or rust mangled symbol name into its
// human readable form.  Names that are not mangled (including go symbol
// names) yield false; the caller should fall back to the raw name.
func Demangle(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	result, err := demangle.ToString(raw)
	if err != nil || result == "" {
		return "", false
	}

	return result, true
}

// DemangleEntry pairs a raw symbol name with its demangled form.  Either
// field may be empty.
type DemangleEntry struct {
	MangledName   string
	DemangledName string
}

// Display prefers the demangled form.
func (entry DemangleEntry) Display() string {
	if entry.DemangledName != "" {
		return entry.DemangledName
	}
	return entry.MangledName
}

func newNameInfo(raw string) NameInfo {
	info := NameInfo{
		Name: raw,
		Raw:  raw,
	}

	demangled, ok := Demangle(raw)
	if ok {
		info.Name = demangled
	}

	return info
}
