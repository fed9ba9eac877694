package symbol

import (
	"runtime"
	"unicode/utf8"
)

// Large enough for any symbol name the query will report (MAX_SYM_NAME).
// Longer names are truncated.
const MaxSymbolNameLength = 2000

// QueryFunc writes the name of the symbol containing pc into buf and returns
// the name's full length, which may exceed len(buf).
type QueryFunc func(pc uintptr, buf []byte) (int, bool)

// QueryBackend issues one query per address against the current process,
// using a fixed size name buffer for each query.
type QueryBackend struct {
	Query QueryFunc
}

func NewQueryBackend() *QueryBackend {
	return &QueryBackend{
		Query: queryFuncForPC,
	}
}

func queryFuncForPC(pc uintptr, buf []byte) (int, bool) {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return 0, false
	}

	name := fn.Name()
	if name == "" {
		return 0, false
	}

	copy(buf, name)
	return len(name), true
}

func (*QueryBackend) Kind() Kind {
	return KindQuery
}

func (backend *QueryBackend) ResolveBatch(pcs []uintptr) (*Names, error) {
	return PerAddress(KindQuery, backend).ResolveBatch(pcs)
}

func (backend *QueryBackend) Resolve(pc uintptr) (NameInfo, bool) {
	buf := acquireScratch()
	defer releaseScratch(buf)

	n, ok := backend.Query(lookupPC(pc), buf[:])
	if !ok || n <= 0 {
		return NameInfo{}, false
	}

	name := buf[:]
	if n < len(name) {
		name = name[:n]
	} else if n > len(name) {
		name = truncateName(name)
	}

	return newNameInfo(string(name)), true
}

// Drops the trailing utf-8 sequence when truncation split it.
func truncateName(name []byte) []byte {
	for i := len(name) - 1; i >= 0 && i >= len(name)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(name[i]) {
			continue
		}

		if !utf8.FullRune(name[i:]) {
			return name[:i]
		}
		break
	}
	return name
}
