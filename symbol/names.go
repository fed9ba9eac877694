package symbol

import (
	"sync"
	"sync/atomic"
)

// Placeholder used by backends that must produce a string for every address.
const UnknownSymbol = "???"

// NameInfo is the resolved information for a single address.
type NameInfo struct {
	// Display text.  Demangled when possible; empty when nothing resolved.
	Name string

	// The name as obtained from the symbol source, before demangling.
	Raw string

	// Source location, when the backend knows it.
	File string
	Line int
}

func (info NameInfo) Found() bool {
	return info.Name != ""
}

type span struct {
	start int
	end   int
}

type nameEntry struct {
	name span
	raw  span
	file span
	line int
}

type arena struct {
	data []byte
}

const maxPooledArenaSize = 64 * 1024

var (
	arenaPool = sync.Pool{
		New: func() any {
			return &arena{data: make([]byte, 0, 4096)}
		},
	}

	scratchPool = sync.Pool{
		New: func() any {
			return &[MaxSymbolNameLength]byte{}
		},
	}

	outstanding atomic.Int64
)

// OutstandingBuffers returns the number of pooled name buffers currently
// held by unreleased Names and in-flight per-address queries.
func OutstandingBuffers() int64 {
	return outstanding.Load()
}

func acquireArena() *arena {
	outstanding.Add(1)
	buf := arenaPool.Get().(*arena)
	buf.data = buf.data[:0]
	return buf
}

func releaseArena(buf *arena) {
	outstanding.Add(-1)
	if cap(buf.data) > maxPooledArenaSize {
		return
	}
	arenaPool.Put(buf)
}

func acquireScratch() *[MaxSymbolNameLength]byte {
	outstanding.Add(1)
	return scratchPool.Get().(*[MaxSymbolNameLength]byte)
}

func releaseScratch(buf *[MaxSymbolNameLength]byte) {
	outstanding.Add(-1)
	scratchPool.Put(buf)
}

// Names holds the result of resolving a batch of addresses: one entry per
// address, stored in a single pooled buffer.  The owner must call Release
// exactly once; entries may not be accessed afterward.
type Names struct {
	arena    *arena
	entries  []nameEntry
	released bool
}

func newNames(capacity int) *Names {
	return &Names{
		arena:   acquireArena(),
		entries: make([]nameEntry, 0, capacity),
	}
}

func (names *Names) appendString(value string) span {
	start := len(names.arena.data)
	names.arena.data = append(names.arena.data, value...)
	return span{start: start, end: len(names.arena.data)}
}

func (names *Names) add(info NameInfo) {
	if names.released {
		panic("adding to released names")
	}

	names.entries = append(
		names.entries,
		nameEntry{
			name: names.appendString(info.Name),
			raw:  names.appendString(info.Raw),
			file: names.appendString(info.File),
			line: info.Line,
		})
}

func (names *Names) Len() int {
	return len(names.entries)
}

// At returns an independent copy of the i-th entry.
func (names *Names) At(i int) NameInfo {
	if names.released {
		panic("accessing released names")
	}

	entry := names.entries[i]
	data := names.arena.data
	return NameInfo{
		Name: string(data[entry.name.start:entry.name.end]),
		Raw:  string(data[entry.raw.start:entry.raw.end]),
		File: string(data[entry.file.start:entry.file.end]),
		Line: entry.line,
	}
}

// Release returns the backing buffer to the pool.  Releasing twice is a
// programming error.
func (names *Names) Release() {
	if names.released {
		panic("names released twice")
	}

	names.released = true
	releaseArena(names.arena)
	names.arena = nil
	names.entries = nil
}
