package callsite

import (
	. "github.com/pattyshack/stacktrace/common"
)

type MemoryReader interface {
	Read(addr VirtualAddress, out []byte) (int, error)
}

// ProcessMemory reads the current process's address space through
// /proc/self/mem, which fails cleanly (instead of faulting) on unmapped
// addresses.
type ProcessMemory struct {
	fd int
}
