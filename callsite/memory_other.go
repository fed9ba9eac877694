//go:build !unix

package callsite

import (
	"errors"
	"fmt"
	"runtime"

	. "github.com/pattyshack/stacktrace/common"
)

func OpenSelfMemory() (*ProcessMemory, error) {
	return nil, fmt.Errorf(
		"process memory reads on %s: %w",
		runtime.GOOS,
		errors.ErrUnsupported)
}

func (mem *ProcessMemory) Read(addr VirtualAddress, out []byte) (int, error) {
	return 0, fmt.Errorf(
		"failed to read from memory at %s (%d): %w",
		addr,
		len(out),
		errors.ErrUnsupported)
}

func (mem *ProcessMemory) Close() error {
	return nil
}
