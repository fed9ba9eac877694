//go:build unix

package callsite

import (
	"fmt"

	"golang.org/x/sys/unix"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/procfs"
)

func OpenSelfMemory() (*ProcessMemory, error) {
	path := procfs.GetMemoryPath(procfs.Self)
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &ProcessMemory{
		fd: fd,
	}, nil
}

func (mem *ProcessMemory) Read(addr VirtualAddress, out []byte) (int, error) {
	count, err := unix.Pread(mem.fd, out, int64(addr))
	if err != nil {
		return 0, fmt.Errorf(
			"failed to read from memory at %s (%d): %w",
			addr,
			len(out),
			err)
	}

	if count != len(out) {
		return count, fmt.Errorf(
			"short read from memory at %s (%d of %d)",
			addr,
			count,
			len(out))
	}

	return count, nil
}

func (mem *ProcessMemory) Close() error {
	if mem.fd < 0 {
		return nil
	}

	err := unix.Close(mem.fd)
	mem.fd = -1
	if err != nil {
		return fmt.Errorf("failed to close process memory: %w", err)
	}
	return nil
}
