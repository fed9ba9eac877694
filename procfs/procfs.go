package procfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Pid used to address the calling process's own /proc entries.
const Self = -1

func processDir(pid int) string {
	if pid == Self {
		return "/proc/self"
	}
	return fmt.Sprintf("/proc/%d", pid)
}

func GetExecutableSymlinkPath(pid int) string {
	return processDir(pid) + "/exe"
}

func GetMemoryPath(pid int) string {
	return processDir(pid) + "/mem"
}

type MappedMemoryRegion struct {
	LowAddress  uint64
	HighAddress uint64

	Read    bool
	Write   bool
	Execute bool
	Private bool // (copy on write)

	Offset uint64

	DeviceMajor uint
	DeviceMinor uint
	Inode       uint64

	// Empty for anonymous mappings.  Pseudo paths such as [vdso] and [stack]
	// are kept verbatim.
	Pathname string
}

func (region MappedMemoryRegion) Contains(address uint64) bool {
	return region.LowAddress <= address && address < region.HighAddress
}

// IsFileBacked reports whether the region maps a file on disk, as opposed to
// anonymous memory or a kernel provided pseudo region.
func (region MappedMemoryRegion) IsFileBacked() bool {
	return strings.HasPrefix(region.Pathname, "/") &&
		!strings.HasSuffix(region.Pathname, " (deleted)")
}

func GetMappedMemoryRegions(pid int) ([]MappedMemoryRegion, error) {
	path := processDir(pid) + "/maps"
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	regions, err := ParseMappedMemoryRegions(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return regions, nil
}

// ParseMappedMemoryRegions parses the content of a /proc/<pid>/maps file.
func ParseMappedMemoryRegions(content string) ([]MappedMemoryRegion, error) {
	result := []MappedMemoryRegion{}
	for _, line := range strings.Split(content, "\n") {
		if line == "" {
			continue
		}

		chunks := strings.Fields(line)
		if len(chunks) < 5 {
			return nil, fmt.Errorf("malformed region entry: %s", line)
		}

		entry := MappedMemoryRegion{}

		addresses := strings.SplitN(chunks[0], "-", 2)
		if len(addresses) != 2 {
			return nil, fmt.Errorf("malformed address range: %s", chunks[0])
		}

		lowAddr, err := strconv.ParseUint(addresses[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse low address: %w", err)
		}
		entry.LowAddress = lowAddr

		highAddr, err := strconv.ParseUint(addresses[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse high address: %w", err)
		}
		entry.HighAddress = highAddr

		for idx, b := range []byte(chunks[1]) {
			switch idx {
			case 0:
				entry.Read = b == 'r'
			case 1:
				entry.Write = b == 'w'
			case 2:
				entry.Execute = b == 'x'
			case 3:
				entry.Private = b == 'p'
			}
		}

		offset, err := strconv.ParseUint(chunks[2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse offset: %w", err)
		}
		entry.Offset = offset

		device := strings.SplitN(chunks[3], ":", 2)
		if len(device) != 2 {
			return nil, fmt.Errorf("malformed device: %s", chunks[3])
		}

		major, err := strconv.ParseUint(device[0], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse device major: %w", err)
		}
		entry.DeviceMajor = uint(major)

		minor, err := strconv.ParseUint(device[1], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse device minor: %w", err)
		}
		entry.DeviceMinor = uint(minor)

		inode, err := strconv.ParseUint(chunks[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse inode: %w", err)
		}
		entry.Inode = inode

		// NOTE: path names may contain spaces (e.g., "/tmp/a b (deleted)").
		if len(chunks) > 5 {
			entry.Pathname = strings.Join(chunks[5:], " ")
		}

		result = append(result, entry)
	}

	return result, nil
}
