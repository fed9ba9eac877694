package procfs

import (
	"os"
	"runtime"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

const sampleMaps = `00400000-00401000 r--p 00000000 fd:01 1049883                            /usr/bin/sample
00401000-0049b000 r-xp 00001000 fd:01 1049883                            /usr/bin/sample
7f1c2a000000-7f1c2a021000 rw-p 00000000 00:00 0
7f1c2a400000-7f1c2a428000 r-xp 00028000 fd:01 2883 /tmp/a b (deleted)
7ffd1c3c6000-7ffd1c3c8000 r-xp 00000000 00:00 0                          [vdso]
`

type ProcfsSuite struct{}

func TestProcfs(t *testing.T) {
	suite.RunTests(t, &ProcfsSuite{})
}

func (ProcfsSuite) TestParseMappedMemoryRegions(t *testing.T) {
	regions, err := ParseMappedMemoryRegions(sampleMaps)
	expect.Nil(t, err)
	expect.Equal(t, 5, len(regions))

	text := regions[1]
	expect.Equal(t, uint64(0x401000), text.LowAddress)
	expect.Equal(t, uint64(0x49b000), text.HighAddress)
	expect.True(t, text.Read)
	expect.False(t, text.Write)
	expect.True(t, text.Execute)
	expect.True(t, text.Private)
	expect.Equal(t, uint64(0x1000), text.Offset)
	expect.Equal(t, uint(0xfd), text.DeviceMajor)
	expect.Equal(t, uint(1), text.DeviceMinor)
	expect.Equal(t, uint64(1049883), text.Inode)
	expect.Equal(t, "/usr/bin/sample", text.Pathname)
	expect.True(t, text.IsFileBacked())
	expect.True(t, text.Contains(0x401000))
	expect.False(t, text.Contains(0x49b000))

	anonymous := regions[2]
	expect.Equal(t, "", anonymous.Pathname)
	expect.False(t, anonymous.IsFileBacked())

	deleted := regions[3]
	expect.Equal(t, "/tmp/a b (deleted)", deleted.Pathname)
	expect.False(t, deleted.IsFileBacked())

	vdso := regions[4]
	expect.Equal(t, "[vdso]", vdso.Pathname)
	expect.False(t, vdso.IsFileBacked())
}

func (ProcfsSuite) TestParseMalformed(t *testing.T) {
	_, err := ParseMappedMemoryRegions("00400000 r--p 00000000 fd:01 1\n")
	expect.Error(t, err, "malformed address range")

	_, err = ParseMappedMemoryRegions("garbage\n")
	expect.Error(t, err, "malformed region entry")
}

func (ProcfsSuite) TestSelfRegions(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("procfs is linux only")
	}

	exe, err := os.Readlink(GetExecutableSymlinkPath(Self))
	expect.Nil(t, err)

	regions, err := GetMappedMemoryRegions(Self)
	expect.Nil(t, err)

	found := false
	for _, region := range regions {
		if region.Execute && region.Pathname == exe {
			found = true
		}
	}
	expect.True(t, found)
}
