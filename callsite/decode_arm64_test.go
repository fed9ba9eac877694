package callsite

import (
	"errors"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	. "github.com/pattyshack/stacktrace/common"
)

type Arm64DecodeSuite struct{}

func TestArm64Decode(t *testing.T) {
	suite.RunTests(t, &Arm64DecodeSuite{})
}

func (Arm64DecodeSuite) TestDirectCall(t *testing.T) {
	// nop; bl +0x8
	data := []byte{0x1f, 0x20, 0x03, 0xd5, 0x02, 0x00, 0x00, 0x94}

	decoder := &Decoder{
		Memory: fakeMemory{base: 0x1000, data: data},
	}

	inst, err := decoder.Decode(0x1008)
	expect.Nil(t, err)
	expect.Equal(t, VirtualAddress(0x1004), inst.Address)
	expect.Equal(t, 4, inst.Length)
	expect.Equal(t, VirtualAddress(0x100c), inst.Target)
	expect.True(t, strings.HasPrefix(inst.Text, "bl"))
}

func (Arm64DecodeSuite) TestIndirectCall(t *testing.T) {
	// blr x1
	data := []byte{0x20, 0x00, 0x3f, 0xd6}

	decoder := &Decoder{
		Memory: fakeMemory{base: 0x2000, data: data},
	}

	inst, err := decoder.Decode(0x2004)
	expect.Nil(t, err)
	expect.Equal(t, VirtualAddress(0x2000), inst.Address)
	expect.Equal(t, VirtualAddress(0), inst.Target)
	expect.True(t, strings.HasPrefix(inst.Text, "blr"))
}

func (Arm64DecodeSuite) TestNotCallSite(t *testing.T) {
	// nop
	data := []byte{0x1f, 0x20, 0x03, 0xd5}

	decoder := &Decoder{
		Memory: fakeMemory{base: 0x3000, data: data},
	}

	_, err := decoder.Decode(0x3004)
	expect.True(t, errors.Is(err, ErrNotCallSite))
}
