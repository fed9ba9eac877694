package common

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type CommonSuite struct{}

func TestCommon(t *testing.T) {
	suite.RunTests(t, &CommonSuite{})
}

func (CommonSuite) TestVirtualAddressString(t *testing.T) {
	expect.Equal(t, "0x0000000000401000", VirtualAddress(0x401000).String())
}

func (CommonSuite) TestAddressRanges(t *testing.T) {
	ars := AddressRanges{
		{Low: 0x1000, High: 0x2000},
		{Low: 0x3000, High: 0x3010},
	}

	expect.True(t, ars.Contains(0x1000))
	expect.True(t, ars.Contains(0x1fff))
	expect.False(t, ars.Contains(0x2000))
	expect.True(t, ars.Contains(0x300f))
	expect.False(t, ars.Contains(0x3010))
	expect.False(t, ars.Contains(0))
}
