package callsite

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	. "github.com/pattyshack/stacktrace/common"
)

//go:noinline
func returnAddressOfCaller() uintptr {
	pcs := make([]uintptr, 1)
	runtime.Callers(2, pcs)
	return pcs[0]
}

//go:noinline
func callingFunction() uintptr {
	return returnAddressOfCaller()
}

type fakeMemory struct {
	base VirtualAddress
	data []byte
}

func (mem fakeMemory) Read(addr VirtualAddress, out []byte) (int, error) {
	end := mem.base + VirtualAddress(len(mem.data))
	if addr < mem.base || addr+VirtualAddress(len(out)) > end {
		return 0, fmt.Errorf("unmapped address %s", addr)
	}
	return copy(out, mem.data[addr-mem.base:]), nil
}

func requireSupportedPlatform(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires procfs")
	}
	if !architectureSupported {
		t.Skip("unsupported architecture")
	}
}

type CallSiteSuite struct{}

func TestCallSite(t *testing.T) {
	suite.RunTests(t, &CallSiteSuite{})
}

func (CallSiteSuite) TestDecodeSelf(t *testing.T) {
	requireSupportedPlatform(t)

	pc := callingFunction()

	inst, err := Decode(pc)
	expect.Nil(t, err)
	expect.Equal(t, VirtualAddress(pc), inst.ReturnAddress())
	expect.Equal(t, inst.Length, len(inst.Bytes))
	expect.True(t, inst.Text != "")

	caller := runtime.FuncForPC(uintptr(inst.Address))
	expect.NotNil(t, caller)
	expect.Equal(
		t,
		runtime.FuncForPC(reflect.ValueOf(callingFunction).Pointer()).Name(),
		caller.Name())

	callee := runtime.FuncForPC(uintptr(inst.Target))
	expect.NotNil(t, callee)
	expect.Equal(
		t,
		runtime.FuncForPC(reflect.ValueOf(returnAddressOfCaller).Pointer()).Name(),
		callee.Name())
}

func (CallSiteSuite) TestProcessMemory(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires procfs")
	}

	memory, err := OpenSelfMemory()
	expect.Nil(t, err)

	data := []byte("process memory")
	out := make([]byte, len(data))
	n, err := memory.Read(
		VirtualAddress(reflect.ValueOf(&data[0]).Pointer()),
		out)
	expect.Nil(t, err)
	expect.Equal(t, len(data), n)
	expect.Equal(t, string(data), string(out))

	_, err = memory.Read(0x10, out)
	expect.Error(t, err, "failed to read from memory")

	expect.Nil(t, memory.Close())
	expect.Nil(t, memory.Close())
}

func (CallSiteSuite) TestInvalidReturnAddress(t *testing.T) {
	if !architectureSupported {
		t.Skip("unsupported architecture")
	}

	decoder := &Decoder{Memory: fakeMemory{}}
	_, err := decoder.Decode(1)
	expect.True(t, errors.Is(err, ErrNotCallSite))
	expect.True(t, errors.Is(err, ErrInvalidArgument))
}

func (CallSiteSuite) TestUnmappedReturnAddress(t *testing.T) {
	if !architectureSupported {
		t.Skip("unsupported architecture")
	}

	decoder := &Decoder{Memory: fakeMemory{base: 0x1000}}
	_, err := decoder.Decode(0x2000)
	expect.Error(t, err, "failed to read call site")
	expect.False(t, errors.Is(err, ErrNotCallSite))
}

func (CallSiteSuite) TestUnsupportedArchitecture(t *testing.T) {
	if architectureSupported {
		t.Skip("supported architecture")
	}

	_, err := Decode(0x1000)
	expect.True(t, errors.Is(err, ErrUnsupportedArchitecture))
}
