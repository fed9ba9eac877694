package callsite

import (
	"fmt"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/symbol"
)

var (
	ErrNotCallSite             = fmt.Errorf("not a call site")
	ErrUnsupportedArchitecture = fmt.Errorf("unsupported architecture")
)

// Instruction is the call instruction that produced a return address.
type Instruction struct {
	Address VirtualAddress
	Length  int
	Bytes   []byte

	// Branch destination for direct calls.  Zero for indirect calls.
	Target VirtualAddress

	// GNU syntax disassembly.
	Text string
}

func (inst Instruction) ReturnAddress() VirtualAddress {
	return inst.Address + VirtualAddress(inst.Length)
}

func (inst Instruction) String() string {
	return fmt.Sprintf("%s: %s", inst.Address, inst.Text)
}

// Decoder decodes the call instruction immediately preceding a return
// address.
type Decoder struct {
	Memory MemoryReader

	// Optional.  Used to name direct call targets in the disassembly.
	Images symbol.ImageSource
}

func NewDecoder(memory MemoryReader) *Decoder {
	return &Decoder{
		Memory: memory,
		Images: symbol.ProcessImages,
	}
}

// Decode reads the current process's memory to decode the call
// instruction that pushed the return address pc.
func Decode(pc uintptr) (Instruction, error) {
	if !architectureSupported {
		return Instruction{}, ErrUnsupportedArchitecture
	}

	memory, err := OpenSelfMemory()
	if err != nil {
		return Instruction{}, err
	}
	defer memory.Close()

	return NewDecoder(memory).Decode(pc)
}

func (decoder *Decoder) Decode(pc uintptr) (Instruction, error) {
	if !architectureSupported {
		return Instruction{}, ErrUnsupportedArchitecture
	}

	returnAddress := VirtualAddress(pc)
	if returnAddress < minCallLength {
		return Instruction{}, fmt.Errorf(
			"%w: %w: return address %s",
			ErrNotCallSite,
			ErrInvalidArgument,
			returnAddress)
	}

	window, err := decoder.readWindow(returnAddress)
	if err != nil {
		return Instruction{}, err
	}

	inst, ok := decodeCall(window, returnAddress, decoder.symbolName)
	if !ok {
		return Instruction{}, fmt.Errorf(
			"%w: no call instruction ends at %s",
			ErrNotCallSite,
			returnAddress)
	}

	return inst, nil
}

// readWindow returns the largest readable run of up to maxCallLength bytes
// ending at returnAddress.  The run shrinks when the leading bytes are not
// mapped (e.g., the call is at the very start of a text segment).
func (decoder *Decoder) readWindow(returnAddress VirtualAddress) ([]byte, error) {
	length := min(maxCallLength, int(returnAddress))

	var err error
	buf := make([]byte, length)
	for ; length >= minCallLength; length -= callLengthStep {
		window := buf[len(buf)-length:]
		_, err = decoder.Memory.Read(
			returnAddress-VirtualAddress(length),
			window)
		if err == nil {
			return window, nil
		}
	}

	return nil, fmt.Errorf(
		"failed to read call site before %s: %w",
		returnAddress,
		err)
}

func (decoder *Decoder) symbolName(addr uint64) (string, uint64) {
	if decoder.Images == nil {
		return "", 0
	}

	images, err := decoder.Images()
	if err != nil {
		return "", 0
	}

	file, sym := images.SymbolContaining(VirtualAddress(addr))
	if sym == nil {
		return "", 0
	}

	return sym.Name, uint64(file.SymbolToVirtualAddress(sym))
}
