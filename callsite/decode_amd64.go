package callsite

import (
	"golang.org/x/arch/x86/x86asm"

	. "github.com/pattyshack/stacktrace/common"
)

const (
	architectureSupported = true

	minCallLength  = 2
	maxCallLength  = 15
	callLengthStep = 1

	directCallLength = 5
)

// x86 instructions are variable length and cannot be decoded backward.
// Candidate lengths are tried in turn; a candidate matches when it decodes
// as a call spanning exactly the bytes up to the return address.  The
// common direct call form is tried first.
func decodeCall(
	window []byte,
	returnAddress VirtualAddress,
	symname x86asm.SymLookup,
) (
	Instruction,
	bool,
) {
	candidates := make([]int, 0, maxCallLength)
	candidates = append(candidates, directCallLength)
	for length := minCallLength; length <= maxCallLength; length++ {
		if length != directCallLength {
			candidates = append(candidates, length)
		}
	}

	for _, length := range candidates {
		if length > len(window) {
			continue
		}

		src := window[len(window)-length:]
		inst, err := x86asm.Decode(src, 64)
		if err != nil || inst.Op != x86asm.CALL || inst.Len != length {
			continue
		}

		address := returnAddress - VirtualAddress(length)

		var target VirtualAddress
		rel, ok := inst.Args[0].(x86asm.Rel)
		if ok {
			target = VirtualAddress(int64(returnAddress) + int64(rel))
		}

		return Instruction{
			Address: address,
			Length:  length,
			Bytes:   append([]byte(nil), src...),
			Target:  target,
			Text:    x86asm.GNUSyntax(inst, uint64(address), symname),
		}, true
	}

	return Instruction{}, false
}
