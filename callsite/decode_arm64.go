package callsite

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"

	. "github.com/pattyshack/stacktrace/common"
)

const (
	architectureSupported = true

	minCallLength  = 4
	maxCallLength  = 4
	callLengthStep = 4
)

func decodeCall(
	window []byte,
	returnAddress VirtualAddress,
	symname func(uint64) (string, uint64),
) (
	Instruction,
	bool,
) {
	if len(window) != maxCallLength {
		return Instruction{}, false
	}

	inst, err := arm64asm.Decode(window)
	if err != nil || (inst.Op != arm64asm.BL && inst.Op != arm64asm.BLR) {
		return Instruction{}, false
	}

	address := returnAddress - maxCallLength

	var target VirtualAddress
	rel, ok := inst.Args[0].(arm64asm.PCRel)
	if ok {
		target = VirtualAddress(int64(address) + int64(rel))
	}

	text := arm64asm.GNUSyntax(inst)
	if target != 0 {
		name, base := symname(uint64(target))
		if name != "" {
			text = fmt.Sprintf("%s <%s+%#x>", text, name, uint64(target)-base)
		}
	}

	return Instruction{
		Address: address,
		Length:  maxCallLength,
		Bytes:   append([]byte(nil), window...),
		Target:  target,
		Text:    text,
	}, true
}
