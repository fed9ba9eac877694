//go:build !amd64 && !arm64

package callsite

import (
	. "github.com/pattyshack/stacktrace/common"
)

const (
	architectureSupported = false

	minCallLength  = 1
	maxCallLength  = 1
	callLengthStep = 1
)

func decodeCall(
	window []byte,
	returnAddress VirtualAddress,
	symname func(uint64) (string, uint64),
) (
	Instruction,
	bool,
) {
	return Instruction{}, false
}
