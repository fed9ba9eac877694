//go:build !linux

package main

import (
	"os"
)

// No portable thread id; the process id labels the traces instead.
func threadID() int {
	return os.Getpid()
}
