//go:build !unix

package elf

import (
	"io"
	"os"
)

// No mmap; the image is read onto the heap instead.
func mapFile(f *os.File, size int) ([]byte, error) {
	content := make([]byte, size)
	_, err := io.ReadFull(f, content)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func unmapFile(content []byte) error {
	return nil
}
