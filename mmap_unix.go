//go:build unix || linux || darwin

// mmap(2)/munmap(2) implementation for Unix platforms.
package feastore

import (
	"golang.org/x/sys/unix"
)

func mmapFile(fd int, size int) ([]byte, error) {
	if size == 0 {
		// mmap of a zero-length region is an error on most platforms;
		// callers never need to address bytes of an empty segment.
		return []byte{}, nil
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func munmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
