//go:build unix

package dumpfile

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapFile(file *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
}

func munmapFile(data []byte) error {
	return unix.Munmap(data)
}
