//go:build !unix

package dumpfile

import (
	"os"

	"github.com/dargueta/pgtdump"
)

func mmapFile(file *os.File, size int64) ([]byte, error) {
	return nil, pgtdump.ErrNotSupported.WithMessage("mmap")
}

func munmapFile(data []byte) error {
	return nil
}
