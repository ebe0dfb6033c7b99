package dumpfile

import (
	"bytes"
	"os"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/arch"
	"github.com/dargueta/pgtdump/utilities/compression"
)

func (dump *Dump) loadRaw(file *os.File, size int64, options Options) error {
	if err := dump.setRawProfile(options); err != nil {
		return err
	}

	dump.segments = append(dump.segments, segment{
		Segment: Segment{
			Start:    options.BaseAddress,
			FileSize: uint64(size),
			MemSize:  uint64(size),
		},
		data: dump.openBacking(file, size, options.DisableMmap),
	})
	return nil
}

func (dump *Dump) loadPacked(file *os.File, format Format, options Options) error {
	if err := dump.setRawProfile(options); err != nil {
		return err
	}

	var data []byte
	var err error
	if format == FormatRLE8Gzip {
		data, err = compression.DecompressImageToBytes(file)
	} else {
		data, err = compression.GunzipToBytes(file)
	}
	if err != nil {
		return pgtdump.ErrInvalidDumpFormat.WithMessage("failed to unpack image").Wrap(err)
	}
	dump.logger.WithField("size", len(data)).Debug("unpacked image")

	dump.segments = append(dump.segments, segment{
		Segment: Segment{
			Start:    options.BaseAddress,
			FileSize: uint64(len(data)),
			MemSize:  uint64(len(data)),
		},
		data: bytes.NewReader(data),
	})
	return nil
}

// setRawProfile sets attributes for images that don't describe themselves.
func (dump *Dump) setRawProfile(options Options) error {
	profile := options.Profile
	if profile == nil {
		profile = arch.Default()
	}
	return dump.setProfile(profile)
}
