// Package dumpfile opens memory dumps and exposes their physical address space.
//
// Three kinds of files are supported:
//
//   - ELF core files as written by kdump (`/proc/vmcore`). Physical addresses
//     come from the `p_paddr` field of the PT_LOAD program headers.
//   - Raw images, where byte N of the file is physical address
//     `BaseAddress + N`. VM guest memory files are in this format.
//   - Packed raw images, either gzipped or RLE8-encoded and gzipped (see
//     package compression). These are decompressed into memory when opened.
//
// Uncompressed files are memory-mapped when the platform allows it, and read
// through a page cache otherwise.
package dumpfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/arch"
	"github.com/dargueta/pgtdump/dumpfile/pagecache"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

type Format string

const (
	FormatAuto      = Format("auto")
	FormatELF       = Format("elf")
	FormatRaw       = Format("raw")
	FormatGzip      = Format("gzip")
	FormatRLE8Gzip  = Format("rle8gz")
	cachePageSize   = 4096
	rle8GzipSuffix  = ".rle8.gz"
	gzipSuffix      = ".gz"
	sniffHeaderSize = 8
)

// Formats lists the values accepted by [ParseFormat].
var Formats = []Format{FormatAuto, FormatELF, FormatRaw, FormatGzip, FormatRLE8Gzip}

// ParseFormat converts a format name into a [Format].
func ParseFormat(name string) (Format, error) {
	for _, format := range Formats {
		if strings.EqualFold(name, string(format)) {
			return format, nil
		}
	}
	return "", pgtdump.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("unknown dump format %q", name))
}

// Options control how a dump is opened. The zero value detects the format
// and uses the attributes recorded in the dump, falling back to the default
// paging profile for raw images.
type Options struct {
	Format Format
	// Profile selects the paging profile. If nil, ELF dumps use the profile
	// matching their machine type and raw images use [arch.Default].
	Profile *arch.Profile
	// ByteOrder, PageSize and PTEValSize override the corresponding
	// attributes when set.
	ByteOrder  string
	PageSize   uint64
	PTEValSize uint64
	// BaseAddress is the physical address of the first byte of a raw image.
	// It's ignored for ELF dumps.
	BaseAddress uint64
	// DisableMmap forces reads to go through a page cache.
	DisableMmap bool
	Logger      *log.Entry
}

// Segment describes one contiguous range of the physical address space
// present in the dump.
type Segment struct {
	// Start is the physical address of the first byte.
	Start uint64
	// FileSize is the number of bytes stored in the file. Bytes between
	// FileSize and MemSize read as zero.
	FileSize uint64
	MemSize  uint64
}

type segment struct {
	Segment
	data io.ReaderAt
}

// Dump is an opened memory dump. It implements [pgtdump.Dump].
type Dump struct {
	name       string
	format     Format
	profile    *arch.Profile
	attrs      map[string]uint64
	vmcoreinfo map[string]string
	segments   []segment
	closers    []func() error
	logger     *log.Entry
}

var _ pgtdump.Dump = (*Dump)(nil)

// Open opens the dump file at `path`.
func Open(path string, options Options) (*Dump, error) {
	logger := options.Logger
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.WithField("dump", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dump := &Dump{
		name:       path,
		attrs:      map[string]uint64{},
		vmcoreinfo: map[string]string{},
		logger:     logger,
	}
	dump.closers = append(dump.closers, file.Close)

	err = dump.load(file, options)
	if err != nil {
		dump.Close()
		return nil, err
	}

	logger.WithFields(log.Fields{
		"format":   dump.format,
		"segments": len(dump.segments),
		"attrs":    dump.attrs,
	}).Info("opened dump")
	return dump, nil
}

func (dump *Dump) load(file *os.File, options Options) error {
	if options.ByteOrder != "" {
		if _, err := arch.ParseByteOrder(options.ByteOrder); err != nil {
			return err
		}
	}

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	format := options.Format
	if format == "" || format == FormatAuto {
		format, err = detectFormat(file, stat.Size())
		if err != nil {
			return err
		}
		dump.logger.WithField("format", format).Debug("detected dump format")
	}
	dump.format = format

	switch format {
	case FormatELF:
		err = dump.loadELF(file, stat.Size(), options)
	case FormatRaw:
		err = dump.loadRaw(file, stat.Size(), options)
	case FormatGzip, FormatRLE8Gzip:
		err = dump.loadPacked(file, format, options)
	default:
		err = pgtdump.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown dump format %q", format))
	}
	if err != nil {
		return err
	}

	dump.applyOverrides(options)
	sort.Slice(dump.segments, func(i, j int) bool {
		return dump.segments[i].Start < dump.segments[j].Start
	})
	return nil
}

// detectFormat guesses the format of a file from its first few bytes and its
// name.
func detectFormat(file *os.File, size int64) (Format, error) {
	header := make([]byte, sniffHeaderSize)
	n, err := file.ReadAt(header, 0)
	if err != nil && n < len(header) && int64(n) < size {
		return "", pgtdump.ErrIOFailed.Wrap(err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, []byte("\x7fELF")):
		return FormatELF, nil
	case bytes.HasPrefix(header, []byte("KDUMP   ")),
		bytes.HasPrefix(header, []byte("DISKDUMP")):
		return "", pgtdump.ErrNotSupported.WithMessage(
			"compressed kdump files aren't supported; convert the dump to ELF first")
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		if strings.HasSuffix(file.Name(), rle8GzipSuffix) {
			return FormatRLE8Gzip, nil
		}
		return FormatGzip, nil
	}
	return FormatRaw, nil
}

// openBacking returns a reader over the whole file, memory-mapping it unless
// that's disabled or fails.
func (dump *Dump) openBacking(file *os.File, size int64, disableMmap bool) io.ReaderAt {
	if !disableMmap && size > 0 {
		data, err := mmapFile(file, size)
		if err == nil {
			dump.closers = append(dump.closers, func() error { return munmapFile(data) })
			return bytes.NewReader(data)
		}
		dump.logger.WithError(err).Warn("failed to mmap dump, falling back to page cache")
	}
	return pagecache.NewFromReaderAt(file, cachePageSize, size)
}

func (dump *Dump) applyOverrides(options Options) {
	if options.ByteOrder != "" {
		// Already validated by load().
		dump.attrs[pgtdump.AttrByteOrder], _ = arch.ParseByteOrder(options.ByteOrder)
	}
	if options.PageSize != 0 {
		dump.attrs[pgtdump.AttrPageSize] = options.PageSize
	}
	if options.PTEValSize != 0 {
		dump.attrs[pgtdump.AttrPTEValSize] = options.PTEValSize
	}
}

func (dump *Dump) setProfile(profile *arch.Profile) error {
	attrs, err := profile.Attributes()
	if err != nil {
		return err
	}
	dump.profile = profile
	for name, value := range attrs {
		dump.attrs[name] = value
	}
	return nil
}

// Name returns the path the dump was opened from.
func (dump *Dump) Name() string {
	return dump.name
}

// Format returns the format of the dump file.
func (dump *Dump) Format() Format {
	return dump.format
}

// Profile returns the paging profile of the dump, or nil if none is known.
func (dump *Dump) Profile() *arch.Profile {
	return dump.profile
}

// Segments returns the physical address ranges present in the dump, sorted by
// address.
func (dump *Dump) Segments() []Segment {
	result := make([]Segment, len(dump.segments))
	for i := range dump.segments {
		result[i] = dump.segments[i].Segment
	}
	return result
}

// Attr implements [pgtdump.AttributeSource].
func (dump *Dump) Attr(name string) (uint64, error) {
	value, ok := dump.attrs[name]
	if !ok {
		return 0, pgtdump.ErrNotFound.WithMessage(
			fmt.Sprintf("attribute %q is not set", name))
	}
	return value, nil
}

// VMCoreInfo returns a value from the dump's VMCOREINFO note. Only ELF dumps
// carry one.
func (dump *Dump) VMCoreInfo(key string) (string, bool) {
	value, ok := dump.vmcoreinfo[key]
	return value, ok
}

func (dump *Dump) findSegment(addr uint64) *segment {
	i := sort.Search(len(dump.segments), func(i int) bool {
		return dump.segments[i].Start > addr
	})
	if i == 0 {
		return nil
	}

	seg := &dump.segments[i-1]
	if addr-seg.Start >= seg.MemSize {
		return nil
	}
	return seg
}

// ReadPhysical implements [pgtdump.PhysicalReader]. A read may span several
// adjacent segments, but it fails if any byte of the range isn't present in
// the dump.
func (dump *Dump) ReadPhysical(addr uint64, buffer []byte) error {
	for len(buffer) > 0 {
		seg := dump.findSegment(addr)
		if seg == nil {
			return pgtdump.ErrAddressNotPresent.WithMessage(fmt.Sprintf("0x%X", addr))
		}

		offset := addr - seg.Start
		chunkSize := seg.MemSize - offset
		if chunkSize > uint64(len(buffer)) {
			chunkSize = uint64(len(buffer))
		}

		fileBytes := uint64(0)
		if offset < seg.FileSize {
			fileBytes = seg.FileSize - offset
			if fileBytes > chunkSize {
				fileBytes = chunkSize
			}

			n, err := seg.data.ReadAt(buffer[:fileBytes], int64(offset))
			if uint64(n) < fileBytes {
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
				return pgtdump.ErrIOFailed.WithMessage(
					fmt.Sprintf("reading %d bytes at 0x%X", fileBytes, addr)).Wrap(err)
			}
		}

		for i := fileBytes; i < chunkSize; i++ {
			buffer[i] = 0
		}
		buffer = buffer[chunkSize:]
		addr += chunkSize
	}
	return nil
}

// Close implements [pgtdump.Dump]. Resources are released in the reverse order
// they were acquired and all failures are reported.
func (dump *Dump) Close() error {
	var result *multierror.Error
	for i := len(dump.closers) - 1; i >= 0; i-- {
		if err := dump.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	dump.closers = nil
	dump.segments = nil
	return result.ErrorOrNil()
}

func discardLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}
