package dumpfile

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/arch"
	log "github.com/sirupsen/logrus"
)

const vmcoreinfoNoteName = "VMCOREINFO"

func (dump *Dump) loadELF(file *os.File, size int64, options Options) error {
	backing := dump.openBacking(file, size, options.DisableMmap)

	elfFile, err := elf.NewFile(backing)
	if err != nil {
		return pgtdump.ErrInvalidDumpFormat.Wrap(err)
	}
	if elfFile.Type != elf.ET_CORE {
		return pgtdump.ErrInvalidDumpFormat.WithMessage(
			fmt.Sprintf("ELF file is %s, not a core file", elfFile.Type))
	}

	profile := options.Profile
	if profile == nil {
		profile, err = arch.ForELFMachine(uint(elfFile.Machine))
		if err != nil {
			// Not fatal: the user may still supply the attributes by hand.
			dump.logger.WithError(err).Warn("unknown machine type")
		}
	}
	if profile != nil {
		if err = dump.setProfile(profile); err != nil {
			return err
		}
	}

	switch elfFile.Data {
	case elf.ELFDATA2LSB:
		dump.attrs[pgtdump.AttrByteOrder] = pgtdump.LittleEndian
	case elf.ELFDATA2MSB:
		dump.attrs[pgtdump.AttrByteOrder] = pgtdump.BigEndian
	}

	allZero := true
	for _, prog := range elfFile.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			dump.logger.WithFields(log.Fields{
				"paddr":  fmt.Sprintf("0x%X", prog.Paddr),
				"offset": prog.Off,
				"filesz": prog.Filesz,
				"memsz":  prog.Memsz,
			}).Debug("found load segment")

			fileSize := prog.Filesz
			if fileSize > prog.Memsz {
				fileSize = prog.Memsz
			}
			dump.segments = append(dump.segments, segment{
				Segment: Segment{Start: prog.Paddr, FileSize: fileSize, MemSize: prog.Memsz},
				data:    io.NewSectionReader(backing, int64(prog.Off), int64(prog.Filesz)),
			})
			if prog.Paddr != 0 {
				allZero = false
			}
		case elf.PT_NOTE:
			if err = dump.readNotes(prog.Open(), prog.Filesz, elfFile.ByteOrder); err != nil {
				return err
			}
		}
	}

	if len(dump.segments) > 1 && allZero {
		return pgtdump.ErrInvalidDumpFormat.WithMessage(
			"program headers carry no physical addresses")
	}

	if text, ok := dump.vmcoreinfo["PAGESIZE"]; ok {
		pageSize, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return pgtdump.ErrInvalidDumpFormat.WithMessage(
				fmt.Sprintf("bad PAGESIZE %q in VMCOREINFO", text)).Wrap(err)
		}
		dump.attrs[pgtdump.AttrPageSize] = pageSize
	}
	return nil
}

// readNotes scans one PT_NOTE segment of `size` bytes and records the
// VMCOREINFO note if it finds one. Other notes (register state, etc.) are
// skipped.
func (dump *Dump) readNotes(notes io.Reader, size uint64, order binary.ByteOrder) error {
	limited := &io.LimitedReader{R: notes, N: int64(size)}
	reader := bufio.NewReader(limited)
	remaining := size

	for {
		var header [3]uint32
		err := binary.Read(reader, order, &header)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return pgtdump.ErrInvalidDumpFormat.WithMessage("truncated note header").Wrap(err)
		}
		remaining -= uint64(binary.Size(header))

		nameSize, descSize := uint64(header[0]), uint64(header[1])
		paddedNameSize := alignNote(nameSize)
		paddedDescSize := alignNote(descSize)
		if paddedNameSize > remaining || paddedDescSize > remaining-paddedNameSize {
			return pgtdump.ErrInvalidDumpFormat.WithMessage("note larger than its segment")
		}
		remaining -= paddedNameSize + paddedDescSize

		name := make([]byte, paddedNameSize)
		desc := make([]byte, paddedDescSize)
		if _, err = io.ReadFull(reader, name); err == nil {
			_, err = io.ReadFull(reader, desc)
		}
		if err != nil {
			return pgtdump.ErrInvalidDumpFormat.WithMessage("truncated note").Wrap(err)
		}

		noteName := string(bytes.TrimRight(name[:nameSize], "\x00"))
		if noteName == vmcoreinfoNoteName {
			parseVMCoreInfo(string(desc[:descSize]), dump.vmcoreinfo)
			dump.logger.WithField("keys", len(dump.vmcoreinfo)).Debug("read VMCOREINFO")
		}
	}
}

func alignNote(size uint64) uint64 {
	return (size + 3) &^ 3
}

// parseVMCoreInfo parses the `KEY=value` lines of a VMCOREINFO note into
// `info`. Lines without an equals sign are ignored.
func parseVMCoreInfo(text string, info map[string]string) {
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimRight(line, "\x00"), "=")
		if ok && key != "" {
			info[key] = value
		}
	}
}

// Start of the kernel text mapping on x86-64. The kernel image is mapped here
// at physical address `phys_base`.
const kernelTextMapBase = 0xffffffff80000000

// RootTableAddress finds the physical address of the kernel's top-level page
// table from the VMCOREINFO note, using `init_top_pgt` or, on kernels older
// than 4.13, `init_level4_pgt`.
func (dump *Dump) RootTableAddress() (uint64, error) {
	var symbolText string
	for _, symbol := range []string{"SYMBOL(init_top_pgt)", "SYMBOL(init_level4_pgt)"} {
		if text, ok := dump.vmcoreinfo[symbol]; ok {
			symbolText = text
			break
		}
	}
	if symbolText == "" {
		return 0, pgtdump.ErrNotFound.WithMessage(
			"dump has no VMCOREINFO entry for the root page table")
	}

	virtAddr, err := strconv.ParseUint(symbolText, 16, 64)
	if err != nil {
		return 0, pgtdump.ErrInvalidDumpFormat.WithMessage(
			fmt.Sprintf("bad root page table symbol %q", symbolText)).Wrap(err)
	}
	if virtAddr < kernelTextMapBase {
		return 0, pgtdump.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("root page table 0x%X isn't in the kernel text mapping", virtAddr))
	}

	physBase := uint64(0)
	if text, ok := dump.vmcoreinfo["NUMBER(phys_base)"]; ok {
		// The kernel prints this one as a signed decimal.
		value, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, pgtdump.ErrInvalidDumpFormat.WithMessage(
				fmt.Sprintf("bad phys_base %q", text)).Wrap(err)
		}
		physBase = uint64(value)
	}
	return virtAddr - kernelTextMapBase + physBase, nil
}
