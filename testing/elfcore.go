package testing

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// CoreSegment is one PT_LOAD segment of a core file built by [BuildELFCore].
type CoreSegment struct {
	PhysAddr uint64
	Data     []byte
	// MemSize defaults to len(Data) if smaller than that.
	MemSize uint64
}

const (
	elfHeaderSize     = 64
	elfProgHeaderSize = 56
)

// BuildELFCore returns the bytes of a minimal 64-bit ELF core file with the
// given load segments and, if `vmcoreinfo` isn't empty, a VMCOREINFO note.
func BuildELFCore(
	t *testing.T,
	machine elf.Machine,
	order binary.ByteOrder,
	segments []CoreSegment,
	vmcoreinfo string,
) []byte {
	notes := bytes.Buffer{}
	if vmcoreinfo != "" {
		writeNote(t, &notes, order, "VMCOREINFO", 0, []byte(vmcoreinfo))
	}

	numProgs := len(segments)
	if notes.Len() > 0 {
		numProgs++
	}

	dataOffset := uint64(elfHeaderSize + elfProgHeaderSize*numProgs)
	output := bytes.Buffer{}

	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64)}
	if order == binary.BigEndian {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	header := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_CORE),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     elfHeaderSize,
		Ehsize:    elfHeaderSize,
		Phentsize: elfProgHeaderSize,
		Phnum:     uint16(numProgs),
		Shentsize: 64,
	}
	require.NoError(t, binary.Write(&output, order, &header))

	offset := dataOffset
	if notes.Len() > 0 {
		prog := elf.Prog64{
			Type:   uint32(elf.PT_NOTE),
			Off:    offset,
			Filesz: uint64(notes.Len()),
		}
		require.NoError(t, binary.Write(&output, order, &prog))
		offset += uint64(notes.Len())
	}

	for _, segment := range segments {
		memSize := segment.MemSize
		if memSize < uint64(len(segment.Data)) {
			memSize = uint64(len(segment.Data))
		}
		prog := elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_W | elf.PF_X),
			Off:    offset,
			Vaddr:  0xffff888000000000 + segment.PhysAddr,
			Paddr:  segment.PhysAddr,
			Filesz: uint64(len(segment.Data)),
			Memsz:  memSize,
		}
		require.NoError(t, binary.Write(&output, order, &prog))
		offset += uint64(len(segment.Data))
	}

	output.Write(notes.Bytes())
	for _, segment := range segments {
		output.Write(segment.Data)
	}
	return output.Bytes()
}

func writeNote(
	t *testing.T, output *bytes.Buffer, order binary.ByteOrder, name string, noteType uint32, desc []byte,
) {
	nameBytes := append([]byte(name), 0)
	header := [3]uint32{uint32(len(nameBytes)), uint32(len(desc)), noteType}
	require.NoError(t, binary.Write(output, order, header))

	output.Write(padNote(nameBytes))
	output.Write(padNote(desc))
}

func padNote(data []byte) []byte {
	padded := make([]byte, (len(data)+3)&^3)
	copy(padded, data)
	return padded
}
