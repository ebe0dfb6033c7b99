package pgt

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/pgtdump"
)

// EntryWidth is the default number of bytes decoded for every slot of a
// table, regardless of the dump's entry size attribute.
const EntryWidth = 8

// MaxPageSize is the largest table size a layout may have.
const MaxPageSize = 1 << 20

// Layout describes how tables are stored in a dump.
type Layout struct {
	ByteOrder binary.ByteOrder
	// PageSize is the size of a table, in bytes.
	PageSize uint64
	// PTESize is the distance between two consecutive slots of a table.
	PTESize uint64
	// DecodeWidth is the number of bytes decoded per slot, at most 8. Zero
	// means [EntryWidth].
	DecodeWidth uint64
}

var byteOrders = map[uint64]binary.ByteOrder{
	pgtdump.BigEndian:    binary.BigEndian,
	pgtdump.LittleEndian: binary.LittleEndian,
}

// ResolveLayout looks up the attributes a walk needs.
func ResolveLayout(attrs pgtdump.AttributeSource) (Layout, error) {
	byteOrderAttr, err := attrs.Attr(pgtdump.AttrByteOrder)
	if err != nil {
		return Layout{}, err
	}
	byteOrder, ok := byteOrders[byteOrderAttr]
	if !ok {
		return Layout{}, pgtdump.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown byte order %d", byteOrderAttr))
	}

	pageSize, err := attrs.Attr(pgtdump.AttrPageSize)
	if err != nil {
		return Layout{}, err
	}
	pteSize, err := attrs.Attr(pgtdump.AttrPTEValSize)
	if err != nil {
		return Layout{}, err
	}

	layout := Layout{ByteOrder: byteOrder, PageSize: pageSize, PTESize: pteSize}
	return layout, layout.Validate()
}

// Validate checks that the layout describes at least one slot per table.
func (layout Layout) Validate() error {
	if layout.ByteOrder == nil {
		return pgtdump.ErrInvalidArgument.WithMessage("byte order is not set")
	}
	if layout.PageSize == 0 {
		return pgtdump.ErrInvalidArgument.WithMessage("page size must be nonzero")
	}
	if layout.PageSize > MaxPageSize {
		return pgtdump.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("page size %d is larger than %d", layout.PageSize, MaxPageSize))
	}
	if layout.PTESize == 0 {
		return pgtdump.ErrInvalidArgument.WithMessage("page table entry size must be nonzero")
	}
	if layout.DecodeWidth > EntryWidth {
		return pgtdump.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("can't decode entries wider than %d bytes", EntryWidth))
	}
	return nil
}

// DecodedWidth returns the number of bytes decoded per slot.
func (layout Layout) DecodedWidth() uint64 {
	if layout.DecodeWidth == 0 {
		return EntryWidth
	}
	return layout.DecodeWidth
}

// DecodeEntry decodes the entry at the beginning of `slot`. Up to
// [Layout.DecodedWidth] bytes are used; if fewer are available the entry is
// decoded from what's there.
func (layout Layout) DecodeEntry(slot []byte) uint64 {
	if width := layout.DecodedWidth(); uint64(len(slot)) > width {
		slot = slot[:width]
	}
	if len(slot) == EntryWidth {
		return layout.ByteOrder.Uint64(slot)
	}

	var padded [EntryWidth]byte
	if layout.ByteOrder == binary.BigEndian {
		copy(padded[EntryWidth-len(slot):], slot)
	} else {
		copy(padded[:], slot)
	}
	return layout.ByteOrder.Uint64(padded[:])
}
