package pgtdump

// Attribute names understood by dump readers. The names follow the
// attribute keys libkdumpfile exposes so fixtures produced from either tool
// describe the same thing.
const (
	AttrByteOrder  = "arch.byte_order"
	AttrPageSize   = "arch.page_size"
	AttrPTEValSize = "arch.pteval_size"
)

// Values of the [AttrByteOrder] attribute.
const (
	BigEndian    = uint64(0)
	LittleEndian = uint64(1)
)

// PhysicalReader is the interface for sources that can read from a physical
// address space.
type PhysicalReader interface {
	// ReadPhysical fills `buffer` with the bytes starting at physical address
	// `addr`. Implementations must either fill the entire buffer or return an
	// error; short reads are not allowed.
	ReadPhysical(addr uint64, buffer []byte) error
}

// AttributeSource is the interface for sources that describe the machine a
// memory image was captured from.
type AttributeSource interface {
	// Attr returns the numeric value of the named attribute. Unknown or unset
	// attributes must return an error wrapping [ErrNotFound].
	Attr(name string) (uint64, error)
}

// Dump is the interface implemented by opened memory images.
type Dump interface {
	PhysicalReader
	AttributeSource

	// Close frees all resources held by the dump. The dump must not be used
	// after this is called.
	Close() error
}
