package pgt

// EntryFormat interprets the bits of a page table entry.
type EntryFormat interface {
	// IsTable returns true if the entry points to a lower-level table.
	IsTable(pte uint64) bool
	// Address returns the physical address the entry points to.
	Address(pte uint64, pageSize uint64) uint64
}
