// Package pgt walks page table hierarchies in a physical address space and
// writes them out in the text format understood by the fixture parser.
//
// The output consists of one block per table:
//
//	@0x1000
//	0000000000002063
//	0000000000000000*511
//
// The header gives the table's physical address in uppercase hex, the lines
// after it are the table's entries encoded with compression.Encoder, and a
// blank line ends the block. Tables appear in depth-first pre-order starting
// from the root.
package pgt

import (
	"fmt"
	"io"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/arch"
	"github.com/dargueta/pgtdump/utilities/compression"
	log "github.com/sirupsen/logrus"
)

// Table is a single page table read from the dump.
type Table struct {
	Address uint64
	Level   int
	// Entries holds the raw value of every slot, in slot order.
	Entries []uint64
	// Subtables holds the addresses of the lower-level tables the entries
	// point to, in slot order. Duplicates are kept.
	Subtables []uint64
}

// Stats summarizes a walk.
type Stats struct {
	Tables  int
	Entries int
	// Pointers counts entries that point to another table.
	Pointers int
	// Unexpanded counts pointers found in tables at the deepest level, which
	// aren't followed.
	Unexpanded int
}

type Options struct {
	// Format classifies entries. Defaults to the x86-64 profile.
	Format EntryFormat
	// MaxLevel is the deepest level that is dumped, with the root at level 1.
	// Defaults to [DefaultMaxLevel].
	MaxLevel int
	Logger   *log.Entry
}

// Walker reads page tables from a physical address space.
type Walker struct {
	source   pgtdump.PhysicalReader
	layout   Layout
	format   EntryFormat
	maxLevel int
	logger   *log.Entry
}

// NewWalker creates a walker reading tables from `source`.
func NewWalker(source pgtdump.PhysicalReader, layout Layout, options Options) (*Walker, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	walker := &Walker{
		source:   source,
		layout:   layout,
		format:   options.Format,
		maxLevel: options.MaxLevel,
		logger:   options.Logger,
	}
	if walker.format == nil {
		walker.format = arch.Default()
	}
	if walker.maxLevel == 0 {
		walker.maxLevel = DefaultMaxLevel
	} else if walker.maxLevel < 0 {
		return nil, pgtdump.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("maximum level must be positive, got %d", walker.maxLevel))
	}
	if walker.logger == nil {
		walker.logger = discardLogger()
	}
	return walker, nil
}

// MaxLevel returns the deepest level the walker dumps.
func (walker *Walker) MaxLevel() int {
	return walker.maxLevel
}

// ReadTable reads and decodes the table at `addr`. Failing to read the table
// is an error; nothing in the table itself is validated.
func (walker *Walker) ReadTable(addr uint64) (Table, error) {
	raw := make([]byte, walker.layout.PageSize)
	err := walker.source.ReadPhysical(addr, raw)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read page table at 0x%X: %w", addr, err)
	}

	table := Table{
		Address: addr,
		Entries: make([]uint64, 0, walker.layout.PageSize/walker.layout.PTESize+1),
	}
	for offset := uint64(0); offset < walker.layout.PageSize; offset += walker.layout.PTESize {
		end := offset + walker.layout.DecodedWidth()
		if end > walker.layout.PageSize {
			end = walker.layout.PageSize
		}

		value := walker.layout.DecodeEntry(raw[offset:end])
		if walker.format.IsTable(value) {
			table.Subtables = append(
				table.Subtables, walker.format.Address(value, walker.layout.PageSize))
		}
		table.Entries = append(table.Entries, value)
	}
	return table, nil
}

// Walk reads every table reachable from `root` and passes it to `visit`, in
// the order [Traverse] defines. The walk stops at the first error.
func (walker *Walker) Walk(root uint64, visit func(table Table) error) (Stats, error) {
	stats := Stats{}

	_, err := Traverse(root, walker.maxLevel, func(addr uint64, level int) ([]uint64, error) {
		table, err := walker.ReadTable(addr)
		if err != nil {
			return nil, err
		}
		table.Level = level

		walker.logger.WithFields(log.Fields{
			"address":   fmt.Sprintf("0x%X", addr),
			"level":     level,
			"subtables": len(table.Subtables),
		}).Debug("read page table")

		stats.Tables++
		stats.Entries += len(table.Entries)
		stats.Pointers += len(table.Subtables)
		if level >= walker.maxLevel {
			stats.Unexpanded += len(table.Subtables)
		}

		if err = visit(table); err != nil {
			return nil, err
		}
		return table.Subtables, nil
	})
	return stats, err
}

// Dump writes every table reachable from `root` to `output`.
func (walker *Walker) Dump(root uint64, output io.Writer) (Stats, error) {
	return walker.Walk(root, func(table Table) error {
		return WriteTable(output, table)
	})
}

// WriteTable writes a single table block: the header, the encoded entries,
// and a blank line.
func WriteTable(output io.Writer, table Table) error {
	_, err := fmt.Fprintf(output, "@0x%X\n", table.Address)
	if err != nil {
		return err
	}

	err = compression.EncodeValues(table.Entries, output)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(output)
	return err
}

func discardLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}
