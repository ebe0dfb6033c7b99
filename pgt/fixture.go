package pgt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/utilities/compression"
)

// ParseFixture reads tables written by [WriteTable] back in. Only the address
// and entries of each table are filled in.
//
// A header line starts a new table, even if the previous one wasn't ended by
// a blank line. Run lines outside of a table and tables that appear twice are
// errors.
func ParseFixture(input io.Reader) ([]Table, error) {
	scanner := bufio.NewScanner(input)
	tables := []Table{}
	seen := VisitedSet{}
	var current *Table

	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			current = nil

		case strings.HasPrefix(line, "@"):
			addr, err := strconv.ParseUint(line[1:], 0, 64)
			if err != nil {
				return nil, fixtureError(lineNumber, fmt.Sprintf("bad table address %q", line)).Wrap(err)
			}
			if !seen.Add(addr) {
				return nil, fixtureError(lineNumber, fmt.Sprintf("table 0x%X appears twice", addr))
			}
			tables = append(tables, Table{Address: addr, Entries: []uint64{}})
			current = &tables[len(tables)-1]

		default:
			if current == nil {
				return nil, fixtureError(lineNumber, "entries outside of a table")
			}
			run, err := compression.ParseRun(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
			if len(current.Entries)+run.Count > MaxPageSize {
				return nil, pgtdump.ErrArgumentOutOfRange.WithMessage(
					fmt.Sprintf(
						"line %d: table 0x%X has more than %d entries",
						lineNumber,
						current.Address,
						MaxPageSize,
					),
				)
			}
			current.Entries, err = run.AppendValues(current.Entries)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, pgtdump.ErrIOFailed.Wrap(err)
	}
	return tables, nil
}

func fixtureError(lineNumber int, message string) pgtdump.DumpError {
	return pgtdump.ErrInvalidArgument.WithMessage(fmt.Sprintf("line %d: %s", lineNumber, message))
}

// BuildImage lays out `tables` in a raw physical memory image, each table at
// its own address. The image starts at the returned base address, which is
// the lowest table address rounded down to a page boundary. Every entry takes
// [Layout.DecodedWidth] bytes at its slot's offset.
//
// It fails if a table has more entries than fit in a page, or if two tables
// overlap.
func BuildImage(tables []Table, layout Layout) ([]byte, uint64, error) {
	if err := layout.Validate(); err != nil {
		return nil, 0, err
	}
	if len(tables) == 0 {
		return []byte{}, 0, nil
	}

	base := tables[0].Address
	end := uint64(0)
	slotsPerTable := (layout.PageSize + layout.PTESize - 1) / layout.PTESize
	for _, table := range tables {
		if uint64(len(table.Entries)) > slotsPerTable {
			return nil, 0, pgtdump.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf(
					"table 0x%X has %d entries, but only %d fit in a page",
					table.Address,
					len(table.Entries),
					slotsPerTable,
				),
			)
		}
		tableEnd := table.Address + layout.PageSize
		if tableEnd < table.Address {
			return nil, 0, pgtdump.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf("table 0x%X extends past the end of the address space", table.Address))
		}
		if tableEnd > end {
			end = tableEnd
		}
		if table.Address < base {
			base = table.Address
		}
	}
	base -= base % layout.PageSize

	sorted := make([]Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Address-sorted[i-1].Address < layout.PageSize {
			return nil, 0, pgtdump.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"tables 0x%X and 0x%X overlap",
					sorted[i-1].Address,
					sorted[i].Address,
				),
			)
		}
	}

	image := make([]byte, end-base)
	for _, table := range tables {
		tableStart := table.Address - base
		tableEnd := tableStart + layout.PageSize
		for i, value := range table.Entries {
			offset := tableStart + uint64(i)*layout.PTESize
			slotEnd := offset + layout.DecodedWidth()
			if slotEnd > tableEnd {
				slotEnd = tableEnd
			}
			encodeEntry(image[offset:slotEnd], layout.ByteOrder, value)
		}
	}
	return image, base, nil
}

// encodeEntry is the inverse of [Layout.DecodeEntry].
func encodeEntry(slot []byte, order binary.ByteOrder, value uint64) {
	var encoded [EntryWidth]byte
	order.PutUint64(encoded[:], value)

	if len(slot) == EntryWidth {
		copy(slot, encoded[:])
	} else if order == binary.BigEndian {
		copy(slot, encoded[EntryWidth-len(slot):])
	} else {
		copy(slot, encoded[:len(slot)])
	}
}

// CompareTables checks that `actual` holds the same tables as `expected`, in
// the same order. It returns an error describing the first difference.
func CompareTables(expected, actual []Table) error {
	for i := 0; i < len(expected) && i < len(actual); i++ {
		if expected[i].Address != actual[i].Address {
			return pgtdump.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"table %d: expected table 0x%X, got 0x%X",
					i,
					expected[i].Address,
					actual[i].Address,
				),
			)
		}

		expectedEntries := expected[i].Entries
		actualEntries := actual[i].Entries
		if len(expectedEntries) != len(actualEntries) {
			return pgtdump.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"table 0x%X: expected %d entries, got %d",
					expected[i].Address,
					len(expectedEntries),
					len(actualEntries),
				),
			)
		}
		for slot := range expectedEntries {
			if expectedEntries[slot] != actualEntries[slot] {
				return pgtdump.ErrInvalidArgument.WithMessage(
					fmt.Sprintf(
						"table 0x%X slot %d: expected %016X, got %016X",
						expected[i].Address,
						slot,
						expectedEntries[slot],
						actualEntries[slot],
					),
				)
			}
		}
	}

	if len(expected) != len(actual) {
		return pgtdump.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("expected %d tables, got %d", len(expected), len(actual)))
	}
	return nil
}
