// Package arch describes the paging layouts pgtdump knows how to walk.
//
// Profiles are loaded from an embedded table. All of them share the x86-64
// entry format: bit 0 marks an entry present, bit 7 marks a huge page, and
// the physical address is everything above the page offset except the top
// bit.
package arch

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dargueta/pgtdump"
	"github.com/gocarina/gocsv"
)

// DefaultProfileName is the profile used when neither the user nor the dump
// says otherwise.
const DefaultProfileName = "x86_64"

type Profile struct {
	Name string `csv:"name"`
	// ELFMachine is the e_machine value of ELF dumps using this profile. If
	// several profiles share a value, the first one in the table wins.
	ELFMachine uint   `csv:"elf_machine"`
	PageSize   uint64 `csv:"page_size"`
	// PTEValSize is the size of a single page table entry, in bytes.
	PTEValSize uint64 `csv:"pteval_size"`
	ByteOrder  string `csv:"byte_order"`
	// Levels gives the number of levels in the paging hierarchy, including the
	// root table.
	Levels         int    `csv:"levels"`
	PresentBit     uint   `csv:"present_bit"`
	HugePageBit    uint   `csv:"huge_bit"`
	AddressHighBit uint   `csv:"address_high_bit"`
	Notes          string `csv:"notes"`
}

// IsTable returns true if `pte` points to another page table: it must be
// present and must not map a huge page.
func (p *Profile) IsTable(pte uint64) bool {
	return pte&(1<<p.PresentBit) != 0 && pte&(1<<p.HugePageBit) == 0
}

// Address returns the physical address `pte` points to. Only the page offset
// bits and the top bit are masked off; other flag bits in between are kept.
func (p *Profile) Address(pte uint64, pageSize uint64) uint64 {
	return pte &^ (pageSize - 1) &^ (1 << p.AddressHighBit)
}

// ByteOrderAttr returns the profile's byte order as a value of the
// [pgtdump.AttrByteOrder] attribute.
func (p *Profile) ByteOrderAttr() (uint64, error) {
	return ParseByteOrder(p.ByteOrder)
}

// ParseByteOrder converts "little" or "big" to a value of the
// [pgtdump.AttrByteOrder] attribute.
func ParseByteOrder(name string) (uint64, error) {
	switch strings.ToLower(name) {
	case "little", "le":
		return pgtdump.LittleEndian, nil
	case "big", "be":
		return pgtdump.BigEndian, nil
	}
	return 0, pgtdump.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("unknown byte order %q", name))
}

// Attributes returns the dump attributes implied by the profile.
func (p *Profile) Attributes() (map[string]uint64, error) {
	byteOrder, err := p.ByteOrderAttr()
	if err != nil {
		return nil, err
	}
	return map[string]uint64{
		pgtdump.AttrByteOrder:  byteOrder,
		pgtdump.AttrPageSize:   p.PageSize,
		pgtdump.AttrPTEValSize: p.PTEValSize,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////

//go:embed profiles.csv
var profilesRawCSV string
var profiles []Profile
var profilesByName map[string]*Profile

// Lookup returns the profile with the given name.
func Lookup(name string) (*Profile, error) {
	profile, ok := profilesByName[name]
	if ok {
		return profile, nil
	}
	return nil, pgtdump.ErrNotFound.WithMessage(
		fmt.Sprintf("no paging profile named %q", name))
}

// ForELFMachine returns the first profile matching an ELF e_machine value.
func ForELFMachine(machine uint) (*Profile, error) {
	for i := range profiles {
		if profiles[i].ELFMachine == machine {
			return &profiles[i], nil
		}
	}
	return nil, pgtdump.ErrNotSupported.WithMessage(
		fmt.Sprintf("no paging profile for ELF machine type %d", machine))
}

// Default returns the profile named [DefaultProfileName].
func Default() *Profile {
	return profilesByName[DefaultProfileName]
}

// Names returns the names of all known profiles, in table order.
func Names() []string {
	names := make([]string, len(profiles))
	for i := range profiles {
		names[i] = profiles[i].Name
	}
	return names
}

func init() {
	csvReader := csv.NewReader(strings.NewReader(profilesRawCSV))
	csvReader.Comma = '|'

	if err := gocsv.UnmarshalCSV(csvReader, &profiles); err != nil {
		panic(fmt.Errorf("failed to decode paging profiles: %w", err))
	}

	profilesByName = make(map[string]*Profile, len(profiles))
	for i := range profiles {
		row := &profiles[i]
		if _, exists := profilesByName[row.Name]; exists {
			panic(
				fmt.Errorf(
					"duplicate definition for profile %q found on row %d",
					row.Name,
					i+1))
		}
		if row.PageSize == 0 || row.PageSize&(row.PageSize-1) != 0 {
			panic(fmt.Errorf("profile %q: page size %d isn't a power of 2", row.Name, row.PageSize))
		}
		profilesByName[row.Name] = row
	}

	if _, ok := profilesByName[DefaultProfileName]; !ok {
		panic(fmt.Errorf("default profile %q is missing", DefaultProfileName))
	}
}
