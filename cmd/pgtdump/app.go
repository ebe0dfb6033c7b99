package main

import (
	"fmt"
	"strconv"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/arch"
	"github.com/dargueta/pgtdump/dumpfile"
	"github.com/dargueta/pgtdump/pgt"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const envPrefix = "PGTDUMP_"

func envVars(name string) []string {
	return []string{envPrefix + name}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pgtdump",
		Usage: "Dump the page tables of a memory dump",
		Description: "Walks the page table hierarchy starting at ROOT_PGT and prints every\n" +
			"table in run-length encoded form. ROOT_PGT may be written in any base\n" +
			"(0x1000, 0o10000, 4096). It can be left out for kdump ELF files carrying\n" +
			"a VMCOREINFO note.",
		ArgsUsage: "DUMP_FILE [ROOT_PGT]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Value:   string(dumpfile.FormatAuto),
				Usage:   "dump file format: auto, elf, raw, gzip, rle8gz",
				EnvVars: envVars("FORMAT"),
			},
			&cli.StringFlag{
				Name:    "arch",
				Usage:   "paging profile to use instead of the one the dump implies",
				EnvVars: envVars("ARCH"),
			},
			&cli.Uint64Flag{
				Name:    "page-size",
				Usage:   "override the page size, in bytes",
				EnvVars: envVars("PAGE_SIZE"),
			},
			&cli.Uint64Flag{
				Name:    "pte-size",
				Usage:   "override the size of a page table entry, in bytes",
				EnvVars: envVars("PTE_SIZE"),
			},
			&cli.StringFlag{
				Name:    "byte-order",
				Usage:   "override the byte order: little or big",
				EnvVars: envVars("BYTE_ORDER"),
			},
			&cli.Uint64Flag{
				Name:    "base-address",
				Usage:   "physical address of the first byte of a raw image",
				EnvVars: envVars("BASE_ADDRESS"),
			},
			&cli.IntFlag{
				Name:    "max-level",
				Usage:   "deepest level to dump, the root being level 1 (default: from the paging profile)",
				EnvVars: envVars("MAX_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "no-mmap",
				Usage:   "read the dump through a page cache instead of mapping it",
				EnvVars: envVars("NO_MMAP"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log progress to stderr",
				EnvVars: envVars("VERBOSE"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "log every table read to stderr",
				EnvVars: envVars("DEBUG"),
			},
		},
		Before: configureLogging,
		Action: dumpTables,
		Commands: []*cli.Command{
			{
				Name:      "verify",
				Usage:     "Compare the page tables in a dump with a fixture file",
				ArgsUsage: "DUMP_FILE ROOT_PGT FIXTURE_FILE",
				Description: "Global options such as --format and --max-level go before the\n" +
					"command name: pgtdump --format raw verify DUMP_FILE ROOT_PGT FIXTURE_FILE",
				Action: verifyTables,
			},
			{
				Name:      "mkimage",
				Usage:     "Build a raw memory image holding the tables of a fixture file",
				ArgsUsage: "FIXTURE_FILE OUTPUT_FILE",
				Description: "Global options such as --byte-order and --page-size go before the\n" +
					"command name: pgtdump --byte-order big mkimage FIXTURE_FILE OUTPUT_FILE\n\n" +
					"The image starts at the lowest table address rounded down to a page.\n" +
					"That address is printed as the --base-address to read the image with.",
				Action: makeImage,
			},
		},
	}
}

func configureLogging(context *cli.Context) error {
	log.SetOutput(context.App.ErrWriter)
	switch {
	case context.Bool("debug"):
		log.SetLevel(log.DebugLevel)
	case context.Bool("verbose"):
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
	return nil
}

func checkArgCount(context *cli.Context, min, max int) error {
	n := context.Args().Len()
	if n >= min && n <= max {
		return nil
	}

	expected := strconv.Itoa(min)
	if max != min {
		expected = fmt.Sprintf("%d or %d", min, max)
	}
	return pgtdump.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("expected %s arguments, got %d (see --help)", expected, n))
}

// selectedProfile returns the profile named by --arch, or nil if the flag
// isn't set.
func selectedProfile(context *cli.Context) (*arch.Profile, error) {
	name := context.String("arch")
	if name == "" {
		return nil, nil
	}
	return arch.Lookup(name)
}

func openDump(context *cli.Context, path string) (*dumpfile.Dump, error) {
	format, err := dumpfile.ParseFormat(context.String("format"))
	if err != nil {
		return nil, err
	}
	profile, err := selectedProfile(context)
	if err != nil {
		return nil, err
	}

	return dumpfile.Open(path, dumpfile.Options{
		Format:      format,
		Profile:     profile,
		ByteOrder:   context.String("byte-order"),
		PageSize:    context.Uint64("page-size"),
		PTEValSize:  context.Uint64("pte-size"),
		BaseAddress: context.Uint64("base-address"),
		DisableMmap: context.Bool("no-mmap"),
		Logger:      log.NewEntry(log.StandardLogger()),
	})
}

// parseRootAddress parses the root table argument, accepting any base Go
// integer literals can be written in. If the argument is empty, the address
// is taken from the dump instead.
func parseRootAddress(text string, dump *dumpfile.Dump) (uint64, error) {
	if text == "" {
		root, err := dump.RootTableAddress()
		if err != nil {
			return 0, fmt.Errorf("no root page table given: %w", err)
		}
		log.WithField("root", fmt.Sprintf("0x%X", root)).Info("found root page table in VMCOREINFO")
		return root, nil
	}

	root, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, pgtdump.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bad root page table address %q", text)).Wrap(err)
	}
	return root, nil
}

func newWalker(context *cli.Context, dump *dumpfile.Dump) (*pgt.Walker, error) {
	layout, err := pgt.ResolveLayout(dump)
	if err != nil {
		return nil, err
	}

	profile := dump.Profile()
	if profile == nil {
		profile = arch.Default()
	}
	maxLevel := context.Int("max-level")
	if maxLevel == 0 {
		maxLevel = profile.Levels
	}

	log.WithFields(log.Fields{
		"profile":   profile.Name,
		"page_size": layout.PageSize,
		"pte_size":  layout.PTESize,
		"max_level": maxLevel,
	}).Info("walking page tables")

	return pgt.NewWalker(dump, layout, pgt.Options{
		Format:   profile,
		MaxLevel: maxLevel,
		Logger:   log.NewEntry(log.StandardLogger()),
	})
}

func logStats(stats pgt.Stats) {
	log.WithFields(log.Fields{
		"tables":     stats.Tables,
		"entries":    stats.Entries,
		"pointers":   stats.Pointers,
		"unexpanded": stats.Unexpanded,
	}).Info("walk finished")
}

// closeDump closes `dump`, reporting the failure through `err` unless an
// earlier error is already there.
func closeDump(dump *dumpfile.Dump, err *error) {
	closeErr := dump.Close()
	if closeErr != nil && *err == nil {
		*err = closeErr
	}
}
