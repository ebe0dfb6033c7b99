package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/arch"
	"github.com/dargueta/pgtdump/pgt"
	"github.com/dargueta/pgtdump/utilities/compression"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func dumpTables(context *cli.Context) (err error) {
	if err = checkArgCount(context, 1, 2); err != nil {
		return err
	}

	dump, err := openDump(context, context.Args().Get(0))
	if err != nil {
		return err
	}
	defer closeDump(dump, &err)

	root, err := parseRootAddress(context.Args().Get(1), dump)
	if err != nil {
		return err
	}
	walker, err := newWalker(context, dump)
	if err != nil {
		return err
	}

	// Whatever was written before a failure is still flushed, so the output
	// shows how far the walk got.
	output := bufio.NewWriter(context.App.Writer)
	stats, err := walker.Dump(root, output)
	if flushErr := output.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return err
	}

	logStats(stats)
	return nil
}

func verifyTables(context *cli.Context) (err error) {
	if err = checkArgCount(context, 3, 3); err != nil {
		return err
	}

	expected, err := readFixture(context.Args().Get(2))
	if err != nil {
		return err
	}

	dump, err := openDump(context, context.Args().Get(0))
	if err != nil {
		return err
	}
	defer closeDump(dump, &err)

	root, err := parseRootAddress(context.Args().Get(1), dump)
	if err != nil {
		return err
	}
	walker, err := newWalker(context, dump)
	if err != nil {
		return err
	}

	actual := []pgt.Table{}
	stats, err := walker.Walk(root, func(table pgt.Table) error {
		actual = append(actual, pgt.Table{Address: table.Address, Entries: table.Entries})
		return nil
	})
	if err != nil {
		return err
	}
	logStats(stats)

	if err = pgt.CompareTables(expected, actual); err != nil {
		return fmt.Errorf("dump doesn't match %s: %w", context.Args().Get(2), err)
	}
	fmt.Fprintf(context.App.Writer, "%d tables match\n", len(actual))
	return nil
}

func readFixture(path string) ([]pgt.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	tables, err := pgt.ParseFixture(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tables, nil
}

func makeImage(context *cli.Context) error {
	if err := checkArgCount(context, 2, 2); err != nil {
		return err
	}
	fixturePath := context.Args().Get(0)
	outputPath := context.Args().Get(1)

	tables, err := readFixture(fixturePath)
	if err != nil {
		return err
	}
	layout, err := layoutFromFlags(context)
	if err != nil {
		return err
	}
	image, base, err := pgt.BuildImage(tables, layout)
	if err != nil {
		return err
	}

	n, err := writeImage(outputPath, image)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"tables":       len(tables),
		"base_address": fmt.Sprintf("0x%X", base),
		"image_size":   len(image),
		"file_size":    n,
	}).Info("wrote image")

	_, err = fmt.Fprintf(context.App.Writer, "--base-address 0x%X\n", base)
	return err
}

type attributeMap map[string]uint64

func (attrs attributeMap) Attr(name string) (uint64, error) {
	value, ok := attrs[name]
	if !ok {
		return 0, pgtdump.ErrNotFound.WithMessage(name)
	}
	return value, nil
}

// layoutFromFlags builds the layout of an image from the selected profile and
// any overrides given on the command line.
func layoutFromFlags(context *cli.Context) (pgt.Layout, error) {
	profile, err := selectedProfile(context)
	if err != nil {
		return pgt.Layout{}, err
	}
	if profile == nil {
		profile = arch.Default()
	}

	attrs, err := profile.Attributes()
	if err != nil {
		return pgt.Layout{}, err
	}
	if name := context.String("byte-order"); name != "" {
		attrs[pgtdump.AttrByteOrder], err = arch.ParseByteOrder(name)
		if err != nil {
			return pgt.Layout{}, err
		}
	}
	if pageSize := context.Uint64("page-size"); pageSize != 0 {
		attrs[pgtdump.AttrPageSize] = pageSize
	}
	if pteSize := context.Uint64("pte-size"); pteSize != 0 {
		attrs[pgtdump.AttrPTEValSize] = pteSize
	}
	return pgt.ResolveLayout(attributeMap(attrs))
}

// writeImage writes `image` to `path`, packing it if the name ends in
// `.rle8.gz` or `.gz`. It returns the size of the file.
func writeImage(path string, image []byte) (int, error) {
	var pack func(input io.Reader, output io.Writer) (int64, error)
	switch {
	case strings.HasSuffix(path, ".rle8.gz"):
		pack = compression.CompressImage
	case strings.HasSuffix(path, ".gz"):
		pack = compression.GzipImage
	}

	contents := image
	if pack != nil {
		packed := bytes.Buffer{}
		if _, err := pack(bytes.NewReader(image), &packed); err != nil {
			return 0, fmt.Errorf("failed to pack image: %w", err)
		}
		contents = packed.Bytes()
	}
	return len(contents), os.WriteFile(path, contents, 0o644)
}
