package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/pgtdump"
	pgttest "github.com/dargueta/pgtdump/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleFixture is the dump of the image built by writeSampleImage. The second
// table maps four 2 MiB pages, which aren't followed.
const sampleFixture = `@0x1000
0000000000002063
0000000000000000*511

@0x2000
0000000000000000*3
00000000001000E3*4+1000
0000000000000000*505

`

// runApp runs the command line with `args` and returns what it wrote to
// stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	output := bytes.Buffer{}
	app := newApp()
	app.Writer = &output
	app.ErrWriter = io.Discard

	err := app.Run(append([]string{"pgtdump"}, args...))
	return output.String(), err
}

func writeSampleImage(t *testing.T, name string) string {
	builder := pgttest.NewImageBuilder(t, 4096, 3, binary.LittleEndian)
	builder.SetEntry(0x1000, 0, 0x2063)
	for i := 0; i < 4; i++ {
		builder.SetEntry(0x2000, 3+i, 0x1000E3+uint64(i)*0x1000)
	}
	return builder.WriteFile(name)
}

func TestDumpTables(t *testing.T) {
	for _, name := range []string{"memory.img", "memory.rle8.gz"} {
		t.Run(name, func(t *testing.T) {
			path := writeSampleImage(t, name)

			output, err := runApp(t, path, "0x1000")
			require.NoError(t, err)
			assert.Equal(t, sampleFixture, output)

			output, err = runApp(t, "--no-mmap", "--debug", path, "4096")
			require.NoError(t, err)
			assert.Equal(t, sampleFixture, output)
		})
	}
}

func TestDumpTables__Options(t *testing.T) {
	path := writeSampleImage(t, "memory.img")

	output, err := runApp(t, "--max-level", "1", path, "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "@0x1000\n0000000000002063\n0000000000000000*511\n\n", output)

	// Shifting the image up moves the tables with it, so the table at
	// physical 0x1000 is the image's first page.
	output, err = runApp(t, "--base-address", "0x1000", "--max-level", "1", path, "0x2000")
	require.NoError(t, err)
	assert.Equal(t, "@0x2000\n0000000000002063\n0000000000000000*511\n\n", output)

	t.Setenv("PGTDUMP_MAX_LEVEL", "1")
	output, err = runApp(t, path, "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "@0x1000\n0000000000002063\n0000000000000000*511\n\n", output)
}

func TestDumpTables__Errors(t *testing.T) {
	path := writeSampleImage(t, "memory.img")

	_, err := runApp(t)
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument, "no arguments")

	_, err = runApp(t, path, "0x1000", "extra")
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument, "too many arguments")

	_, err = runApp(t, path, "pml4")
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument, "bad root address")

	_, err = runApp(t, path)
	assert.ErrorIs(t, err, pgtdump.ErrNotFound, "raw image has no VMCOREINFO")

	_, err = runApp(t, "--arch", "vax", path, "0x1000")
	assert.ErrorIs(t, err, pgtdump.ErrNotFound, "unknown profile")

	_, err = runApp(t, "--format", "lkcd", path, "0x1000")
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument, "unknown format")

	_, err = runApp(t, "--page-size", "1099511627776", path, "0x1000")
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange, "page size too big")

	output, err := runApp(t, path, "0x100000")
	assert.ErrorIs(t, err, pgtdump.ErrAddressNotPresent, "root outside the image")
	assert.Empty(t, output)
}

func TestVerifyTables(t *testing.T) {
	path := writeSampleImage(t, "memory.img")
	fixturePath := filepath.Join(t.TempDir(), "tables.txt")
	require.NoError(t, os.WriteFile(fixturePath, []byte(sampleFixture), 0o600))

	output, err := runApp(t, "verify", path, "0x1000", fixturePath)
	require.NoError(t, err)
	assert.Equal(t, "2 tables match\n", output)

	_, err = runApp(t, "--max-level", "1", "verify", path, "0x1000", fixturePath)
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument)
	assert.ErrorContains(t, err, "expected 2 tables, got 1")

	_, err = runApp(t, "verify", path, "0x1000")
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument)
}

func TestCommandOptionPlacement(t *testing.T) {
	path := writeSampleImage(t, "memory.img")
	fixturePath := filepath.Join(t.TempDir(), "tables.txt")
	require.NoError(t, os.WriteFile(fixturePath, []byte(sampleFixture), 0o600))

	output, err := runApp(t, "--format", "raw", "--max-level", "4", "verify", path, "0x1000", fixturePath)
	require.NoError(t, err)
	assert.Equal(t, "2 tables match\n", output)

	_, err = runApp(t, "verify", "--format", "raw", path, "0x1000", fixturePath)
	assert.ErrorContains(t, err, "flag provided but not defined")

	for _, command := range []string{"verify", "mkimage"} {
		output, err = runApp(t, command, "--help")
		require.NoError(t, err)
		assert.Containsf(t, output, "go before the", "%s help", command)
		assert.Containsf(t, output, "command name: pgtdump --", "%s help", command)
	}
}

func TestMakeImage(t *testing.T) {
	directory := t.TempDir()
	fixturePath := filepath.Join(directory, "tables.txt")
	require.NoError(t, os.WriteFile(fixturePath, []byte(sampleFixture), 0o600))

	for _, name := range []string{"rebuilt.img", "rebuilt.gz", "rebuilt.rle8.gz"} {
		t.Run(name, func(t *testing.T) {
			imagePath := filepath.Join(directory, name)
			output, err := runApp(t, "mkimage", fixturePath, imagePath)
			require.NoError(t, err)
			assert.Equal(t, "--base-address 0x1000\n", output)

			output, err = runApp(t, "--base-address", "0x1000", imagePath, "0x1000")
			require.NoError(t, err)
			assert.Equal(t, sampleFixture, output)
		})
	}

	// The image starts at the lowest table, not at physical address 0.
	rawImage, err := os.ReadFile(filepath.Join(directory, "rebuilt.img"))
	require.NoError(t, err)
	assert.Len(t, rawImage, 0x2000)

	// Big-endian images hold the same values with their bytes swapped.
	bigEndianPath := filepath.Join(directory, "big.img")
	_, err = runApp(t, "--byte-order", "big", "mkimage", fixturePath, bigEndianPath)
	require.NoError(t, err)

	bigEndianImage, err := os.ReadFile(bigEndianPath)
	require.NoError(t, err)
	assert.EqualValues(t, 0x2063, binary.BigEndian.Uint64(bigEndianImage))

	output, err := runApp(t, "--byte-order", "be", "--base-address", "0x1000", bigEndianPath, "0x1000")
	require.NoError(t, err)
	assert.Equal(t, sampleFixture, output)
}

func TestMakeImage__Errors(t *testing.T) {
	directory := t.TempDir()
	fixturePath := filepath.Join(directory, "tables.txt")
	require.NoError(t, os.WriteFile(fixturePath, []byte("0000000000000001\n"), 0o600))

	_, err := runApp(t, "mkimage", fixturePath, filepath.Join(directory, "out.img"))
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument)
	assert.ErrorContains(t, err, "line 1")

	_, err = runApp(t, "mkimage", filepath.Join(directory, "missing.txt"), "out.img")
	assert.ErrorIs(t, err, os.ErrNotExist)

	goodFixturePath := filepath.Join(directory, "good.txt")
	require.NoError(t, os.WriteFile(goodFixturePath, []byte(sampleFixture), 0o600))
	_, err = runApp(t, "--byte-order", "pdp", "mkimage", goodFixturePath, "out.img")
	assert.ErrorIs(t, err, pgtdump.ErrInvalidArgument)

	_, err = runApp(t, "--page-size", "16", "mkimage", goodFixturePath, "out.img")
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange, "tables don't fit in a page")

	_, err = runApp(t, "--page-size", "1099511627776", "mkimage", goodFixturePath, "out.img")
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange, "page size too big")
}
