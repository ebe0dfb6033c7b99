package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	pgttest "github.com/dargueta/pgtdump/testing"
	"github.com/dargueta/pgtdump/utilities/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertFile__RoundTrip(t *testing.T) {
	directory := t.TempDir()
	image := pgttest.CreateRandomImage(512, 16, t)
	copy(image[1024:], make([]byte, 4096))

	rawPath := filepath.Join(directory, "memory.img")
	packedPath := filepath.Join(directory, "memory.rle8.gz")
	unpackedPath := filepath.Join(directory, "unpacked.img")
	require.NoError(t, os.WriteFile(rawPath, image, 0o600))

	require.NoError(t, convertFile(rawPath, packedPath, compression.CompressImage))
	require.NoError(t, convertFile(packedPath, unpackedPath, compression.DecompressImage))

	packed, err := os.ReadFile(packedPath)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(image), "packing didn't shrink the image")

	unpacked, err := os.ReadFile(unpackedPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(image, unpacked), "unpacked image is wrong")
}

func TestConvertFile__Errors(t *testing.T) {
	directory := t.TempDir()

	err := convertFile(
		filepath.Join(directory, "missing.img"),
		filepath.Join(directory, "out.img"),
		compression.CompressImage,
	)
	assert.ErrorIs(t, err, os.ErrNotExist)

	notPacked := filepath.Join(directory, "plain.img")
	require.NoError(t, os.WriteFile(notPacked, []byte("plain bytes"), 0o600))
	err = convertFile(notPacked, filepath.Join(directory, "out.img"), compression.DecompressImage)
	assert.Error(t, err)
}
