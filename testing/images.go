package testing

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dargueta/pgtdump/utilities/compression"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// CreateRandomImage creates an image with the given number of pages and bytes
// per page. It is guaranteed to either return a valid slice or fail the test
// and abort.
func CreateRandomImage(bytesPerPage, totalPages uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerPage*totalPages)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d pages of size %d with random bytes",
		totalPages,
		bytesPerPage,
	)
	return backingData
}

// ImageBuilder lays out page tables in a raw physical memory image. The image
// starts at physical address 0 and has a fixed size; writing past the end of
// it fails the test.
type ImageBuilder struct {
	t         *testing.T
	data      []byte
	stream    io.WriteSeeker
	pageSize  uint64
	byteOrder binary.ByteOrder
}

// NewImageBuilder creates a zero-filled image of `totalPages` pages.
func NewImageBuilder(
	t *testing.T, pageSize uint64, totalPages uint, byteOrder binary.ByteOrder,
) *ImageBuilder {
	data := make([]byte, pageSize*uint64(totalPages))
	return &ImageBuilder{
		t:         t,
		data:      data,
		stream:    bytesextra.NewReadWriteSeeker(data),
		pageSize:  pageSize,
		byteOrder: byteOrder,
	}
}

// PageSize returns the size of a page in the image, in bytes.
func (builder *ImageBuilder) PageSize() uint64 {
	return builder.pageSize
}

// SetEntry writes one 8-byte entry into slot `index` of the table at `table`.
func (builder *ImageBuilder) SetEntry(table uint64, index int, value uint64) *ImageBuilder {
	var encoded [8]byte
	builder.byteOrder.PutUint64(encoded[:], value)
	builder.WriteAt(table+uint64(index)*8, encoded[:])
	return builder
}

// SetTable writes all of `entries` into the table at `table`, starting from
// slot 0.
func (builder *ImageBuilder) SetTable(table uint64, entries []uint64) *ImageBuilder {
	for i, value := range entries {
		builder.SetEntry(table, i, value)
	}
	return builder
}

// WriteAt copies raw bytes into the image at physical address `addr`.
func (builder *ImageBuilder) WriteAt(addr uint64, data []byte) {
	_, err := builder.stream.Seek(int64(addr), io.SeekStart)
	require.NoErrorf(builder.t, err, "failed to seek to 0x%X", addr)

	n, err := builder.stream.Write(data)
	require.NoErrorf(builder.t, err, "failed to write %d bytes at 0x%X", len(data), addr)
	require.Equalf(builder.t, len(data), n, "short write at 0x%X", addr)
}

// Bytes returns the image. The slice is shared with the builder.
func (builder *ImageBuilder) Bytes() []byte {
	return builder.data
}

// WriteFile writes the image into a new file in a temporary directory and
// returns its path. Names ending in `.rle8.gz` get an RLE8-and-gzip packed
// image.
func (builder *ImageBuilder) WriteFile(name string) string {
	return WriteImageFile(builder.t, name, builder.data)
}

// WriteImageFile writes `data` into a file named `name` in a temporary
// directory that is removed when the test ends. Names ending in `.rle8.gz`
// are packed with [compression.CompressImage].
func WriteImageFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)

	contents := data
	if strings.HasSuffix(name, ".rle8.gz") {
		packed := bytes.Buffer{}
		_, err := compression.CompressImage(bytes.NewReader(data), &packed)
		require.NoError(t, err, "failed to pack image")
		contents = packed.Bytes()
	}

	err := os.WriteFile(path, contents, 0o600)
	require.NoErrorf(t, err, "failed to write image to %s", path)
	return path
}

// LoadPackedImage takes an RLE8-and-gzip packed image and returns the
// unpacked bytes, failing the test if they aren't `pageSize * totalPages`
// bytes long.
func LoadPackedImage(
	t *testing.T, packedImageBytes []byte, pageSize, totalPages uint,
) []byte {
	require.Greater(t, len(packedImageBytes), 0, "packed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(bytes.NewBuffer(packedImageBytes))
	require.NoError(t, err)

	require.Equal(
		t,
		totalPages*pageSize,
		uint(len(imageBytes)),
		"unpacked image is wrong size",
	)
	return imageBytes
}
