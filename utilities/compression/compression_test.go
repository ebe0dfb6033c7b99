package compression_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	c "github.com/dargueta/pgtdump/utilities/compression"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type imageC9nTestRunner struct {
	Name     string
	Function func(t *testing.T, d []byte)
}

type imageC9nTestData struct {
	Name string
	Data []byte
}

func TestRoundTripImageCompression(t *testing.T) {
	testRunners := []imageC9nTestRunner{
		{"to_stream", runRoundTripCompressionTest},
		{"to_bytes", runRoundTripCompressionToBytesTest},
	}

	randomData := make([]byte, 119)
	rand.Read(randomData)

	testData := []imageC9nTestData{
		{"homogenous", bytes.Repeat([]byte{100}, 9174)},
		{"empty", []byte{}},
		{"heterogenous", randomData},
	}

	for _, runner := range testRunners {
		t.Run(
			runner.Name,
			func(tSub *testing.T) {
				for _, data := range testData {
					tSub.Run(
						data.Name,
						func(tSubSub *testing.T) {
							runner.Function(tSubSub, data.Data)
						},
					)
				}
			},
		)
	}
}

func TestGzipImage(t *testing.T) {
	original := bytes.Repeat([]byte{0xa5, 0, 0, 0}, 300)

	compressed := bytes.Buffer{}
	n, err := c.GzipImage(bytes.NewReader(original), &compressed)
	require.NoError(t, err)
	assert.EqualValues(t, len(original), n)

	result, err := c.GunzipToBytes(&compressed)
	require.NoError(t, err)
	assert.Equal(t, original, result)
}

func TestDecompressImage__NotGzipped(t *testing.T) {
	_, err := c.DecompressImageToBytes(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func runRoundTripCompressionTest(t *testing.T, sourceData []byte) {
	sourceDataReader := bytes.NewReader(sourceData)
	compressed := bytes.Buffer{}

	rleSize, err := c.CompressImage(sourceDataReader, &compressed)
	require.NoError(t, err, "unexpected error while compressing")
	t.Logf(
		"image size after compression: %d -> %d (RLE8 %d)",
		len(sourceData),
		compressed.Len(),
		rleSize,
	)

	decompressedBuffer := make([]byte, len(sourceData))
	decompressedWriter := bytewriter.New(decompressedBuffer)

	n, err := c.DecompressImage(&compressed, decompressedWriter)
	require.NoError(t, err, "unexpected error while decompressing")
	assert.EqualValues(t, len(sourceData), n, "decompressed image has wrong size")
	assert.True(
		t, bytes.Equal(sourceData, decompressedBuffer), "decompressed data is wrong")
}

func runRoundTripCompressionToBytesTest(t *testing.T, originalData []byte) {
	compressed := bytes.Buffer{}
	_, err := c.CompressImage(bytes.NewReader(originalData), &compressed)
	require.NoError(t, err, "error while compressing")
	t.Logf("image compressed %d -> %d", len(originalData), compressed.Len())

	decompressed, err := c.DecompressImageToBytes(&compressed)
	require.NoError(t, err, "error while decompressing")

	assert.Equal(
		t, len(originalData), len(decompressed), "decompressed data length is wrong")
	if len(originalData) > 0 {
		assert.Equal(t, originalData, decompressed, "decompressed data is wrong")
	}
}
