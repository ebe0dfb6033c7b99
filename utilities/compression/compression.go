package compression

import (
	"bytes"
	"compress/gzip"
	"io"
)

// CompressImage compresses a memory image using RLE8 and gzip.
//
// The returned int64 gives the number of bytes written to the output stream. If
// an error occurred, the value is undefined and should not be used.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	// Memory images are mostly zeroes, so the highest compression level costs
	// next to nothing.
	gzWriter, err := gzip.NewWriterLevel(output, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	n, err := CompressRLE8(input, gzWriter)
	if err != nil {
		gzWriter.Close()
		return n, err
	}
	return n, gzWriter.Close()
}

// DecompressImage takes a gzipped, RLE8-encoded memory image and decompresses
// it to the original raw bytes.
//
// The returned int64 gives the number of bytes written to the output (i.e. the
// decompressed size of the image). If an error occurred, the value is undefined
// and should not be used.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, err
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// DecompressImageToBytes is a convenience function wrapping [DecompressImage].
// It returns the decompressed image in a new byte slice.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	buffer := bytes.Buffer{}
	_, err := DecompressImage(input, &buffer)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// GunzipToBytes decompresses a gzipped image that wasn't RLE8-encoded.
func GunzipToBytes(input io.Reader) ([]byte, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return nil, err
	}
	defer gzReader.Close()
	return io.ReadAll(gzReader)
}

// GzipImage compresses an image with gzip alone. Use [GunzipToBytes] to read
// it back.
func GzipImage(input io.Reader, output io.Writer) (int64, error) {
	gzWriter, err := gzip.NewWriterLevel(output, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(gzWriter, input)
	if err != nil {
		gzWriter.Close()
		return n, err
	}
	return n, gzWriter.Close()
}
