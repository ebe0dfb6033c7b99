package compression

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// maxRLE8GroupLength is the longest run a single RLE8 group can represent: two
// literal bytes plus a repeat count of 255.
const maxRLE8GroupLength = 257

// CompressRLE8 reads bytes from the input and writes compressed data to the
// output until the input is exhausted. The return value is the number of bytes
// written, only valid if no error occurred.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := NewRLEGrouper(input)
	writer := bufio.NewWriter(output)
	totalBytesWritten := int64(0)

	for {
		run, err := grouper.GetNextRun()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return totalBytesWritten, err
		}

		n, err := writeRLE8Run(writer, run)
		totalBytesWritten += n
		if err != nil {
			return totalBytesWritten, fmt.Errorf("failed to write to output: %w", err)
		}
	}
	return totalBytesWritten, writer.Flush()
}

// writeRLE8Run writes one run of bytes as as many RLE8 groups as it takes.
func writeRLE8Run(writer *bufio.Writer, run ByteRun) (int64, error) {
	written := int64(0)
	for run.RunLength >= 2 {
		groupLength := run.RunLength
		if groupLength > maxRLE8GroupLength {
			groupLength = maxRLE8GroupLength
		}

		n, err := writer.Write([]byte{run.Byte, run.Byte, byte(groupLength - 2)})
		written += int64(n)
		if err != nil {
			return written, err
		}
		run.RunLength -= groupLength
	}

	if run.RunLength == 1 {
		if err := writer.WriteByte(run.Byte); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// RLE8Reader is an io.Reader that expands RLE8-encoded data read from another
// stream.
type RLE8Reader struct {
	source *bufio.Reader
	// lastByte is the last literal byte read, or -1 if the next byte can't be
	// the second half of a pair.
	lastByte int
	// pendingByte is repeated `pendingCount` more times before any more input
	// is consumed.
	pendingByte  byte
	pendingCount int
}

// NewRLE8Reader returns a reader that decompresses `input`.
func NewRLE8Reader(input io.Reader) *RLE8Reader {
	return &RLE8Reader{source: bufio.NewReader(input), lastByte: -1}
}

// Read implements io.Reader. It returns io.ErrUnexpectedEOF (possibly wrapped)
// if the input ends in the middle of a group.
func (rd *RLE8Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if rd.pendingCount > 0 {
			p[n] = rd.pendingByte
			rd.pendingCount--
			n++
			continue
		}

		currentByte, err := rd.source.ReadByte()
		if errors.Is(err, io.EOF) {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		} else if err != nil {
			return n, fmt.Errorf("error reading input: %w", err)
		}

		if int(currentByte) != rd.lastByte {
			rd.lastByte = int(currentByte)
			p[n] = currentByte
			n++
			continue
		}

		// Got two bytes in a row that are the same. The next byte is a repeat
		// count.
		repeatCount, err := rd.source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf(
					"%w: missing repeat count after two %02x bytes",
					io.ErrUnexpectedEOF,
					currentByte,
				)
			}
			return n, err
		}

		// The first byte of the pair was already written out on the previous
		// iteration, so this is the second one plus the repeats.
		rd.pendingByte = currentByte
		rd.pendingCount = int(repeatCount) + 1

		// If we didn't reset this, runs of 258+ bytes would be decompressed
		// incorrectly, adding in extra bytes.
		rd.lastByte = -1
	}
	return n, nil
}

// DecompressRLE8 expands RLE8-encoded data from `input` into `output` and
// returns the number of bytes written.
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	return io.Copy(output, NewRLE8Reader(input))
}
