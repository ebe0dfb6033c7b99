package compression

import (
	"bufio"
	"errors"
	"io"
)

// ByteRun represents a single run of a particular byte value.
type ByteRun struct {
	// Byte is the byte value for this run.
	Byte byte
	// RunLength gives the number of times the byte occurs in the run (not the
	// number of times it's repeated).
	//
	// A valid run will always have this be 1 or greater. A value less than 1
	// indicates either EOF was encountered, or an error occurred.
	RunLength int
}

// InvalidRLERun is returned by [RLEGrouper.GetNextRun] when no run could be
// read.
var InvalidRLERun = ByteRun{Byte: 0, RunLength: 0}

// RLEGrouper splits a byte stream into runs of identical bytes.
type RLEGrouper struct {
	rd *bufio.Reader
}

func NewRLEGrouper(rd io.Reader) RLEGrouper {
	return RLEGrouper{rd: bufio.NewReader(rd)}
}

// GetNextRun returns a [ByteRun] for the next byte or run of byte values in the
// stream. At the end of the stream it returns [InvalidRLERun] and io.EOF.
func (grouper RLEGrouper) GetNextRun() (ByteRun, error) {
	firstByte, err := grouper.rd.ReadByte()
	if err != nil {
		return InvalidRLERun, err
	}

	runLength := 1
	for {
		currentByte, err := grouper.rd.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return InvalidRLERun, err
		}

		if currentByte != firstByte {
			// Hit a different byte, back up and return.
			grouper.rd.UnreadByte()
			break
		}
		runLength++
	}
	return ByteRun{Byte: firstByte, RunLength: runLength}, nil
}
