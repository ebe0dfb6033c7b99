package compression

import (
	"fmt"
	"io"
)

// delta is the exact difference between two 64-bit values. Computing it in
// uint64 arithmetic would let wrap-around make unrelated values look like an
// arithmetic progression.
type delta struct {
	magnitude uint64
	negative  bool
}

func difference(a, b uint64) delta {
	if a >= b {
		return delta{magnitude: a - b}
	}
	return delta{magnitude: b - a, negative: true}
}

// rewind returns the value `steps` steps before `value`. The result is exact
// as long as the true result fits in a uint64, since the arithmetic is modular.
func (d delta) rewind(value uint64, steps int) uint64 {
	if d.negative {
		return value + d.magnitude*uint64(steps)
	}
	return value - d.magnitude*uint64(steps)
}

// Encoder writes a sequence of 64-bit values as run-length encoded lines.
//
// Call [Encoder.Insert] once for every value in order, then [Encoder.Flush]
// after the last one. After a flush the encoder can be reused for a new,
// unrelated sequence.
type Encoder struct {
	output io.Writer
	// history holds the most recently inserted values, most recent first. Only
	// the first `historySize` elements are valid.
	history     [2]uint64
	historySize int
	// repeat is one less than the number of values in the pending run. It's
	// always at least 1.
	repeat int
	err    error
}

// NewEncoder creates an [Encoder] that writes one line per run to `output`.
func NewEncoder(output io.Writer) *Encoder {
	return &Encoder{output: output, repeat: 1}
}

// Insert adds the next value of the sequence. Nothing is written until the run
// `value` belongs to is known to be complete.
//
// Write errors are sticky: once writing fails, every later call returns the
// same error.
func (enc *Encoder) Insert(value uint64) error {
	if enc.err != nil {
		return enc.err
	}

	if enc.historySize >= 2 {
		diff := difference(enc.history[0], enc.history[1])
		if difference(value, enc.history[0]) == diff {
			// Extends the current run. Don't write anything yet.
			enc.repeat++
		} else {
			enc.restart()
		}
	}

	enc.history[1] = enc.history[0]
	enc.history[0] = value
	if enc.historySize < 2 {
		enc.historySize++
	}
	return enc.err
}

// Flush writes out any pending run and resets the encoder.
func (enc *Encoder) Flush() error {
	if enc.err != nil {
		return enc.err
	}

	enc.restart()
	if enc.historySize > 0 {
		enc.emit(Run{Value: enc.history[0], Count: 1})
		enc.historySize = 0
	}
	return enc.err
}

// restart writes out the pending run, if there is one, and starts a new one.
//
// A pair of identical values is written as a run of two, but a pair of
// different values only becomes a run once a third value continues it. If the
// older of two values doesn't belong to any run it's written out on its own,
// and the newer one stays in the history as the possible start of a new run.
func (enc *Encoder) restart() {
	if enc.historySize >= 2 {
		diff := difference(enc.history[0], enc.history[1])
		if diff.magnitude == 0 {
			enc.emit(Run{Value: enc.history[0], Count: enc.repeat + 1})
			enc.historySize = 0
		} else if enc.repeat > 1 {
			enc.emit(Run{
				Value:      diff.rewind(enc.history[0], enc.repeat),
				Count:      enc.repeat + 1,
				Step:       diff.magnitude,
				Descending: diff.negative,
			})
			enc.historySize = 0
		}
	}

	if enc.historySize >= 2 {
		enc.emit(Run{Value: enc.history[1], Count: 1})
		enc.historySize = 1
	}
	enc.repeat = 1
}

func (enc *Encoder) emit(run Run) {
	if enc.err != nil {
		return
	}
	_, err := fmt.Fprintln(enc.output, run.String())
	if err != nil {
		enc.err = fmt.Errorf("failed to write run %s: %w", run, err)
	}
}

// EncodeValues is a convenience function that writes all of `values` to
// `output` as a single sequence.
func EncodeValues(values []uint64, output io.Writer) error {
	enc := NewEncoder(output)
	for _, value := range values {
		if err := enc.Insert(value); err != nil {
			return err
		}
	}
	return enc.Flush()
}
