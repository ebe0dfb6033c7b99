package compression

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/dargueta/pgtdump"
)

// MaxRunLength is the longest run [ParseRun] accepts. No table has more
// entries than this.
const MaxRunLength = 1 << 20

// Run is a single line of encoded output: `Count` values beginning with
// `Value`, each one `Step` larger (or smaller, if `Descending` is set) than the
// one before it.
type Run struct {
	// Value is the first value of the run.
	Value uint64
	// Count is the number of values in the run. A valid run always has this
	// set to 1 or greater.
	Count int
	// Step is the magnitude of the difference between consecutive values. It
	// is 0 for runs of identical values.
	Step uint64
	// Descending is true if the values in the run decrease.
	Descending bool
}

// String formats the run as one line of output, without the trailing newline.
func (r Run) String() string {
	if r.Count <= 1 {
		return fmt.Sprintf("%016X", r.Value)
	}
	if r.Step == 0 {
		return fmt.Sprintf("%016X*%d", r.Value, r.Count)
	}

	sign := '+'
	if r.Descending {
		sign = '-'
	}
	return fmt.Sprintf("%016X*%d%c%X", r.Value, r.Count, sign, r.Step)
}

// AppendValues expands the run and appends its values to `dst`.
//
// It fails if any value of the run falls outside the range of a uint64, which
// can only happen for runs that weren't produced by an [Encoder].
func (r Run) AppendValues(dst []uint64) ([]uint64, error) {
	if r.Count < 1 {
		return dst, pgtdump.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("run length must be at least 1, got %d", r.Count))
	}

	hi, span := bits.Mul64(r.Step, uint64(r.Count-1))
	if hi == 0 {
		if r.Descending && span > r.Value {
			hi = 1
		} else if !r.Descending {
			_, hi = bits.Add64(r.Value, span, 0)
		}
	}
	if hi != 0 {
		return dst, pgtdump.ErrResultOutOfRange.WithMessage(
			fmt.Sprintf("run %s leaves the range of a 64-bit value", r))
	}

	current := r.Value
	for i := 0; i < r.Count; i++ {
		dst = append(dst, current)
		if r.Descending {
			current -= r.Step
		} else {
			current += r.Step
		}
	}
	return dst, nil
}

// ParseRun parses a single line produced by [Run.String]. Leading and trailing
// whitespace is ignored.
func ParseRun(line string) (Run, error) {
	line = strings.TrimSpace(line)
	valueText, repeatText, isRepeated := strings.Cut(line, "*")

	value, err := strconv.ParseUint(valueText, 16, 64)
	if err != nil {
		return Run{}, malformedRun(line, err)
	}
	if !isRepeated {
		return Run{Value: value, Count: 1}, nil
	}

	run := Run{Value: value}
	countText := repeatText
	signIndex := strings.IndexAny(repeatText, "+-")
	if signIndex >= 0 {
		countText = repeatText[:signIndex]
		run.Descending = repeatText[signIndex] == '-'
		run.Step, err = strconv.ParseUint(repeatText[signIndex+1:], 16, 64)
		if err != nil {
			return Run{}, malformedRun(line, err)
		}
	}

	run.Count, err = strconv.Atoi(countText)
	if err != nil {
		return Run{}, malformedRun(line, err)
	}
	if run.Count < 1 {
		return Run{}, pgtdump.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("run %q has a repeat count less than 1", line))
	}
	if run.Count > MaxRunLength {
		return Run{}, pgtdump.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("run %q is longer than %d values", line, MaxRunLength))
	}
	if run.Step == 0 {
		run.Descending = false
	}
	return run, nil
}

func malformedRun(line string, err error) error {
	return pgtdump.ErrInvalidArgument.WithMessage(fmt.Sprintf("malformed run %q", line)).Wrap(err)
}
