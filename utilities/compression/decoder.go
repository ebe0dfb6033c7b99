package compression

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DecodeValues reads lines written by an [Encoder] from `input` until EOF and
// returns the values they encode. Blank lines are skipped.
func DecodeValues(input io.Reader) ([]uint64, error) {
	scanner := bufio.NewScanner(input)
	values := []uint64{}

	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		run, err := ParseRun(line)
		if err != nil {
			return values, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		values, err = run.AppendValues(values)
		if err != nil {
			return values, fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return values, fmt.Errorf("error reading input: %w", err)
	}
	return values, nil
}
