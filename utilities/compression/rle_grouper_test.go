package compression_test

import (
	"bytes"
	"io"
	"testing"

	c "github.com/dargueta/pgtdump/utilities/compression"
	"github.com/stretchr/testify/assert"
)

type BasicTestCase struct {
	Data           []byte
	ExpectedResult c.ByteRun
	Name           string
}

var basicTestCases = []BasicTestCase{
	{[]byte{}, c.InvalidRLERun, "empty"},
	{[]byte{0, 0, 1, 0, 0, 0, 0}, c.ByteRun{Byte: byte(0), RunLength: 2}, "two initial"},
	{[]byte{6, 1, 5, 20, 31}, c.ByteRun{Byte: byte(6), RunLength: 1}, "one byte"},
	{[]byte{9, 9, 9, 9, 9, 9}, c.ByteRun{Byte: byte(9), RunLength: 6}, "entire run"},
}

func TestRLEGrouper__Basic(t *testing.T) {
	for _, test := range basicTestCases {
		t.Run(
			test.Name,
			func(t *testing.T) {
				grouper := c.NewRLEGrouper(bytes.NewBuffer(test.Data))
				result, _ := grouper.GetNextRun()
				assert.Equal(t, test.ExpectedResult, result)
			},
		)
	}
}

func TestRLEGrouper__Sequence(t *testing.T) {
	data := []byte{1, 9, 4, 4, 4, 4, 4, 6, 6, 0, 1, 0, 0, 0}
	expected := []c.ByteRun{
		{Byte: 1, RunLength: 1},
		{Byte: 9, RunLength: 1},
		{Byte: 4, RunLength: 5},
		{Byte: 6, RunLength: 2},
		{Byte: 0, RunLength: 1},
		{Byte: 1, RunLength: 1},
		{Byte: 0, RunLength: 3},
	}

	grouper := c.NewRLEGrouper(bytes.NewBuffer(data))
	for i, expectedRun := range expected {
		result, err := grouper.GetNextRun()
		assert.NoErrorf(t, err, "run %d failed", i)
		assert.Equalf(t, expectedRun, result, "run %d is wrong", i)
	}

	result, err := grouper.GetNextRun()
	assert.Equal(t, c.InvalidRLERun, result)
	assert.ErrorIs(t, err, io.EOF)
}
