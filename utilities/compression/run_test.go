package compression_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/pgtdump"
	c "github.com/dargueta/pgtdump/utilities/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunString(t *testing.T) {
	assert.Equal(t, "0000000000001063", c.Run{Value: 0x1063, Count: 1}.String())
	assert.Equal(t, "0000000000000000*509", c.Run{Count: 509}.String())
	assert.Equal(
		t,
		"0000000000200083*3+200000",
		c.Run{Value: 0x200083, Count: 3, Step: 0x200000}.String(),
	)
	assert.Equal(
		t,
		"8000000000003000*4-1000",
		c.Run{Value: 0x8000000000003000, Count: 4, Step: 0x1000, Descending: true}.String(),
	)
}

func TestParseRun(t *testing.T) {
	tests := []struct {
		Line     string
		Expected c.Run
	}{
		{"0000000000001063", c.Run{Value: 0x1063, Count: 1}},
		{"0000000000000000*509", c.Run{Count: 509}},
		{"0000000000200083*3+200000", c.Run{Value: 0x200083, Count: 3, Step: 0x200000}},
		{
			"8000000000003000*4-1000",
			c.Run{Value: 0x8000000000003000, Count: 4, Step: 0x1000, Descending: true},
		},
		{"  00000000000000ff*2  ", c.Run{Value: 0xff, Count: 2}},
	}

	for _, test := range tests {
		run, err := c.ParseRun(test.Line)
		if assert.NoErrorf(t, err, "failed to parse %q", test.Line) {
			assert.Equalf(t, test.Expected, run, "wrong run for %q", test.Line)
		}
	}
}

func TestParseRun__Malformed(t *testing.T) {
	lines := []string{
		"",
		"@0x1000",
		"xyz",
		"0000000000001000*",
		"0000000000001000*0",
		"0000000000001000*-3",
		"0000000000001000*3+",
		"0000000000001000*3+zz",
		"10000000000000000",
	}

	for _, line := range lines {
		_, err := c.ParseRun(line)
		assert.ErrorIsf(t, err, pgtdump.ErrInvalidArgument, "parsing %q should fail", line)
	}
}

func TestParseRun__TooLong(t *testing.T) {
	run, err := c.ParseRun("0000000000000000*1048576")
	require.NoError(t, err)
	assert.Equal(t, c.MaxRunLength, run.Count)

	_, err = c.ParseRun("0000000000000000*99999999999")
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange)

	_, err = c.ParseRun("0000000000000000*1048577+1")
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange)
}

func TestRunAppendValues(t *testing.T) {
	values, err := c.Run{Value: 10, Count: 3, Step: 4, Descending: true}.AppendValues([]uint64{99})
	require.NoError(t, err)
	assert.Equal(t, []uint64{99, 10, 6, 2}, values)
}

func TestRunAppendValues__OutOfRange(t *testing.T) {
	_, err := c.Run{Value: 10, Count: 4, Step: 4, Descending: true}.AppendValues(nil)
	assert.ErrorIs(t, err, pgtdump.ErrResultOutOfRange)

	_, err = c.Run{Value: 0xFFFFFFFFFFFFFFF0, Count: 3, Step: 0x10}.AppendValues(nil)
	assert.ErrorIs(t, err, pgtdump.ErrResultOutOfRange)

	_, err = c.Run{Value: 1, Count: 3, Step: 0x8000000000000000}.AppendValues(nil)
	assert.ErrorIs(t, err, pgtdump.ErrResultOutOfRange)
}

func TestDecodeValues(t *testing.T) {
	input := "0000000000001000*3+1000\n\n0000000000003000*2\n0000000000009999\n"
	values, err := c.DecodeValues(bytes.NewBufferString(input))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x1000, 0x2000, 0x3000, 0x3000, 0x3000, 0x9999}, values)
}

func TestDecodeValues__ReportsLine(t *testing.T) {
	_, err := c.DecodeValues(bytes.NewBufferString("0000000000001000\nnope\n"))
	require.ErrorIs(t, err, pgtdump.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "line 2")
}
