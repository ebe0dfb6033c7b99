package pagecache_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/dumpfile/pagecache"
	pgttest "github.com/dargueta/pgtdump/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test page fetch functionality with no trickery such as reading past the end
// of the image.
func TestPageCache__Fetch__Basic(t *testing.T) {
	rawPages := pgttest.CreateRandomImage(128, 64, t)
	cache := pgttest.CreateDefaultCache(128, rawPages, t)

	currentPage := make([]byte, 128)
	for i := 0; i < 64; i++ {
		_, err := cache.ReadAt(currentPage, int64(i*128))
		if err != nil {
			t.Errorf("failed to read page %d of [0, 64): %s", i, err.Error())
			continue
		}

		start := i * 128
		if !bytes.Equal(currentPage, rawPages[start:start+128]) {
			t.Errorf("page %d read from the cache doesn't match", i)
		}
	}
	assert.EqualValues(t, 64, cache.LoadedPages())
}

// Reads that straddle page boundaries must stitch the pages together.
func TestPageCache__Fetch__Unaligned(t *testing.T) {
	rawPages := pgttest.CreateRandomImage(64, 8, t)
	cache := pgttest.CreateDefaultCache(64, rawPages, t)

	buffer := make([]byte, 150)
	nRead, err := cache.ReadAt(buffer, 37)
	require.NoError(t, err)
	assert.Equal(t, len(buffer), nRead)
	assert.True(t, bytes.Equal(rawPages[37:187], buffer), "data is wrong")

	for i := uint(0); i < 8; i++ {
		assert.Equalf(t, i <= 2, cache.IsLoaded(i), "page %d", i)
	}
	assert.False(t, cache.IsLoaded(8), "page past the end is loaded")
}

// Trying to read past the end of an image must fail.
func TestPageCache__Fetch__ReadPastEnd(t *testing.T) {
	cache := pgttest.CreateDefaultCache(512, make([]byte, 8192), t)
	buffer := make([]byte, 512)

	// Read the first page, should be okay.
	nRead, err := cache.ReadAt(buffer, 0)
	assert.NoError(t, err, "failed to read first page")
	assert.Equal(t, len(buffer), nRead)

	// Read the last valid page, should be okay.
	nRead, err = cache.ReadAt(buffer, 15*512)
	assert.NoError(t, err, "failed to read last page")
	assert.Equal(t, len(buffer), nRead)

	// Read one page past the last valid page. This must fail.
	nRead, err = cache.ReadAt(buffer, 16*512)
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange)
	assert.Equal(t, 0, nRead)

	// Reading zero bytes at the very end is fine, but not past it.
	nRead, err = cache.ReadAt([]byte{}, 16*512)
	assert.NoError(t, err)
	assert.Equal(t, 0, nRead)

	nRead, err = cache.ReadAt([]byte{}, 16*512+1)
	assert.Error(t, err, "read 0 bytes past the end but it didn't fail")
	assert.Equal(t, 0, nRead)

	nRead, err = cache.ReadAt(make([]byte, 8192), 0)
	assert.NoError(t, err, "failed reading entire image into buffer")
	assert.EqualValues(t, cache.Size(), nRead)

	nRead, err = cache.ReadAt(make([]byte, 8193), 0)
	assert.Error(t, err, "should've failed to read entire image + 1 byte into buffer")
	assert.Equal(t, 0, nRead)

	_, err = cache.ReadAt(buffer, -1)
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange)
}

// The last page of an image whose size isn't a multiple of the page size is
// partial. Bytes past the end of the image can't be read even though they're
// part of that page.
func TestPageCache__PartialLastPage(t *testing.T) {
	rawData := pgttest.CreateRandomImage(100, 1, t)
	cache := pgttest.CreateDefaultCache(64, rawData, t)

	tail := make([]byte, 36)
	_, err := cache.ReadAt(tail, 64)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(rawData[64:], tail))

	_, err = cache.ReadAt(make([]byte, 37), 64)
	assert.ErrorIs(t, err, pgtdump.ErrArgumentOutOfRange)
}

// Pages are fetched once and served from memory afterwards.
func TestPageCache__FetchesOnce(t *testing.T) {
	fetches := map[uint]int{}
	cache := pagecache.New(16, 64, func(pageIndex uint, buffer []byte) error {
		fetches[pageIndex]++
		buffer[0] = byte(pageIndex)
		return nil
	})

	buffer := make([]byte, 1)
	for i := 0; i < 3; i++ {
		_, err := cache.ReadAt(buffer, 32)
		require.NoError(t, err)
		assert.EqualValues(t, 2, buffer[0])
	}
	assert.Equal(t, map[uint]int{2: 1}, fetches)
}

// A failing fetch fails the read without caching anything.
func TestPageCache__FetchFailure(t *testing.T) {
	errBroken := errors.New("broken sector")
	cache := pagecache.New(16, 64, func(pageIndex uint, buffer []byte) error {
		if pageIndex == 1 {
			return errBroken
		}
		return nil
	})

	nRead, err := cache.ReadAt(make([]byte, 32), 8)
	assert.ErrorIs(t, err, pgtdump.ErrIOFailed)
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, 0, nRead)
	assert.False(t, cache.IsLoaded(1))
}

func TestNewFromReaderAt(t *testing.T) {
	rawData := pgttest.CreateRandomImage(100, 1, t)
	cache := pagecache.NewFromReaderAt(bytes.NewReader(rawData), 64, int64(len(rawData)))
	assert.EqualValues(t, 2, cache.TotalPages())

	buffer := make([]byte, len(rawData))
	nRead, err := cache.ReadAt(buffer, 0)
	require.NoError(t, err)
	assert.Equal(t, len(rawData), nRead)
	assert.True(t, bytes.Equal(rawData, buffer))
}
