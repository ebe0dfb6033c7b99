package testing

import (
	"fmt"
	"testing"

	"github.com/dargueta/pgtdump"
	"github.com/dargueta/pgtdump/dumpfile/pagecache"
	"github.com/stretchr/testify/assert"
)

// CreateDefaultCache creates a page cache over `backingData` whose fetch
// handler checks bounds for you and fails the test with an appropriate error
// message.
//
// Arguments:
//
//   - bytesPerPage: The number of bytes in a single page.
//   - backingData: The bytes the cache sits on top of. Pass the output of
//     [CreateRandomImage] if the contents don't matter.
//   - `t`: The testing fixture.
//
// Since bounds violations fail the test, you won't be able to test negative
// conditions through the fetch handler. Use [pagecache.New] directly for that.
func CreateDefaultCache(
	bytesPerPage uint,
	backingData []byte,
	t *testing.T,
) *pagecache.PageCache {
	totalPages := (uint(len(backingData)) + bytesPerPage - 1) / bytesPerPage

	fetchCallback := func(pageIndex uint, buffer []byte) error {
		if pageIndex >= totalPages {
			message := fmt.Sprintf(
				"attempted to read outside bounds: page %d not in [0, %d)",
				pageIndex,
				totalPages,
			)
			t.Error(message)
			return pgtdump.ErrIOFailed.WithMessage(message)
		}

		start := pageIndex * bytesPerPage
		end := start + bytesPerPage
		if end > uint(len(backingData)) {
			end = uint(len(backingData))
		}
		copy(buffer, backingData[start:end])
		return nil
	}

	cache := pagecache.New(bytesPerPage, int64(len(backingData)), fetchCallback)
	assert.EqualValues(t, bytesPerPage, cache.BytesPerPage(), "wrong bytes per page")
	assert.EqualValues(t, totalPages, cache.TotalPages(), "wrong total pages")
	assert.EqualValues(t, len(backingData), cache.Size(), "total size is wrong")
	return cache
}
