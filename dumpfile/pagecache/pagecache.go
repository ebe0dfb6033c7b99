// Package pagecache provides a read-only, page-oriented cache over a dump file
// that is read lazily, one page at a time.
//
// All page indexes begin at 0.

package pagecache

import (
	"errors"
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/pgtdump"
)

// FetchPageCallback is a pointer to a function that writes the contents of a
// single page from the underlying storage into `buffer`. `buffer` is guaranteed
// to be the size of exactly one page.
type FetchPageCallback func(pageIndex uint, buffer []byte) error

type PageCache struct {
	loadedPages  bitmap.Bitmap
	pages        map[uint][]byte
	fetch        FetchPageCallback
	bytesPerPage uint
	totalPages   uint
	size         int64
}

// New creates a new PageCache covering `size` bytes. The last page may be
// partial; reads past `size` fail even if they fall inside that page.
func New(bytesPerPage uint, size int64, fetchCb FetchPageCallback) *PageCache {
	totalPages := uint((size + int64(bytesPerPage) - 1) / int64(bytesPerPage))
	return &PageCache{
		loadedPages:  bitmap.NewSlice(int(totalPages)),
		pages:        make(map[uint][]byte),
		fetch:        fetchCb,
		bytesPerPage: bytesPerPage,
		totalPages:   totalPages,
		size:         size,
	}
}

// NewFromReaderAt creates a PageCache that fetches pages from `source`. Bytes
// of the last page beyond the end of `source` read as zero.
func NewFromReaderAt(source io.ReaderAt, bytesPerPage uint, size int64) *PageCache {
	fetch := func(pageIndex uint, buffer []byte) error {
		n, err := source.ReadAt(buffer, int64(pageIndex)*int64(bytesPerPage))
		if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
			return err
		}
		return nil
	}
	return New(bytesPerPage, size, fetch)
}

// BytesPerPage returns the size of a single page, in bytes.
func (cache *PageCache) BytesPerPage() uint {
	return cache.bytesPerPage
}

// TotalPages returns the size of the cache, in pages.
func (cache *PageCache) TotalPages() uint {
	return cache.totalPages
}

// Size returns the number of bytes the cache covers.
func (cache *PageCache) Size() int64 {
	return cache.size
}

// LoadedPages returns the number of pages fetched so far.
func (cache *PageCache) LoadedPages() uint {
	return uint(len(cache.pages))
}

// IsLoaded returns true if the page has already been fetched.
func (cache *PageCache) IsLoaded(pageIndex uint) bool {
	if pageIndex >= cache.totalPages {
		return false
	}
	return cache.loadedPages.Get(int(pageIndex))
}

// checkBounds verifies that `length` bytes can be read starting at `offset`.
// If not, it returns an error describing the exact conditions.
func (cache *PageCache) checkBounds(offset int64, length int) error {
	if offset < 0 || offset >= cache.size || int64(length) > cache.size-offset {
		return pgtdump.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't read %d bytes at offset %d; range not in [0, %d)",
				length,
				offset,
				cache.size,
			),
		)
	}
	return nil
}

// getPage returns the cached page, fetching it from storage if needed.
func (cache *PageCache) getPage(pageIndex uint) ([]byte, error) {
	if cache.loadedPages.Get(int(pageIndex)) {
		return cache.pages[pageIndex], nil
	}

	buffer := make([]byte, cache.bytesPerPage)
	err := cache.fetch(pageIndex, buffer)
	if err != nil {
		return nil, pgtdump.ErrIOFailed.WithMessage(
			fmt.Sprintf("failed to load page %d from source", pageIndex),
		).Wrap(err)
	}

	cache.pages[pageIndex] = buffer
	cache.loadedPages.Set(int(pageIndex), true)
	return buffer, nil
}

// ReadAt implements io.ReaderAt. Reads are all-or-nothing: if any part of the
// range is out of bounds or fails to load, nothing is copied and 0 is returned.
func (cache *PageCache) ReadAt(buffer []byte, offset int64) (int, error) {
	if len(buffer) == 0 {
		if offset < 0 || offset > cache.size {
			return 0, cache.checkBounds(offset, 0)
		}
		return 0, nil
	}

	err := cache.checkBounds(offset, len(buffer))
	if err != nil {
		return 0, err
	}

	firstPage := uint(offset / int64(cache.bytesPerPage))
	lastPage := uint((offset + int64(len(buffer)) - 1) / int64(cache.bytesPerPage))
	loaded := make([][]byte, 0, lastPage-firstPage+1)
	for pageIndex := firstPage; pageIndex <= lastPage; pageIndex++ {
		page, err := cache.getPage(pageIndex)
		if err != nil {
			return 0, err
		}
		loaded = append(loaded, page)
	}

	pageOffset := uint(offset % int64(cache.bytesPerPage))
	copied := 0
	for _, page := range loaded {
		copied += copy(buffer[copied:], page[pageOffset:])
		pageOffset = 0
	}
	return copied, nil
}
