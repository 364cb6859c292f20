// Package pagination streams result pages without counting the full result
// set. A page fetches one row beyond its window; that sentinel row is
// consumed internally and only proves the existence of a next page.
package pagination

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tablodata/tablo/pkg/storage"
)

var (
	// ErrPageNotAnInteger means the requested page number did not parse.
	ErrPageNotAnInteger = errors.New("page number is not an integer")
	// ErrEmptyPage means the requested page number is below 1.
	ErrEmptyPage = errors.New("page number is less than 1")
	// ErrPageOutOfRange means a page beyond the first produced no rows.
	ErrPageOutOfRange = errors.New("page out of range")
)

// FetchFunc retrieves a window of rows. Offset and limit are absolute row
// positions within the full, filtered and sorted result set.
type FetchFunc func(offset, limit int) (storage.Iterator, error)

// Paginator slices a result set into fixed-size pages.
type Paginator struct {
	// PerPage is the number of rows exposed per page.
	PerPage int
}

// New returns a paginator with the given page size.
func New(perPage int) *Paginator {
	return &Paginator{PerPage: perPage}
}

// ValidateNumber parses a raw page number. An empty or malformed value
// yields ErrPageNotAnInteger, a value below 1 yields ErrEmptyPage.
func (p *Paginator) ValidateNumber(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrPageNotAnInteger, raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %d", ErrEmptyPage, n)
	}
	return n, nil
}

// Page returns the page with the given 1-based number. The underlying fetch
// asks for one row more than the page size; whether that sentinel row exists
// is only known after the page has been drained.
func (p *Paginator) Page(number int, fetch FetchFunc) (*Page, error) {
	if number < 1 {
		return nil, fmt.Errorf("%w: %d", ErrEmptyPage, number)
	}
	bottom := (number - 1) * p.PerPage
	it, err := fetch(bottom, p.PerPage+1)
	if err != nil {
		return nil, err
	}
	return newPage(number, p.PerPage, it), nil
}

// GetPage is the tolerant variant of Page: a page number that does not parse
// falls back to page 1. Out-of-bounds numbers still fail.
func (p *Paginator) GetPage(raw string, fetch FetchFunc) (*Page, error) {
	n, err := p.ValidateNumber(raw)
	if err != nil {
		if !errors.Is(err, ErrPageNotAnInteger) {
			return nil, err
		}
		n = 1
	}
	return p.Page(n, fetch)
}

// Count is unsupported: it would require a full table scan per request.
func (p *Paginator) Count() (int, error) {
	return 0, fmt.Errorf("result count: %w", errors.ErrUnsupported)
}

// NumPages is unsupported for the same reason as Count.
func (p *Paginator) NumPages() (int, error) {
	return 0, fmt.Errorf("page count: %w", errors.ErrUnsupported)
}
